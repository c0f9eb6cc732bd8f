package index

import (
	"path/filepath"
	"testing"

	"github.com/hamersaw/stip-sub000/internal/model"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func cloudCoverage(v float64) *float64 { return &v }

func upsertTestImage(t *testing.T, idx *Index, geocode, platform, tile string, cc *float64, files ...model.File) {
	t.Helper()
	img := model.Image{
		ID:            idx.NextImageID(),
		Geocode:       geocode,
		Platform:      platform,
		Source:        model.SourceRaw,
		TileID:        tile,
		Timestamp:     1700000000,
		CloudCoverage: cc,
		Files:         files,
	}
	if err := idx.Upsert(img); err != nil {
		t.Fatalf("Upsert(%s/%s): %v", geocode, tile, err)
	}
}

func TestIndexEachFiltersByGeocodeRecurse(t *testing.T) {
	idx := newTestIndex(t)
	upsertTestImage(t, idx, "9q8y", "sentinel2", "A", nil, model.File{Subdataset: 0, PixelCoverage: 1.0, Path: "a.tif"})
	upsertTestImage(t, idx, "9q8yyk", "sentinel2", "B", nil, model.File{Subdataset: 0, PixelCoverage: 1.0, Path: "b.tif"})
	upsertTestImage(t, idx, "9q9z", "sentinel2", "C", nil, model.File{Subdataset: 0, PixelCoverage: 1.0, Path: "c.tif"})

	var exact []string
	if err := idx.Each(model.Filter{Geocode: "9q8y"}, func(img model.Image) error {
		exact = append(exact, img.TileID)
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}
	if len(exact) != 1 || exact[0] != "A" {
		t.Fatalf("exact-match filter: expected [A], got %v", exact)
	}

	var recursed []string
	if err := idx.Each(model.Filter{Geocode: "9q8y", Recurse: true}, func(img model.Image) error {
		recursed = append(recursed, img.TileID)
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}
	if len(recursed) != 2 {
		t.Fatalf("recurse filter: expected 2 images nested under 9q8y, got %v", recursed)
	}
}

func TestIndexEachFiltersByMaxCloudCoverage(t *testing.T) {
	idx := newTestIndex(t)
	upsertTestImage(t, idx, "9q8y", "sentinel2", "low", cloudCoverage(0.1), model.File{Subdataset: 0, PixelCoverage: 1.0, Path: "low.tif"})
	upsertTestImage(t, idx, "9q8y", "sentinel2", "mid", cloudCoverage(0.5), model.File{Subdataset: 0, PixelCoverage: 1.0, Path: "mid.tif"})
	upsertTestImage(t, idx, "9q8y", "sentinel2", "high", cloudCoverage(0.9), model.File{Subdataset: 0, PixelCoverage: 1.0, Path: "high.tif"})
	upsertTestImage(t, idx, "9q8y", "sentinel2", "unknown", nil, model.File{Subdataset: 0, PixelCoverage: 1.0, Path: "unknown.tif"})

	max := 0.5
	var got []string
	if err := idx.Each(model.Filter{MaxCloudCoverage: &max}, func(img model.Image) error {
		got = append(got, img.TileID)
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected exactly the two tiles at or below 0.5 cloud coverage, got %v", got)
	}
	for _, id := range got {
		if id != "low" && id != "mid" {
			t.Fatalf("unexpected tile %q passed max_cloud_coverage=0.5, expected only low/mid", id)
		}
	}
}

func TestIndexEachFiltersByMinPixelCoverage(t *testing.T) {
	idx := newTestIndex(t)
	upsertTestImage(t, idx, "9q8y", "sentinel2", "multi", nil,
		model.File{Subdataset: 0, PixelCoverage: 0.2, Path: "a.tif"},
		model.File{Subdataset: 1, PixelCoverage: 0.9, Path: "b.tif"},
	)

	min := 0.5
	var files []model.File
	if err := idx.Each(model.Filter{MinPixelCoverage: &min}, func(img model.Image) error {
		files = img.Files
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}
	if len(files) != 1 || files[0].Subdataset != 1 {
		t.Fatalf("expected only the subdataset 1 file above min_pixel_coverage=0.5, got %+v", files)
	}
}

func TestIndexEachOmitsImageWhenAllFilesBelowMinPixelCoverage(t *testing.T) {
	idx := newTestIndex(t)
	upsertTestImage(t, idx, "9q8y", "sentinel2", "sparse", nil,
		model.File{Subdataset: 0, PixelCoverage: 0.1, Path: "a.tif"},
	)

	min := 0.5
	count := 0
	if err := idx.Each(model.Filter{MinPixelCoverage: &min}, func(model.Image) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected the image to be dropped entirely once min_pixel_coverage excludes all its files, got %d", count)
	}
}

func TestIndexSearchGroupsByPlatformSourcePrecisionPrefix(t *testing.T) {
	idx := newTestIndex(t)
	upsertTestImage(t, idx, "9q8y", "sentinel2", "a", nil, model.File{Subdataset: 0, PixelCoverage: 1, Path: "a.tif"})
	upsertTestImage(t, idx, "9q8z", "sentinel2", "b", nil, model.File{Subdataset: 0, PixelCoverage: 1, Path: "b.tif"})
	upsertTestImage(t, idx, "dr5r", "landsat8", "c", nil, model.File{Subdataset: 0, PixelCoverage: 1, Path: "c.tif"})

	extents, err := idx.Search(model.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(extents) != 2 {
		t.Fatalf("expected 2 extents (one per 2-char geocode prefix), got %d: %+v", len(extents), extents)
	}
	for _, e := range extents {
		switch e.GeocodePrefix {
		case "9q":
			if e.Count != 2 || e.Platform != "sentinel2" {
				t.Fatalf("unexpected 9q extent: %+v", e)
			}
		case "dr":
			if e.Count != 1 || e.Platform != "landsat8" {
				t.Fatalf("unexpected dr extent: %+v", e)
			}
		default:
			t.Fatalf("unexpected prefix %q", e.GeocodePrefix)
		}
	}
}
