package album

import (
	"context"
	"testing"

	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hamersaw/stip-sub000/internal/tilecodec"
	"github.com/hamersaw/stip-sub000/internal/transfer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func testFrame(album string) transfer.Frame {
	raster := tilecodec.Raster{
		Width: 2, Height: 2, NoData: -1,
		Pixels: []float32{1, 2, 3, 4},
	}
	return transfer.Frame{
		Op:            transfer.OpWrite,
		Album:         album,
		Geocode:       "9q8yyk",
		Platform:      "sentinel2",
		Source:        model.SourceRaw,
		TileID:        "S2A_TEST",
		Subdataset:    0,
		Timestamp:     1700000000,
		PixelCoverage: 1.0,
		RasterPayload: tilecodec.EncodeRaw(raster),
	}
}

func TestStoreCreateAndWriteTile(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create(model.Album{ID: "landsat", Geocode: model.Geohash, DHTKeyLength: 0, Status: model.AlbumOpen}, 9); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.WriteTile(context.Background(), testFrame("landsat")); err != nil {
		t.Fatalf("WriteTile: %v", err)
	}

	var found bool
	err := s.Each("landsat", model.Filter{}, func(img model.Image) error {
		found = true
		if img.TileID != "S2A_TEST" || len(img.Files) != 1 {
			t.Fatalf("unexpected image %+v", img)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Each: %v", err)
	}
	if !found {
		t.Fatalf("expected the written tile to appear in the index")
	}
}

func TestStoreWriteTileIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.Create(model.Album{ID: "a", Geocode: model.Geohash, Status: model.AlbumOpen}, 9)

	f := testFrame("a")
	if err := s.WriteTile(context.Background(), f); err != nil {
		t.Fatalf("first WriteTile: %v", err)
	}
	if err := s.WriteTile(context.Background(), f); err != nil {
		t.Fatalf("duplicate WriteTile should be a no-op, got: %v", err)
	}

	count := 0
	s.Each("a", model.Filter{}, func(model.Image) error { count++; return nil })
	if count != 1 {
		t.Fatalf("expected exactly one image after duplicate write, got %d", count)
	}
}

func TestStoreWriteTileUnknownAlbum(t *testing.T) {
	s := newTestStore(t)
	err := s.WriteTile(context.Background(), testFrame("missing"))
	if apierr.Of(err) != apierr.NotFound {
		t.Fatalf("expected NotFound for unknown album, got %v", err)
	}
}

func TestStoreCreateRejectsInvalidDHTKeyLength(t *testing.T) {
	s := newTestStore(t)
	err := s.Create(model.Album{ID: "bad", Geocode: model.Geohash, DHTKeyLength: 20, Status: model.AlbumOpen}, 9)
	if apierr.Of(err) != apierr.InvalidConfig {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}
}

func TestStoreCreateDuplicateIsAlreadyExists(t *testing.T) {
	s := newTestStore(t)
	meta := model.Album{ID: "dup", Geocode: model.Geohash, Status: model.AlbumOpen}
	if err := s.Create(meta, 9); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(meta, 9); apierr.Of(err) != apierr.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}
