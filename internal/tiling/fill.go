package tiling

import (
	"context"
	"fmt"
	"sort"

	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hamersaw/stip-sub000/internal/task"
	"github.com/hamersaw/stip-sub000/internal/tilecodec"
)

// fillGroup is every raw tile sharing (platform, geocode, subdataset), clustered by
// WindowSeconds, a candidate for gap-filling against one another.
type fillGroup struct {
	geocode    string
	subdataset uint8
	platform   string
	tiles      []model.Image // each carries exactly one matching File
}

// FillTask groups an album's raw tiles by (platform, geocode, subdataset)
// within WindowSeconds and fills nodata in the earliest tile from
// temporally-nearby tiles, storing source=filled only on strict coverage
// improvement (spec §4.5).
type FillTask struct {
	Pipeline      *Pipeline
	AlbumID       string
	Platform      string
	WindowSeconds int64
}

func (t *FillTask) Records(ctx context.Context) ([]task.Record, error) {
	var images []model.Image
	err := t.Pipeline.Store.Each(t.AlbumID, model.Filter{Platform: t.Platform, Source: model.SourceRaw, Recurse: true}, func(img model.Image) error {
		images = append(images, img)
		return nil
	})
	if err != nil {
		return nil, err
	}

	byKey := make(map[string][]model.Image)
	for _, img := range images {
		for _, f := range img.Files {
			single := img
			single.Files = []model.File{f}
			key := fmt.Sprintf("%s/%s/%d", img.Platform, img.Geocode, f.Subdataset)
			byKey[key] = append(byKey[key], single)
		}
	}

	var groups []fillGroup
	for _, tiles := range byKey {
		sort.Slice(tiles, func(i, j int) bool { return tiles[i].Timestamp < tiles[j].Timestamp })

		var cur []model.Image
		flush := func() {
			if len(cur) < 2 {
				return // nothing to fill against
			}
			groups = append(groups, fillGroup{
				geocode: cur[0].Geocode, subdataset: cur[0].Files[0].Subdataset,
				platform: cur[0].Platform, tiles: append([]model.Image(nil), cur...),
			})
		}
		for _, img := range tiles {
			if len(cur) > 0 && img.Timestamp-cur[0].Timestamp > t.WindowSeconds {
				flush()
				cur = nil
			}
			cur = append(cur, img)
		}
		flush()
	}

	recs := make([]task.Record, len(groups))
	for i, g := range groups {
		recs[i] = g
	}
	return recs, nil
}

func (t *FillTask) Process(ctx context.Context, rec task.Record) (any, error) {
	g := rec.(fillGroup)
	return nil, t.Pipeline.fillGroup(ctx, t.AlbumID, g)
}

func (p *Pipeline) fillGroup(ctx context.Context, albumID string, g fillGroup) error {
	albumMeta, err := p.Store.Get(albumID)
	if err != nil {
		return err
	}

	base, meta, err := p.loadStoredTile(g.tiles[0].Files[0].Path)
	if err != nil {
		return err
	}
	bestCoverage := tilecodec.PixelCoverage(base)

	filled := base
	for _, other := range g.tiles[1:] {
		r, _, err := p.loadStoredTile(other.Files[0].Path)
		if err != nil {
			return err
		}
		if c := tilecodec.PixelCoverage(r); c > bestCoverage {
			bestCoverage = c
		}
		filled = fillNoData(filled, r)
	}

	finalCoverage := tilecodec.PixelCoverage(filled)
	if finalCoverage <= bestCoverage {
		return nil // spec §4.5: only store if strictly improved
	}

	var cc *float64
	if meta.CloudCoverage != model.NoCloudCoverage {
		v := meta.CloudCoverage
		cc = &v
	}
	return p.emit(ctx, albumMeta, filled, g.geocode, g.platform, g.tiles[0].TileID,
		model.SourceFilled, g.subdataset, g.tiles[0].Timestamp, cc)
}

// fillNoData returns a copy of base with every nodata pixel replaced by
// the corresponding pixel of other, when other has data there.
func fillNoData(base, other tilecodec.Raster) tilecodec.Raster {
	if base.Width != other.Width || base.Height != other.Height {
		return base // mismatched grids: nothing sensible to fill
	}
	out := tilecodec.Raster{Width: base.Width, Height: base.Height, NoData: base.NoData, Pixels: append([]float32(nil), base.Pixels...)}
	for i := range out.Pixels {
		if float64(out.Pixels[i]) == out.NoData && float64(other.Pixels[i]) != other.NoData {
			out.Pixels[i] = other.Pixels[i]
		}
	}
	return out
}
