package tiling

import (
	"context"

	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/geocode"
	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hamersaw/stip-sub000/internal/task"
	"github.com/hamersaw/stip-sub000/internal/tilecodec"
)

// SplitTask re-tiles an album's already-stored raw tiles to a finer
// geocode precision (spec §4.5 "re-tile"), storing the results with
// source=split.
type SplitTask struct {
	Pipeline  *Pipeline
	AlbumID   string
	Precision int
}

func (t *SplitTask) Records(ctx context.Context) ([]task.Record, error) {
	var recs []task.Record
	err := t.Pipeline.Store.Each(t.AlbumID, model.Filter{Source: model.SourceRaw, Recurse: true}, func(img model.Image) error {
		if len(img.Geocode) >= t.Precision {
			return nil // only strictly coarser raw tiles are re-tiling candidates
		}
		recs = append(recs, img)
		return nil
	})
	return recs, err
}

func (t *SplitTask) Process(ctx context.Context, rec task.Record) (any, error) {
	img := rec.(model.Image)
	return nil, t.Pipeline.splitImage(ctx, t.AlbumID, img, t.Precision)
}

func (p *Pipeline) splitImage(ctx context.Context, albumID string, img model.Image, precision int) error {
	albumMeta, err := p.Store.Get(albumID)
	if err != nil {
		return err
	}
	enc, err := geocode.For(string(albumMeta.Geocode))
	if err != nil {
		return apierr.New(apierr.InvalidConfig, "tiling.splitImage", err)
	}
	srcBound, err := enc.Bounds(img.Geocode)
	if err != nil {
		return apierr.New(apierr.InvalidConfig, "tiling.splitImage", err)
	}

	windows, err := windowsFor(albumMeta, srcBound, precision)
	if err != nil {
		return apierr.New(apierr.InvalidConfig, "tiling.splitImage", err)
	}

	for _, f := range img.Files {
		raw, meta, err := p.loadStoredTile(f.Path)
		if err != nil {
			return err
		}

		for _, w := range windows {
			cropped := cropInMemory(raw, srcBound, w.Bounds)
			if cropped.Width == 0 || cropped.Height == 0 {
				continue
			}
			var cc *float64
			if meta.CloudCoverage != model.NoCloudCoverage {
				v := meta.CloudCoverage
				cc = &v
			}
			if err := p.emit(ctx, albumMeta, cropped, w.Code, img.Platform, img.TileID,
				model.SourceSplit, f.Subdataset, img.Timestamp, cc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) loadStoredTile(path string) (tilecodec.Raster, tilecodec.Metadata, error) {
	r, meta, err := readTileFile(path)
	if err != nil {
		return tilecodec.Raster{}, tilecodec.Metadata{}, apierr.New(apierr.DecoderFailure, "tiling.loadStoredTile", err)
	}
	return r, meta, nil
}
