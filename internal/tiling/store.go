package tiling

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/decode"
	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hamersaw/stip-sub000/internal/raster"
	"github.com/hamersaw/stip-sub000/internal/task"
)

// StoreTask implements task.Task[any] for the ingest operation (spec §4.5,
// §6.1 ImageManagement.store): one record per artifact matched by glob.
type StoreTask struct {
	Pipeline  *Pipeline
	AlbumID   string
	Format    string
	Glob      string
	Precision int
}

func (t *StoreTask) Records(ctx context.Context) ([]task.Record, error) {
	paths, err := filepath.Glob(t.Glob)
	if err != nil {
		return nil, fmt.Errorf("tiling: glob %q: %w", t.Glob, err)
	}
	recs := make([]task.Record, len(paths))
	for i, p := range paths {
		recs[i] = p
	}
	return recs, nil
}

func (t *StoreTask) Process(ctx context.Context, rec task.Record) (any, error) {
	path := rec.(string)
	return nil, t.Pipeline.storeArtifact(ctx, t.AlbumID, t.Format, path, t.Precision)
}

// storeArtifact runs the per-artifact body of the tiling pipeline (spec
// §4.5): decode, enumerate subdatasets and windows, crop, route, send.
func (p *Pipeline) storeArtifact(ctx context.Context, albumID, format, path string, precision int) error {
	albumMeta, err := p.Store.Get(albumID)
	if err != nil {
		return err
	}

	dec, err := p.Decoders.For(format)
	if err != nil {
		return apierr.New(apierr.InvalidConfig, "tiling.storeArtifact", err)
	}
	decoded, err := dec.Decode(ctx, decode.Artifact{Path: path})
	if err != nil {
		return apierr.New(apierr.DecoderFailure, "tiling.storeArtifact", err)
	}

	ds, err := p.Rasters.Open(ctx, decoded.RasterPath)
	if err != nil {
		return apierr.New(apierr.DecoderFailure, "tiling.storeArtifact", err)
	}
	defer ds.Close()

	windows, err := windowsFor(albumMeta, ds.Bounds(), precision)
	if err != nil {
		return apierr.New(apierr.InvalidConfig, "tiling.storeArtifact", err)
	}

	for sub := 0; sub < ds.Subdatasets(); sub++ {
		for _, w := range windows {
			r, err := ds.Crop(raster.Window{Bounds: w.Bounds, Subdataset: sub})
			if err != nil {
				return apierr.New(apierr.DecoderFailure, "tiling.storeArtifact", err)
			}
			if r.Width == 0 || r.Height == 0 {
				continue
			}
			if err := p.emit(ctx, albumMeta, r, w.Code, decoded.Platform, decoded.TileID,
				model.SourceRaw, uint8(sub), decoded.Timestamp, decoded.CloudCoverage); err != nil {
				return err
			}
		}
	}
	return nil
}
