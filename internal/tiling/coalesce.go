package tiling

import (
	"context"
	"strings"

	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/geocode"
	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hamersaw/stip-sub000/internal/task"
)

// CoalesceTask walks SourcePlatform's tiles in timestamp-then-geocode
// order and, for each, finds TargetPlatform tiles within WindowSeconds
// whose geocode is a strict (finer) refinement of the source geocode,
// re-splitting the source into exactly those geocodes (spec §4.5).
//
// A target geocode equal in length to (or a prefix/ancestor coarser than)
// the source is an error-skip, not a merge: coalesce only ever refines,
// never coarsens (resolves the corresponding REDESIGN FLAG).
type CoalesceTask struct {
	Pipeline       *Pipeline
	AlbumID        string
	SourcePlatform string
	TargetPlatform string
	WindowSeconds  int64
}

func (t *CoalesceTask) Records(ctx context.Context) ([]task.Record, error) {
	var recs []task.Record
	err := t.Pipeline.Store.Each(t.AlbumID, model.Filter{Platform: t.SourcePlatform, Source: model.SourceRaw, Recurse: true}, func(img model.Image) error {
		recs = append(recs, img)
		return nil
	})
	return recs, err
}

func (t *CoalesceTask) Process(ctx context.Context, rec task.Record) (any, error) {
	img := rec.(model.Image)
	return nil, t.Pipeline.coalesceImage(ctx, t.AlbumID, img, t.TargetPlatform, t.WindowSeconds)
}

func (p *Pipeline) coalesceImage(ctx context.Context, albumID string, img model.Image, targetPlatform string, windowSeconds int64) error {
	albumMeta, err := p.Store.Get(albumID)
	if err != nil {
		return err
	}
	enc, err := geocode.For(string(albumMeta.Geocode))
	if err != nil {
		return apierr.New(apierr.InvalidConfig, "tiling.coalesceImage", err)
	}

	start := img.Timestamp - windowSeconds
	end := img.Timestamp + windowSeconds
	var targets []model.Image
	err = p.Store.Each(albumID, model.Filter{
		Platform:       targetPlatform,
		StartTimestamp: &start,
		EndTimestamp:   &end,
		Recurse:        false, // gathered broadly below; prefix relation checked per-candidate
	}, func(t model.Image) error {
		targets = append(targets, t)
		return nil
	})
	if err != nil {
		return err
	}

	srcBound, err := enc.Bounds(img.Geocode)
	if err != nil {
		return apierr.New(apierr.InvalidConfig, "tiling.coalesceImage", err)
	}

	var fineGeocodes []string
	for _, t := range targets {
		if len(t.Geocode) <= len(img.Geocode) {
			continue // coarser-or-equal: error-skip, not a merge
		}
		if !strings.HasPrefix(t.Geocode, img.Geocode) {
			continue // neither a prefix of the other: skip (spec §4.5)
		}
		fineGeocodes = append(fineGeocodes, t.Geocode)
	}
	if len(fineGeocodes) == 0 {
		return nil
	}

	for _, f := range img.Files {
		raw, _, err := p.loadStoredTile(f.Path)
		if err != nil {
			return err
		}
		for _, code := range fineGeocodes {
			dstBound, err := enc.Bounds(code)
			if err != nil {
				continue
			}
			cropped := cropInMemory(raw, srcBound, dstBound)
			if cropped.Width == 0 || cropped.Height == 0 {
				continue
			}
			if err := p.emit(ctx, albumMeta, cropped, code, img.Platform, img.TileID,
				model.SourceSplit, f.Subdataset, img.Timestamp, img.CloudCoverage); err != nil {
				return err
			}
		}
	}
	return nil
}
