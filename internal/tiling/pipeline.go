// Package tiling implements the tiling pipeline (spec §4.5): streaming a
// source raster, splitting along geocode boundaries, computing pixel
// coverage, and routing each split to its owner node over the transfer
// protocol. Store, Split, Coalesce, and Fill all funnel through the same
// route-and-send step.
package tiling

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/hamersaw/stip-sub000/internal/album"
	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/cluster"
	"github.com/hamersaw/stip-sub000/internal/decode"
	"github.com/hamersaw/stip-sub000/internal/geocode"
	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hamersaw/stip-sub000/internal/raster"
	"github.com/hamersaw/stip-sub000/internal/tilecodec"
	"github.com/hamersaw/stip-sub000/internal/transfer"
)

// Locator resolves the owning node for a routing key; satisfied by
// *cluster.Ring.
type Locator interface {
	Locate(key uint64) (model.Node, error)
}

// Sender delivers one tile frame to a peer's transfer address; satisfied
// by transfer.Send.
type Sender func(ctx context.Context, addr string, f transfer.Frame) error

// Pipeline wires the album store, raster service, decoder registry, and
// cluster routing together into the Store/Split/Coalesce/Fill operations.
type Pipeline struct {
	Store    *album.Store
	Rasters  raster.Service
	Decoders *decode.Registry
	Locator  Locator
	Send     Sender
	SelfAddr string // this node's own xfer address; emit does not consult it, so tiles this node owns also go through Send
}

// NewPipeline wires a Pipeline using transfer.Send as the default sender.
func NewPipeline(store *album.Store, rasters raster.Service, decoders *decode.Registry, locator Locator, selfAddr string) *Pipeline {
	return &Pipeline{
		Store: store, Rasters: rasters, Decoders: decoders, Locator: locator,
		Send: transfer.Send, SelfAddr: selfAddr,
	}
}

// route computes the owning node's transfer address for a tile geocode
// under album's key-derivation policy (spec §4.1).
func (p *Pipeline) route(album model.Album, code string) (model.Node, error) {
	key, err := cluster.RouteKey(code, album.DHTKeyLength)
	if err != nil {
		return model.Node{}, apierr.New(apierr.InvalidConfig, "tiling.route", err)
	}
	node, err := p.Locator.Locate(key)
	if err != nil {
		return model.Node{}, apierr.New(apierr.OwnerMissing, "tiling.route", err)
	}
	return node, nil
}

// emit routes and sends one split tile, the common tail of every pipeline
// operation (spec §4.5).
func (p *Pipeline) emit(ctx context.Context, albumMeta model.Album, r tilecodec.Raster, code, platform, tileID string, source model.TileSource, subdataset uint8, timestamp int64, cloudCoverage *float64) error {
	pc := tilecodec.PixelCoverage(r)
	if pc == 0 {
		return nil
	}

	node, err := p.route(albumMeta, code)
	if err != nil {
		return err
	}

	f := transfer.Frame{
		Op:            transfer.OpWrite,
		Album:         albumMeta.ID,
		Geocode:       code,
		Platform:      platform,
		Source:        source,
		TileID:        tileID,
		Subdataset:    subdataset,
		Timestamp:     timestamp,
		PixelCoverage: pc,
		CloudCoverage: cloudCoverage,
		RasterPayload: tilecodec.EncodeRaw(r),
	}

	if err := p.Send(ctx, node.XferAddr, f); err != nil {
		// A RemoteError means the frame reached the peer and its handler
		// (the album store) failed to persist it, which is fatal per spec
		// §7's policy: storage failures flip the task to Failure rather
		// than being skipped like a dial/connect failure.
		var remoteErr *transfer.RemoteError
		if errors.As(err, &remoteErr) {
			return apierr.New(apierr.StorageFailure, "tiling.emit", err)
		}
		return apierr.New(apierr.Transport, "tiling.emit", err)
	}
	return nil
}

// windowsFor returns every geocode cell of albumMeta's scheme, at precision,
// overlapping bbox (see geocode.Cover).
func windowsFor(albumMeta model.Album, bbox orb.Bound, precision int) ([]geocode.Window, error) {
	enc, err := geocode.For(string(albumMeta.Geocode))
	if err != nil {
		return nil, fmt.Errorf("tiling: resolve encoder: %w", err)
	}
	return geocode.Cover(enc, bbox, precision)
}
