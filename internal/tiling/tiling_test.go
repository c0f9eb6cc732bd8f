package tiling

import (
	"context"
	"fmt"
	"testing"

	"github.com/paulmach/orb"

	"github.com/hamersaw/stip-sub000/internal/album"
	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/decode"
	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hamersaw/stip-sub000/internal/raster"
	"github.com/hamersaw/stip-sub000/internal/tilecodec"
	"github.com/hamersaw/stip-sub000/internal/transfer"
)

type fakeDataset struct {
	bounds orb.Bound
	pixels []float32
	w, h   int
}

func (d *fakeDataset) EPSG() int            { return 4326 }
func (d *fakeDataset) Bounds() orb.Bound    { return d.bounds }
func (d *fakeDataset) Subdatasets() int     { return 1 }
func (d *fakeDataset) Close() error         { return nil }
func (d *fakeDataset) Crop(w raster.Window) (tilecodec.Raster, error) {
	return tilecodec.Raster{Width: d.w, Height: d.h, NoData: -1, Pixels: d.pixels}, nil
}

type fakeService struct{ ds *fakeDataset }

func (s *fakeService) Open(ctx context.Context, path string) (raster.Dataset, error) { return s.ds, nil }

type fakeDecoder struct{}

func (fakeDecoder) Decode(ctx context.Context, a decode.Artifact) (decode.Decoded, error) {
	return decode.Decoded{RasterPath: a.Path, Platform: "testsat", TileID: "T1", Timestamp: 1700000000}, nil
}

type fakeLocator struct{ node model.Node }

func (l fakeLocator) Locate(key uint64) (model.Node, error) { return l.node, nil }

func TestPipelineStoreRoutesAndSendsTiles(t *testing.T) {
	store, err := album.Open(t.TempDir())
	if err != nil {
		t.Fatalf("album.Open: %v", err)
	}
	if err := store.Create(model.Album{ID: "a", Geocode: model.Geohash, Status: model.AlbumOpen}, 9); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ds := &fakeDataset{
		bounds: orb.Bound{Min: orb.Point{-122.5, 37.5}, Max: orb.Point{-122.0, 38.0}},
		w:      2, h: 2,
		pixels: []float32{1, 2, 3, 4},
	}
	decoders := decode.NewRegistry()
	decoders.Register("generic", fakeDecoder{})

	var sent []transfer.Frame
	p := &Pipeline{
		Store:    store,
		Rasters:  &fakeService{ds: ds},
		Decoders: decoders,
		Locator:  fakeLocator{node: model.Node{ID: 1, XferAddr: "127.0.0.1:9"}},
		Send: func(ctx context.Context, addr string, f transfer.Frame) error {
			sent = append(sent, f)
			return nil
		},
	}

	if err := p.storeArtifact(context.Background(), "a", "generic", "/tmp/anything.tif", 4); err != nil {
		t.Fatalf("storeArtifact: %v", err)
	}

	if len(sent) == 0 {
		t.Fatalf("expected at least one tile to be routed and sent")
	}
	for _, f := range sent {
		if f.Album != "a" || f.Platform != "testsat" || f.Source != model.SourceRaw {
			t.Fatalf("unexpected frame: %+v", f)
		}
		if f.PixelCoverage <= 0 {
			t.Fatalf("expected positive pixel coverage, got %v", f.PixelCoverage)
		}
	}
}

func TestEmitMapsRemoteStorageFailureToFatalKind(t *testing.T) {
	p := &Pipeline{
		Locator: fakeLocator{node: model.Node{ID: 1, XferAddr: "127.0.0.1:9"}},
		Send: func(ctx context.Context, addr string, f transfer.Frame) error {
			return &transfer.RemoteError{Reason: "disk full"}
		},
	}
	r := tilecodec.Raster{Width: 1, Height: 1, NoData: -1, Pixels: []float32{1}}

	err := p.emit(context.Background(), model.Album{ID: "a"}, r, "9q8y", "testsat", "T1", model.SourceRaw, 0, 1700000000, nil)
	if apierr.Of(err) != apierr.StorageFailure {
		t.Fatalf("expected StorageFailure for a remote ack error, got %v (%v)", apierr.Of(err), err)
	}
	if apierr.Skippable(err) {
		t.Fatal("expected a storage failure to be fatal, not skippable")
	}
}

func TestEmitMapsConnectFailureToSkippableTransportKind(t *testing.T) {
	p := &Pipeline{
		Locator: fakeLocator{node: model.Node{ID: 1, XferAddr: "127.0.0.1:9"}},
		Send: func(ctx context.Context, addr string, f transfer.Frame) error {
			return fmt.Errorf("dial tcp %s: connection refused", addr)
		},
	}
	r := tilecodec.Raster{Width: 1, Height: 1, NoData: -1, Pixels: []float32{1}}

	err := p.emit(context.Background(), model.Album{ID: "a"}, r, "9q8y", "testsat", "T1", model.SourceRaw, 0, 1700000000, nil)
	if apierr.Of(err) != apierr.Transport {
		t.Fatalf("expected Transport for a connect failure, got %v (%v)", apierr.Of(err), err)
	}
	if !apierr.Skippable(err) {
		t.Fatal("expected a transport failure to be skippable")
	}
}

func TestFillNoDataStrictlyImprovesCoverage(t *testing.T) {
	base := tilecodec.Raster{Width: 2, Height: 1, NoData: -1, Pixels: []float32{-1, 5}}
	other := tilecodec.Raster{Width: 2, Height: 1, NoData: -1, Pixels: []float32{3, -1}}

	filled := fillNoData(base, other)
	if filled.Pixels[0] != 3 || filled.Pixels[1] != 5 {
		t.Fatalf("expected nodata holes to be filled from the other raster, got %+v", filled.Pixels)
	}

	before := tilecodec.PixelCoverage(base)
	after := tilecodec.PixelCoverage(filled)
	if after <= before {
		t.Fatalf("expected fill to strictly improve coverage: before=%v after=%v", before, after)
	}
}
