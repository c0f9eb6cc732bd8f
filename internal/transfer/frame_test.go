package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/hamersaw/stip-sub000/internal/model"
)

func TestFrameRoundTrip(t *testing.T) {
	cc := 12.5
	f := Frame{
		Op:            OpWrite,
		Album:         "landsat",
		Geocode:       "9q8yyk",
		Platform:      "landsat8",
		Source:        model.SourceRaw,
		TileID:        "LC08_20260101",
		Subdataset:    2,
		Timestamp:     1767225600,
		PixelCoverage: 0.87,
		CloudCoverage: &cc,
		RasterPayload: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01},
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if got.Album != f.Album || got.Geocode != f.Geocode || got.Platform != f.Platform ||
		got.Source != f.Source || got.TileID != f.TileID || got.Subdataset != f.Subdataset ||
		got.Timestamp != f.Timestamp || got.PixelCoverage != f.PixelCoverage {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
	if got.CloudCoverage == nil || *got.CloudCoverage != cc {
		t.Fatalf("expected cloud coverage %v, got %v", cc, got.CloudCoverage)
	}
	if !bytes.Equal(got.RasterPayload, f.RasterPayload) {
		t.Fatalf("raster payload mismatch: got %v, want %v", got.RasterPayload, f.RasterPayload)
	}
}

func TestFrameRoundTripNoCloudCoverage(t *testing.T) {
	f := Frame{
		Op:            OpWrite,
		Album:         "sentinel",
		Geocode:       "9q8y",
		Platform:      "sentinel2",
		Source:        model.SourceSplit,
		TileID:        "S2A_20260201",
		Subdataset:    0,
		Timestamp:     1769904000,
		PixelCoverage: 1.0,
		RasterPayload: []byte{},
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.CloudCoverage != nil {
		t.Fatalf("expected nil cloud coverage, got %v", *got.CloudCoverage)
	}
}

func TestAckRoundTripSuccess(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAck(&buf, nil); err != nil {
		t.Fatalf("WriteAck: %v", err)
	}
	if err := ReadAck(&buf); err != nil {
		t.Fatalf("expected nil error for a clean ack, got %v", err)
	}
}

func TestAckRoundTripError(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAck(&buf, fmt.Errorf("disk full")); err != nil {
		t.Fatalf("WriteAck: %v", err)
	}

	err := ReadAck(&buf)
	if err == nil {
		t.Fatal("expected a non-nil error for a failed ack")
	}
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected a *RemoteError, got %T: %v", err, err)
	}
	if remoteErr.Reason != "disk full" {
		t.Fatalf("expected reason %q, got %q", "disk full", remoteErr.Reason)
	}
}
