package generic

import (
	"context"
	"testing"

	"github.com/hamersaw/stip-sub000/internal/decode"
)

func TestDecodeWithoutCloudCoverage(t *testing.T) {
	d := Decoder{}
	got, err := d.Decode(context.Background(), decode.Artifact{Path: "/data/sentinel2_S2ATEST_1700000000.tif"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Platform != "sentinel2" || got.TileID != "S2ATEST" || got.Timestamp != 1700000000 {
		t.Fatalf("unexpected decode result: %+v", got)
	}
	if got.CloudCoverage != nil {
		t.Fatalf("expected nil cloud coverage for a 3-field filename, got %v", *got.CloudCoverage)
	}
}

func TestDecodeWithCloudCoverage(t *testing.T) {
	d := Decoder{}
	got, err := d.Decode(context.Background(), decode.Artifact{Path: "/data/sentinel2_S2ATEST_1700000000_0.42.tif"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.CloudCoverage == nil || *got.CloudCoverage != 0.42 {
		t.Fatalf("expected cloud coverage 0.42, got %v", got.CloudCoverage)
	}
}

func TestDecodeRejectsMalformedName(t *testing.T) {
	d := Decoder{}
	if _, err := d.Decode(context.Background(), decode.Artifact{Path: "/data/not-enough-parts.tif"}); err == nil {
		t.Fatal("expected an error for a filename without platform/tile/timestamp parts")
	}
}
