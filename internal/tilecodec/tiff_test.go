package tilecodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hamersaw/stip-sub000/internal/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := Raster{
		Width:  4,
		Height: 3,
		NoData: -9999,
		Pixels: []float32{
			1, 2, 3, 4,
			5, -9999, 7, 8,
			9, 10, 11, -9999,
		},
	}
	meta := Metadata{
		Platform:      "sentinel2",
		Geocode:       "9q8yyk",
		Source:        model.SourceRaw,
		Subdataset:    3,
		TileID:        "S2A_MSIL1C_20260215",
		Timestamp:     1771113600,
		PixelCoverage: 0.8333,
		CloudCoverage: model.NoCloudCoverage,
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, r, meta))

	gotR, gotMeta, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	require.Equal(t, r.Width, gotR.Width)
	require.Equal(t, r.Height, gotR.Height)
	require.Equal(t, r.Pixels, gotR.Pixels)
	require.Equal(t, meta, gotMeta)
}
