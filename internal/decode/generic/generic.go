// Package generic implements the simplest illustrative decode.Decoder: a
// bare GeoTIFF artifact with no container format, grounded in the
// original implementation's naip loader (the simplest of its per-platform
// loaders) — naming conventions stand in for embedded product metadata
// since no container format wraps the scene.
package generic

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hamersaw/stip-sub000/internal/decode"
)

// Decoder decodes artifacts named "<platform>_<tile_id>_<unix_timestamp>.tif",
// with an optional trailing "_<cloud_coverage>" field for sources that embed
// a scene-level cloud fraction in the filename.
type Decoder struct{}

func (Decoder) Decode(ctx context.Context, a decode.Artifact) (decode.Decoded, error) {
	base := strings.TrimSuffix(filepath.Base(a.Path), filepath.Ext(a.Path))
	parts := strings.SplitN(base, "_", 4)
	if len(parts) < 3 {
		return decode.Decoded{}, fmt.Errorf("generic: %q does not match <platform>_<tile_id>_<timestamp>", base)
	}

	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return decode.Decoded{}, fmt.Errorf("generic: parse timestamp from %q: %w", base, err)
	}

	decoded := decode.Decoded{
		RasterPath: a.Path,
		Platform:   parts[0],
		TileID:     parts[1],
		Timestamp:  ts,
	}

	if len(parts) == 4 {
		cc, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			return decode.Decoded{}, fmt.Errorf("generic: parse cloud_coverage from %q: %w", base, err)
		}
		decoded.CloudCoverage = &cc
	}

	return decoded, nil
}
