package tiling

import (
	"fmt"
	"os"

	"github.com/hamersaw/stip-sub000/internal/tilecodec"
)

// readTileFile decodes a canonical on-disk tile back into its raster
// pixels and embedded STIP metadata.
func readTileFile(path string) (tilecodec.Raster, tilecodec.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return tilecodec.Raster{}, tilecodec.Metadata{}, fmt.Errorf("tiling: open %s: %w", path, err)
	}
	defer f.Close()

	r, meta, err := tilecodec.Decode(f)
	if err != nil {
		return tilecodec.Raster{}, tilecodec.Metadata{}, fmt.Errorf("tiling: decode %s: %w", path, err)
	}
	return r, meta, nil
}
