// Package tilecodec implements the canonical on-disk tile format (spec
// §6.2): a single-band TIFF, LZW-compressed, carrying the tile's catalog
// attributes as embedded metadata under the STIP domain so the album index
// can be rebuilt purely by reading tiles back off disk.
package tilecodec

import "github.com/hamersaw/stip-sub000/internal/model"

// Raster is one decoded band's pixel data, row-major, with a sentinel
// NoData value marking missing pixels (used by pixel-coverage computation
// and by Fill).
type Raster struct {
	Width  int
	Height int
	NoData float64
	Pixels []float32 // len == Width*Height
}

// Metadata is the STIP domain embedded in every canonical tile (spec §6.2).
type Metadata struct {
	Platform      string
	Geocode       string
	Source        model.TileSource
	Subdataset    uint8
	TileID        string
	Timestamp     int64
	PixelCoverage float64
	CloudCoverage float64 // model.NoCloudCoverage sentinel means absent
}
