// Package raster defines the raster-primitives interface the tiling
// pipeline depends on (open, window crop, band read, coverage) so the
// pipeline itself is agnostic to which geospatial library backs it (spec
// §1 Out-of-scope: "the GDAL-equivalent raster primitives... treated as a
// raster-services interface").
package raster

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/hamersaw/stip-sub000/internal/tilecodec"
)

// Window describes one grid cell's footprint and the subdataset (band) to
// extract, in the units of the dataset's own bounding box.
type Window struct {
	Bounds     orb.Bound
	Subdataset int
}

// Dataset is an opened source raster artifact.
type Dataset interface {
	// EPSG returns the projection code of the dataset's pixel grid.
	EPSG() int

	// Bounds returns the dataset's footprint in its own projection.
	Bounds() orb.Bound

	// Subdatasets returns how many band/resolution slots the dataset exposes.
	Subdatasets() int

	// Crop extracts the pixels of w, cropped to the dataset's own extent,
	// returning them as a tilecodec.Raster ready for coverage computation
	// and transfer.
	Crop(w Window) (tilecodec.Raster, error)

	Close() error
}

// Service opens artifacts into Datasets. Implementations wrap a concrete
// geospatial library (see raster/gdal).
type Service interface {
	Open(ctx context.Context, path string) (Dataset, error)
}
