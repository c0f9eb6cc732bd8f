// Package geocode implements the two hierarchical coordinate encodings an
// album may use (spec §3, §4.5): Geohash and QuadTile. Both expose the same
// Encoder interface so the tiling pipeline and album store never branch on
// scheme beyond picking which Encoder to use.
package geocode

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Encoder turns a coordinate into a hierarchical code and back, and reports
// the EPSG code tiles in that album must be reprojected to before encoding.
type Encoder interface {
	// Encode returns the code of the given precision containing (lon, lat).
	Encode(lon, lat float64, precision int) (string, error)
	// Bounds returns the coordinate interval ([minlon,minlat]-[maxlon,maxlat])
	// covered by a code.
	Bounds(code string) (orb.Bound, error)
	// EPSG is the reference projection tiles must be reprojected into.
	EPSG() int
	// Alphabet is the set of characters a valid code may use, for validation.
	Alphabet() string
	// Cells reports the grid dimensions (columns, rows) of the uniform
	// tessellation this scheme divides the world into at the given
	// precision, used to enumerate window cells intersecting a bounding
	// box (spec §4.5).
	Cells(precision int) (nx, ny int)
	// CellCenter returns the center coordinate of grid cell (ix, iy) at
	// the given precision.
	CellCenter(ix, iy, precision int) (lon, lat float64)
	// CellIndex returns the grid cell (ix, iy) containing (lon, lat) at the
	// given precision, using this scheme's own forward mapping. Geohash's
	// grid is latitude-linear but QuadTile's is Web Mercator, so callers
	// enumerating a bbox's cell range must go through this rather than
	// assume linear spacing (spec §4.5).
	CellIndex(lon, lat float64, precision int) (ix, iy int)
}

// For looks up the Encoder for a scheme name as stored on an Album.
func For(scheme string) (Encoder, error) {
	switch scheme {
	case "geohash":
		return Geohash{}, nil
	case "quadtile":
		return QuadTile{}, nil
	default:
		return nil, fmt.Errorf("unknown geocode scheme %q", scheme)
	}
}
