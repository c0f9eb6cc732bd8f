package geocode

import (
	"fmt"

	"github.com/paulmach/orb"
)

// maxWindowCells bounds how many grid cells a single Cover call may
// enumerate, guarding against a caller passing a near-world-sized bbox at
// high precision and exhausting memory.
const maxWindowCells = 1_000_000

// Window is one grid cell of the album's geocode tessellation that
// intersects a source raster's bounding box (spec §4.5).
type Window struct {
	Code   string
	Bounds orb.Bound
}

// Cover enumerates every grid cell of enc's tessellation at the given
// precision that overlaps bbox with nonzero area, deriving each cell's code
// from its center coordinate. Cells that only touch bbox along an edge or
// at a corner are not returned.
func Cover(enc Encoder, bbox orb.Bound, precision int) ([]Window, error) {
	nx, ny := enc.Cells(precision)

	// Derive the candidate index range from enc's own forward mapping
	// rather than assuming linear spacing: QuadTile's y axis is Web
	// Mercator (nonlinear and inverted relative to latitude), so the two
	// corners must be run through CellIndex and then min/max'd, not
	// interpolated directly from bbox.Min/Max.
	ix1, iy1 := enc.CellIndex(bbox.Min[0], bbox.Min[1], precision)
	ix2, iy2 := enc.CellIndex(bbox.Max[0], bbox.Max[1], precision)
	minIX, maxIX := ix1, ix2
	if minIX > maxIX {
		minIX, maxIX = maxIX, minIX
	}
	minIY, maxIY := iy1, iy2
	if minIY > maxIY {
		minIY, maxIY = maxIY, minIY
	}

	minIX, maxIX = clampRange(minIX, maxIX, nx)
	minIY, maxIY = clampRange(minIY, maxIY, ny)

	count := (maxIX - minIX + 1) * (maxIY - minIY + 1)
	if count <= 0 {
		return nil, nil
	}
	if count > maxWindowCells {
		return nil, fmt.Errorf("geocode: window enumeration would produce %d cells, exceeds limit %d", count, maxWindowCells)
	}

	windows := make([]Window, 0, count)
	for iy := minIY; iy <= maxIY; iy++ {
		for ix := minIX; ix <= maxIX; ix++ {
			lon, lat := enc.CellCenter(ix, iy, precision)
			code, err := enc.Encode(lon, lat, precision)
			if err != nil {
				continue
			}
			bounds, err := enc.Bounds(code)
			if err != nil {
				continue
			}
			if bounds.Min[0] >= bbox.Max[0] || bounds.Max[0] <= bbox.Min[0] ||
				bounds.Min[1] >= bbox.Max[1] || bounds.Max[1] <= bbox.Min[1] {
				continue // touches bbox at most along an edge: no shared area
			}
			windows = append(windows, Window{Code: code, Bounds: bounds})
		}
	}
	return windows, nil
}

func clampRange(lo, hi, n int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}
