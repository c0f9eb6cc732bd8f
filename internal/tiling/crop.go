package tiling

import (
	"github.com/paulmach/orb"

	"github.com/hamersaw/stip-sub000/internal/tilecodec"
)

// cropInMemory extracts the portion of src (whose extent is srcBound) that
// falls within dstBound, nearest-neighbor resampled onto a grid with the
// same pixel density as src. Used by Split/Coalesce/Fill, which re-tile
// already-decoded rasters rather than reopening a raster.Dataset.
func cropInMemory(src tilecodec.Raster, srcBound, dstBound orb.Bound) tilecodec.Raster {
	inter, ok := intersectBound(srcBound, dstBound)
	if !ok {
		return tilecodec.Raster{NoData: src.NoData}
	}

	lonSpan := srcBound.Max[0] - srcBound.Min[0]
	latSpan := srcBound.Max[1] - srcBound.Min[1]
	if lonSpan <= 0 || latSpan <= 0 {
		return tilecodec.Raster{NoData: src.NoData}
	}

	colAt := func(lon float64) int {
		f := (lon - srcBound.Min[0]) / lonSpan
		return clampInt(int(f*float64(src.Width)), 0, src.Width-1)
	}
	rowAt := func(lat float64) int {
		// row 0 is the northernmost (Max lat) row, matching typical raster layout.
		f := (srcBound.Max[1] - lat) / latSpan
		return clampInt(int(f*float64(src.Height)), 0, src.Height-1)
	}

	colMin, colMax := colAt(inter.Min[0]), colAt(inter.Max[0])
	rowMin, rowMax := rowAt(inter.Max[1]), rowAt(inter.Min[1])
	if colMax < colMin {
		colMin, colMax = colMax, colMin
	}
	if rowMax < rowMin {
		rowMin, rowMax = rowMax, rowMin
	}

	width := colMax - colMin + 1
	height := rowMax - rowMin + 1
	out := make([]float32, width*height)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			srcIdx := (rowMin+r)*src.Width + (colMin + c)
			out[r*width+c] = src.Pixels[srcIdx]
		}
	}

	return tilecodec.Raster{Width: width, Height: height, NoData: src.NoData, Pixels: out}
}

func intersectBound(a, b orb.Bound) (orb.Bound, bool) {
	minX := maxF(a.Min[0], b.Min[0])
	minY := maxF(a.Min[1], b.Min[1])
	maxX := minF(a.Max[0], b.Max[0])
	maxY := minF(a.Max[1], b.Max[1])
	if minX >= maxX || minY >= maxY {
		return orb.Bound{}, false
	}
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
