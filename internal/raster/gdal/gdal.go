// Package gdal implements raster.Service over github.com/airbusgeo/godal,
// the raster library the teacher repo's import-elevation tool already
// binds against for GeoTIFF pixel access.
package gdal

import (
	"context"
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"

	"github.com/hamersaw/stip-sub000/internal/raster"
	"github.com/hamersaw/stip-sub000/internal/tilecodec"
)

var registerOnce sync.Once

// Service is a raster.Service backed by GDAL via godal.
type Service struct{}

// New returns a gdal-backed raster.Service, registering all GDAL drivers
// exactly once per process.
func New() *Service {
	registerOnce.Do(godal.RegisterAll)
	return &Service{}
}

func (s *Service) Open(ctx context.Context, path string) (raster.Dataset, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gdal: open %s: %w", path, err)
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("gdal: geotransform %s: %w", path, err)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		ds.Close()
		return nil, fmt.Errorf("gdal: %s has no bands", path)
	}

	structure := ds.Structure()

	minX := gt[0]
	maxY := gt[3]
	maxX := minX + float64(structure.SizeX)*gt[1]
	minY := maxY + float64(structure.SizeY)*gt[5] // gt[5] is negative

	return &dataset{
		ds:     ds,
		gt:     gt,
		bands:  bands,
		sizeX:  structure.SizeX,
		sizeY:  structure.SizeY,
		bounds: orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}},
	}, nil
}

type dataset struct {
	mu     sync.Mutex
	ds     *godal.Dataset
	gt     [6]float64
	bands  []godal.Band
	sizeX  int
	sizeY  int
	bounds orb.Bound
}

func (d *dataset) EPSG() int { return 0 } // assumed to already match the album projection; see DESIGN.md

func (d *dataset) Bounds() orb.Bound { return d.bounds }

func (d *dataset) Subdatasets() int { return len(d.bands) }

// Crop reads the pixel window overlapping w.Bounds from the dataset's
// native grid. Full reprojection (GDAL warp) is not implemented; source
// artifacts are assumed pre-projected to the album's EPSG, a scoped
// simplification recorded in DESIGN.md.
func (d *dataset) Crop(w raster.Window) (tilecodec.Raster, error) {
	if w.Subdataset < 0 || w.Subdataset >= len(d.bands) {
		return tilecodec.Raster{}, fmt.Errorf("gdal: subdataset %d out of range (have %d)", w.Subdataset, len(d.bands))
	}

	inter, ok := intersect(d.bounds, w.Bounds)
	if !ok {
		return tilecodec.Raster{}, nil
	}

	pxMin, pyMin := d.toPixel(inter.Min[0], inter.Max[1])
	pxMax, pyMax := d.toPixel(inter.Max[0], inter.Min[1])
	pxMin, pxMax = clampOrder(pxMin, pxMax, d.sizeX)
	pyMin, pyMax = clampOrder(pyMin, pyMax, d.sizeY)

	width := pxMax - pxMin
	height := pyMax - pyMin
	if width <= 0 || height <= 0 {
		return tilecodec.Raster{}, nil
	}

	buf := make([]float32, width*height)

	d.mu.Lock()
	err := d.bands[w.Subdataset].Read(pxMin, pyMin, buf, width, height)
	d.mu.Unlock()
	if err != nil {
		return tilecodec.Raster{}, fmt.Errorf("gdal: read window: %w", err)
	}

	return tilecodec.Raster{Width: width, Height: height, NoData: noDataSentinel, Pixels: buf}, nil
}

// noDataSentinel matches what GDAL leaves unset pixels as in the absence
// of an explicit no-data band value query (not retrieved from the source
// dataset here); callers treat it as the universal missing-pixel marker.
const noDataSentinel = -9999

func (d *dataset) toPixel(lon, lat float64) (int, int) {
	px := int((lon - d.gt[0]) / d.gt[1])
	py := int((lat - d.gt[3]) / d.gt[5])
	return px, py
}

func clampOrder(a, b, n int) (int, int) {
	if a > b {
		a, b = b, a
	}
	if a < 0 {
		a = 0
	}
	if b > n {
		b = n
	}
	return a, b
}

func intersect(a, b orb.Bound) (orb.Bound, bool) {
	minX := max(a.Min[0], b.Min[0])
	minY := max(a.Min[1], b.Min[1])
	maxX := min(a.Max[0], b.Max[0])
	maxY := min(a.Max[1], b.Max[1])
	if minX >= maxX || minY >= maxY {
		return orb.Bound{}, false
	}
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}, true
}

func (d *dataset) Close() error {
	d.ds.Close()
	return nil
}
