package geocode

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const quadTileAlphabet = "0123"

// QuadTile is the Bing Maps-style quadkey encoding: each character selects
// one quadrant (0=NW, 1=NE, 2=SW, 3=SE) of the current tile, starting from
// the whole Web Mercator world. Reference projection is EPSG:3857, but
// Encode/Bounds operate on longitude/latitude (EPSG:4326) for symmetry with
// Geohash, converting internally.
type QuadTile struct{}

func (QuadTile) EPSG() int        { return 3857 }
func (QuadTile) Alphabet() string { return quadTileAlphabet }

func lonLatToTileXY(lon, lat float64, precision int) (x, y float64) {
	n := math.Exp2(float64(precision))
	x = (lon + 180) / 360 * n
	latRad := lat * math.Pi / 180
	y = (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n
	return x, y
}

func tileXYToLonLat(x, y float64, precision int) (lon, lat float64) {
	n := math.Exp2(float64(precision))
	lon = x/n*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/n)))
	lat = latRad * 180 / math.Pi
	return lon, lat
}

// Encode returns the quadkey of the given precision (character count, i.e.
// zoom level) containing (lon, lat).
func (QuadTile) Encode(lon, lat float64, precision int) (string, error) {
	if precision <= 0 {
		return "", fmt.Errorf("quadtile: precision must be positive, got %d", precision)
	}
	if lat <= -85.05112878 || lat >= 85.05112878 {
		return "", fmt.Errorf("quadtile: latitude %f outside Web Mercator range", lat)
	}

	tx, ty := lonLatToTileXY(lon, lat, precision)
	ix, iy := int64(tx), int64(ty)

	out := make([]byte, precision)
	for i := precision - 1; i >= 0; i-- {
		digit := 0
		mask := int64(1) << uint(precision-1-i)
		if ix&mask != 0 {
			digit |= 1
		}
		if iy&mask != 0 {
			digit |= 2
		}
		out[i] = quadTileAlphabet[digit]
	}
	return string(out), nil
}

// Cells returns the grid dimensions of the quadtile tessellation at the
// given precision: 2^precision tiles per axis.
func (QuadTile) Cells(precision int) (nx, ny int) {
	n := 1 << uint(precision)
	return n, n
}

// CellCenter returns the center coordinate of grid cell (ix, iy).
func (QuadTile) CellCenter(ix, iy, precision int) (lon, lat float64) {
	lon1, lat1 := tileXYToLonLat(float64(ix), float64(iy+1), precision)
	lon2, lat2 := tileXYToLonLat(float64(ix+1), float64(iy), precision)
	return (lon1 + lon2) / 2, (lat1 + lat2) / 2
}

// CellIndex returns the grid cell containing (lon, lat). QuadTile's y axis
// is Web Mercator, which is nonlinear in latitude (and inverted: y grows as
// lat shrinks), so this goes through the same forward projection Encode
// uses rather than a latitude-proportional approximation. Latitude is
// clamped to the Web Mercator domain to keep the projection finite.
func (QuadTile) CellIndex(lon, lat float64, precision int) (ix, iy int) {
	const latLimit = 85.05112878
	if lat > latLimit {
		lat = latLimit
	} else if lat < -latLimit {
		lat = -latLimit
	}
	x, y := lonLatToTileXY(lon, lat, precision)
	return int(x), int(y)
}

// Bounds decodes a quadkey back into the coordinate interval it covers.
func (QuadTile) Bounds(code string) (orb.Bound, error) {
	if len(code) == 0 {
		return orb.Bound{}, fmt.Errorf("quadtile: empty code")
	}

	var ix, iy int64
	for i := 0; i < len(code); i++ {
		ix <<= 1
		iy <<= 1
		switch code[i] {
		case '0':
		case '1':
			ix |= 1
		case '2':
			iy |= 1
		case '3':
			ix |= 1
			iy |= 1
		default:
			return orb.Bound{}, fmt.Errorf("quadtile: invalid character %q in code %q", code[i], code)
		}
	}

	precision := len(code)
	minLon, maxLat := tileXYToLonLat(float64(ix), float64(iy), precision)
	maxLon, minLat := tileXYToLonLat(float64(ix+1), float64(iy+1), precision)

	return orb.Bound{
		Min: orb.Point{minLon, minLat},
		Max: orb.Point{maxLon, maxLat},
	}, nil
}
