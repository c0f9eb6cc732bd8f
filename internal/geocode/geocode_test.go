package geocode

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestGeohashRoundTrip(t *testing.T) {
	cases := []struct {
		lon, lat  float64
		precision int
	}{
		{-122.4194, 37.7749, 5},
		{-122.4194, 37.7749, 9},
		{0, 0, 6},
		{179.9, -89.9, 7},
	}

	for _, c := range cases {
		code, err := Geohash{}.Encode(c.lon, c.lat, c.precision)
		if err != nil {
			t.Fatalf("encode(%f,%f,%d): %v", c.lon, c.lat, c.precision, err)
		}
		if len(code) != c.precision {
			t.Fatalf("expected code length %d, got %d (%q)", c.precision, len(code), code)
		}
		bounds, err := Geohash{}.Bounds(code)
		if err != nil {
			t.Fatalf("bounds(%q): %v", code, err)
		}
		if c.lon < bounds.Min[0] || c.lon > bounds.Max[0] || c.lat < bounds.Min[1] || c.lat > bounds.Max[1] {
			t.Fatalf("decoded bounds %+v do not contain (%f,%f)", bounds, c.lon, c.lat)
		}
	}
}

func TestQuadTileRoundTrip(t *testing.T) {
	cases := []struct {
		lon, lat  float64
		precision int
	}{
		{-122.4194, 37.7749, 4},
		{-122.4194, 37.7749, 12},
		{0.1, 0.1, 8},
	}

	for _, c := range cases {
		code, err := QuadTile{}.Encode(c.lon, c.lat, c.precision)
		if err != nil {
			t.Fatalf("encode(%f,%f,%d): %v", c.lon, c.lat, c.precision, err)
		}
		if len(code) != c.precision {
			t.Fatalf("expected code length %d, got %d (%q)", c.precision, len(code), code)
		}
		bounds, err := QuadTile{}.Bounds(code)
		if err != nil {
			t.Fatalf("bounds(%q): %v", code, err)
		}
		if c.lon < bounds.Min[0] || c.lon > bounds.Max[0] || c.lat < bounds.Min[1] || c.lat > bounds.Max[1] {
			t.Fatalf("decoded bounds %+v do not contain (%f,%f)", bounds, c.lon, c.lat)
		}
	}
}

func TestGeohashNestedPrefix(t *testing.T) {
	long, err := Geohash{}.Encode(-122.4194, 37.7749, 9)
	if err != nil {
		t.Fatal(err)
	}
	short, err := Geohash{}.Encode(-122.4194, 37.7749, 4)
	if err != nil {
		t.Fatal(err)
	}
	if long[:4] != short {
		t.Fatalf("expected prefix %q, got %q", short, long[:4])
	}
}

func TestCoverIntersectsBBox(t *testing.T) {
	enc := Geohash{}
	bbox, err := enc.Bounds("9q8y")
	if err != nil {
		t.Fatal(err)
	}
	windows, err := Cover(enc, bbox, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(windows) == 0 {
		t.Fatal("expected at least one window covering the bbox")
	}
	for _, w := range windows {
		if len(w.Code) != 5 {
			t.Fatalf("expected precision-5 codes, got %q", w.Code)
		}
		if w.Code[:4] != "9q8y" {
			t.Fatalf("expected window %q to nest under 9q8y", w.Code)
		}
	}
}

func TestCoverQuadTileHighLatitude(t *testing.T) {
	enc := QuadTile{}
	precision := 8
	bbox := orb.Bound{
		Min: orb.Point{10, 70},
		Max: orb.Point{11, 80},
	}

	windows, err := Cover(enc, bbox, precision)
	if err != nil {
		t.Fatal(err)
	}
	if len(windows) == 0 {
		t.Fatal("expected at least one window for a high-latitude bbox, QuadTile's y axis must not be treated as latitude-linear")
	}
	for _, w := range windows {
		if !w.Bounds.Intersects(bbox) {
			t.Fatalf("window %q bounds %+v do not intersect bbox %+v", w.Code, w.Bounds, bbox)
		}
	}
}
