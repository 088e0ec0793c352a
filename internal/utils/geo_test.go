package utils

import (
	"math"
	"testing"
)

func TestCentroid(t *testing.T) {
	lat, lon, ok := Centroid([]float64{36, 34}, []float64{2, 4})
	if !ok || lat != 35 || lon != 3 {
		t.Errorf("Centroid = (%v, %v, %v), want (35, 3, true)", lat, lon, ok)
	}

	if _, _, ok := Centroid(nil, nil); ok {
		t.Error("empty input must return ok=false")
	}

	// extra latitudes beyond the shorter list are ignored
	lat, _, ok = Centroid([]float64{10, 20, 99}, []float64{0, 0})
	if !ok || lat != 15 {
		t.Errorf("Centroid with uneven lists = %v, want 15", lat)
	}
}

func TestHaversineKm(t *testing.T) {
	// Algiers to Oran, roughly 355 km
	d := HaversineKm(36.7538, 3.0588, 35.6971, -0.6308)
	if math.Abs(d-355) > 15 {
		t.Errorf("HaversineKm = %v, want ~355", d)
	}

	if d := HaversineKm(36.75, 3.05, 36.75, 3.05); d != 0 {
		t.Errorf("zero distance = %v", d)
	}
}

func TestNearestRegion(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     string
	}{
		{35.40, 1.30, "Tiaret"},
		{36.76, 3.00, "Algiers"},
		{27.90, -0.30, "Adrar"},
	}

	for _, tc := range cases {
		if got := NearestRegion(tc.lat, tc.lon); got != tc.want {
			t.Errorf("NearestRegion(%v, %v) = %q, want %q", tc.lat, tc.lon, got, tc.want)
		}
	}
}

func TestBoundsAround(t *testing.T) {
	box := BoundsAround(36.75, 3.05, 50)

	if box.MinLat >= 36.75 || box.MaxLat <= 36.75 || box.MinLon >= 3.05 || box.MaxLon <= 3.05 {
		t.Errorf("box does not contain center: %+v", box)
	}

	// the box must cover the stated radius along each axis
	if d := HaversineKm(36.75, 3.05, box.MaxLat, 3.05); d < 49 {
		t.Errorf("north edge only %v km away", d)
	}
	if d := HaversineKm(36.75, 3.05, 36.75, box.MaxLon); d < 49 {
		t.Errorf("east edge only %v km away", d)
	}
}
