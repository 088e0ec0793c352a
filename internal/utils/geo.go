package utils

import "math"

const (
	earthRadiusKm = 6371
	degLatKm      = 111.32
)

// Centroid returns the arithmetic centroid of the paired coordinate lists.
// Extra entries in the longer list are ignored; empty input returns ok=false.
func Centroid(latitudes, longitudes []float64) (lat, lon float64, ok bool) {
	n := len(latitudes)
	if len(longitudes) < n {
		n = len(longitudes)
	}
	if n == 0 {
		return 0, 0, false
	}

	var latSum, lonSum float64
	for i := 0; i < n; i++ {
		latSum += latitudes[i]
		lonSum += longitudes[i]
	}
	return latSum / float64(n), lonSum / float64(n), true
}

type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// BoundsAround returns a rectangular bounding box of radiusKm around a point.
func BoundsAround(latitude, longitude, radiusKm float64) BoundingBox {
	deltaLat := radiusKm / degLatKm

	cosLat := math.Cos(toRadians(latitude))
	if cosLat == 0 {
		cosLat = 1e-6
	}
	deltaLon := radiusKm / (degLatKm * cosLat)

	return BoundingBox{
		MinLat: latitude - deltaLat,
		MaxLat: latitude + deltaLat,
		MinLon: longitude - deltaLon,
		MaxLon: longitude + deltaLon,
	}
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	r1 := toRadians(lat1)
	r2 := toRadians(lat2)

	hav := math.Pow(math.Sin(dLat/2), 2) +
		math.Pow(math.Sin(dLon/2), 2)*math.Cos(r1)*math.Cos(r2)
	c := 2 * math.Atan2(math.Sqrt(hav), math.Sqrt(1-hav))
	return earthRadiusKm * c
}

func toRadians(v float64) float64 { return v * math.Pi / 180 }

// wilayaCenters lists approximate centers of the wilayas the app's farmers
// report from most.
var wilayaCenters = []struct {
	Name string
	Lat  float64
	Lon  float64
}{
	{"Algiers", 36.75, 3.06},
	{"Oran", 35.70, -0.63},
	{"Constantine", 36.37, 6.61},
	{"Tiaret", 35.37, 1.32},
	{"Setif", 36.19, 5.41},
	{"Biskra", 34.85, 5.73},
	{"Annaba", 36.90, 7.77},
	{"Bechar", 31.62, -2.22},
	{"Ghardaia", 32.49, 3.67},
	{"Adrar", 27.87, -0.29},
}

// NearestRegion maps a GPS point to the closest known wilaya center.
func NearestRegion(latitude, longitude float64) string {
	best := ""
	bestKm := math.MaxFloat64
	for _, w := range wilayaCenters {
		if d := HaversineKm(latitude, longitude, w.Lat, w.Lon); d < bestKm {
			best = w.Name
			bestKm = d
		}
	}
	return best
}
