package matching

import (
	"math"

	"carejoa-matching/internal/models"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Distance returns the great-circle distance in kilometers. NaN inputs
// yield NaN, which callers treat as an unknown distance.
func Distance(a, b models.Coordinate) float64 {
	if math.IsNaN(a.Lat) || math.IsNaN(a.Lng) || math.IsNaN(b.Lat) || math.IsNaN(b.Lng) {
		return math.NaN()
	}

	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// roundTo1 rounds a distance for display.
func roundTo1(km float64) float64 {
	return math.Round(km*10) / 10
}
