// Package geo provides great-circle helpers for signal placement and
// corridor routing.
package geo

import "math"

// earthRadiusKm is the mean Earth radius used for haversine distances.
const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DistanceKm returns the haversine great-circle distance between two
// points in kilometers.
func DistanceKm(a, b Point) float64 {
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Latitude))*math.Cos(radians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Midpoint returns the arithmetic midpoint of two points. Good enough for
// the short routes corridors cover; not a geodesic midpoint.
func Midpoint(a, b Point) Point {
	return Point{
		Latitude:  (a.Latitude + b.Latitude) / 2,
		Longitude: (a.Longitude + b.Longitude) / 2,
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
