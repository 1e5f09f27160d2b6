// Package geo provides great-circle distance computation used by the
// merge-bucket resolver. All functions are pure and hold no state.
package geo

import "math"

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// zeroEpsilon bounds the region around (0,0) treated as an unknown
// coordinate. Imports that lack real coordinates store zeros, and a
// zero pair must never act as a merge anchor.
const zeroEpsilon = 1e-6

// DistanceKm returns the haversine great-circle distance in kilometres
// between two coordinate pairs expressed in decimal degrees.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Known reports whether a coordinate pair carries real location data.
// A pair with both components within epsilon of zero is "unknown".
func Known(lat, lng float64) bool {
	return math.Abs(lat) > zeroEpsilon || math.Abs(lng) > zeroEpsilon
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
