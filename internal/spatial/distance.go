package spatial

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
	EarthRadiusKm     = 6371.0    // Earth's mean radius in kilometers
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return angleToMeters(p1.Distance(p2))
}

// ValidCoordinate reports whether lat lies in [-90, 90] and lon in [-180, 180].
func ValidCoordinate(lat, lon float64) bool {
	return s2.LatLngFromDegrees(lat, lon).IsValid()
}

// PathLength sums the great-circle distance between consecutive points, in meters.
func PathLength(points []s2.LatLng) float64 {
	var total s1.Angle
	for i := 1; i < len(points); i++ {
		total += points[i-1].Distance(points[i])
	}
	return angleToMeters(total)
}

func angleToMeters(a s1.Angle) float64 {
	return a.Radians() * EarthRadiusMeters
}
