package domain

import "math"

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both components are finite and within range.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Near reports whether other lies within the given degree radius of c,
// measured as straight-line distance in degree space. Used for cache-key
// granularity, where ~0.01 degrees is close enough to share a forecast.
func (c Coordinates) Near(other Coordinates, degrees float64) bool {
	return math.Hypot(c.Lat-other.Lat, c.Lon-other.Lon) < degrees
}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance between two
// coordinate pairs in kilometers.
func DistanceKm(a, b Coordinates) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Pow(math.Sin(dLon/2), 2)

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
