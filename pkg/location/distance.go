package location

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6371000

	// DefaultThresholdMeters is the proximity radius used when none is configured.
	DefaultThresholdMeters = 50.0
)

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Coordinate) float64 {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h marginally past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// IsWithin reports whether marker lies within thresholdMeters of position.
// The boundary is inclusive.
func IsWithin(position, marker Coordinate, thresholdMeters float64) bool {
	return Distance(position, marker) <= thresholdMeters
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
