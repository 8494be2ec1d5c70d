package geospatial

import (
	"math"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Bearing returns the initial great-circle bearing from a to b in degrees,
// normalized to [0, 360).
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dLng := toRad(lng2 - lng1)

	y := math.Sin(dLng) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLng)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// DegreeDistance returns the plain Euclidean distance between two points in
// degrees. It is the ordering metric for viewport-center prioritization;
// great-circle accuracy is deliberately not needed there.
func DegreeDistance(a, b domain.GeoPoint) float64 {
	dLat := a.Lat - b.Lat
	dLng := a.Lng - b.Lng
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

// BoundingBox returns a box around a point with the given radius in meters.
func BoundingBox(lat, lng, radiusMeters float64) domain.LatLngBounds {
	latDelta := radiusMeters / 111320.0
	lngDelta := radiusMeters / (111320.0 * math.Cos(toRad(lat)))

	return domain.LatLngBounds{
		SW: domain.GeoPoint{Lat: lat - latDelta, Lng: lng - lngDelta},
		NE: domain.GeoPoint{Lat: lat + latDelta, Lng: lng + lngDelta},
	}
}

// AccessibilityScore rates how reachable a transmitter site is from a
// reference point, in [0, 1]. Closer sites and lower mast heights score
// higher; the 70/30 weighting is the survey-crew heuristic.
func AccessibilityScore(from domain.GeoPoint, t domain.TechnicalData) float64 {
	if !t.HasLocation() {
		return 0
	}

	distKm := Haversine(from.Lat, from.Lng, t.Latitude, t.Longitude) / 1000

	// 0 at 200km and beyond, 1 at the reference point.
	distScore := math.Max(0, 1-distKm/200)

	// 0 at 300m masts and above, 1 at ground level.
	heightScore := 1.0
	if t.HeightM > 0 {
		heightScore = math.Max(0, 1-t.HeightM/300)
	}

	return 0.7*distScore + 0.3*heightScore
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
