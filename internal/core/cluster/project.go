package cluster

import "math"

const (
	tileSize       = 256
	maxMercatorLat = 85.05112878
)

// project converts lat/lng to world-pixel coordinates at the given zoom
// (web mercator, origin at the north-west corner of the world).
func project(lat, lng float64, zoom int) (x, y float64) {
	scale := float64(tileSize) * math.Pow(2, float64(zoom))

	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	latRad := lat * math.Pi / 180

	x = (lng + 180) / 360 * scale
	y = (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * scale
	return x, y
}

// unproject converts world-pixel coordinates back to lat/lng.
func unproject(x, y float64, zoom int) (lat, lng float64) {
	scale := float64(tileSize) * math.Pow(2, float64(zoom))

	lng = x/scale*360 - 180

	n := math.Pi - 2*math.Pi*y/scale
	lat = 180 / math.Pi * math.Atan(0.5*(math.Exp(n)-math.Exp(-n)))
	return lat, lng
}
