package domain

import "math"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LatLngBounds is a geographic rectangle given by its SW and NE corners.
type LatLngBounds struct {
	SW GeoPoint `json:"sw"`
	NE GeoPoint `json:"ne"`
}

// Center returns the centroid of the bounds.
func (b LatLngBounds) Center() GeoPoint {
	return GeoPoint{
		Lat: (b.SW.Lat + b.NE.Lat) / 2,
		Lng: (b.SW.Lng + b.NE.Lng) / 2,
	}
}

// Area returns the bounding-box area in square degrees. A degenerate
// (zero-area) box is valid and returns 0.
func (b LatLngBounds) Area() float64 {
	return math.Abs(b.NE.Lat-b.SW.Lat) * math.Abs(b.NE.Lng-b.SW.Lng)
}

// Valid reports whether both corners carry usable coordinates. Inverted
// corners (SW above NE) are not rejected here; upstream data quality owns
// that invariant.
func (b LatLngBounds) Valid() bool {
	return validCoordinate(b.SW.Lat, b.SW.Lng) && validCoordinate(b.NE.Lat, b.NE.Lng)
}

func validCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Viewport is the current map view in degrees, plus zoom and center.
type Viewport struct {
	North  float64  `json:"north"`
	South  float64  `json:"south"`
	East   float64  `json:"east"`
	West   float64  `json:"west"`
	Zoom   float64  `json:"zoom"`
	Center GeoPoint `json:"center"`
}

// Contains reports whether p falls inside the viewport rectangle.
func (v Viewport) Contains(p GeoPoint) bool {
	return p.Lat <= v.North && p.Lat >= v.South &&
		p.Lng <= v.East && p.Lng >= v.West
}

// Buffered expands the viewport by frac per axis (0.2 = 20%), keeping zoom
// and center. Latitudes are clamped to the valid range; longitudes are not
// wrapped — viewports spanning the antimeridian are out of scope.
func (v Viewport) Buffered(frac float64) Viewport {
	latPad := (v.North - v.South) * frac
	lngPad := (v.East - v.West) * frac

	out := v
	out.North = math.Min(90, v.North+latPad)
	out.South = math.Max(-90, v.South-latPad)
	out.East = v.East + lngPad
	out.West = v.West - lngPad
	return out
}
