package geospatial

import (
	"math"
	"testing"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

func TestHaversine(t *testing.T) {
	// Bangkok (Victory Monument) to Don Mueang airport, roughly 16km.
	d := Haversine(13.7649, 100.5383, 13.9126, 100.6068)
	if d < 15000 || d > 19000 {
		t.Errorf("expected ~16-18km, got %.0fm", d)
	}

	if d := Haversine(14.0, 100.5, 14.0, 100.5); d != 0 {
		t.Errorf("identical points should be 0m apart, got %f", d)
	}
}

func TestBearing(t *testing.T) {
	// Due north and due east at the equator.
	if b := Bearing(0, 0, 1, 0); math.Abs(b-0) > 0.5 {
		t.Errorf("expected bearing ~0 going north, got %f", b)
	}
	if b := Bearing(0, 0, 0, 1); math.Abs(b-90) > 0.5 {
		t.Errorf("expected bearing ~90 going east, got %f", b)
	}
	if b := Bearing(1, 0, 0, 0); math.Abs(b-180) > 0.5 {
		t.Errorf("expected bearing ~180 going south, got %f", b)
	}
}

func TestDegreeDistance(t *testing.T) {
	a := domain.GeoPoint{Lat: 14, Lng: 100}
	b := domain.GeoPoint{Lat: 17, Lng: 104}
	if d := DegreeDistance(a, b); math.Abs(d-5) > 1e-9 {
		t.Errorf("expected 3-4-5 triangle distance 5, got %f", d)
	}
	if d := DegreeDistance(a, a); d != 0 {
		t.Errorf("expected 0 for identical points, got %f", d)
	}
}

func TestBoundingBox(t *testing.T) {
	b := BoundingBox(14.0, 100.5, 10000)
	if !(b.SW.Lat < 14.0 && 14.0 < b.NE.Lat) {
		t.Errorf("latitude range does not bracket the center: %+v", b)
	}
	if !(b.SW.Lng < 100.5 && 100.5 < b.NE.Lng) {
		t.Errorf("longitude range does not bracket the center: %+v", b)
	}

	// 10km should be within a degree at this latitude.
	if b.NE.Lat-b.SW.Lat > 1 || b.NE.Lng-b.SW.Lng > 1 {
		t.Errorf("box implausibly large: %+v", b)
	}
}

func TestAccessibilityScore(t *testing.T) {
	from := domain.GeoPoint{Lat: 13.7563, Lng: 100.5018}

	near := domain.TechnicalData{Latitude: 13.76, Longitude: 100.51, HeightM: 50}
	far := domain.TechnicalData{Latitude: 18.79, Longitude: 98.98, HeightM: 50}

	ns := AccessibilityScore(from, near)
	fs := AccessibilityScore(from, far)
	if ns <= fs {
		t.Errorf("nearby site should score higher: near %f, far %f", ns, fs)
	}
	if ns < 0 || ns > 1 || fs < 0 || fs > 1 {
		t.Errorf("scores out of range: %f, %f", ns, fs)
	}

	ungeo := domain.TechnicalData{Latitude: 0, Longitude: 0}
	if s := AccessibilityScore(from, ungeo); s != 0 {
		t.Errorf("expected 0 for a record without location, got %f", s)
	}
}
