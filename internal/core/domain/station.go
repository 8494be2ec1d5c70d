package domain

import "time"

// Station is a broadcast station with a geo-bounded coverage image.
type Station struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Bounds             LatLngBounds `json:"bounds"`
	ImageURL           string       `json:"image_url"`
	Visible            bool         `json:"visible"`
	CompressedImageURL string       `json:"compressed_image_url,omitempty"` // derived cache field, optional
	CreatedAt          time.Time    `json:"created_at"`
}

// TechnicalData is a point record describing a station's transmitter.
type TechnicalData struct {
	ID          string    `json:"id"`
	StationName string    `json:"station_name"`
	StationType string    `json:"station_type"`
	Owner       string    `json:"owner"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	AntennaType string    `json:"antenna_type,omitempty"`
	HeightM     float64   `json:"height_m,omitempty"`
	PowerKW     float64   `json:"power_kw,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasLocation reports whether the record carries real coordinates. A
// 0,0 pair marks a record that was never geocoded and is excluded from
// rendering and search.
func (t TechnicalData) HasLocation() bool {
	return !(t.Latitude == 0 && t.Longitude == 0)
}

// StationLike is a tagged union over the two marker kinds on the map.
// Exactly one of the two fields is set.
type StationLike struct {
	Coverage  *Station
	Technical *TechnicalData
}

// CoverageStation wraps a coverage station.
func CoverageStation(s Station) StationLike {
	return StationLike{Coverage: &s}
}

// TechnicalStation wraps a technical point record.
func TechnicalStation(t TechnicalData) StationLike {
	return StationLike{Technical: &t}
}

// Point returns the representative map position: the bounds centroid for a
// coverage station, the transmitter coordinates for a technical record.
// ok is false for technical records without a location.
func (sl StationLike) Point() (p GeoPoint, ok bool) {
	switch {
	case sl.Coverage != nil:
		return sl.Coverage.Bounds.Center(), true
	case sl.Technical != nil:
		if !sl.Technical.HasLocation() {
			return GeoPoint{}, false
		}
		return GeoPoint{Lat: sl.Technical.Latitude, Lng: sl.Technical.Longitude}, true
	}
	return GeoPoint{}, false
}
