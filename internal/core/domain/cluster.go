package domain

// ClusterPoint is a single station projected to a map point for the
// clustering index: the centroid of its coverage bounds plus the display
// attributes the renderer needs.
type ClusterPoint struct {
	StationID          string   `json:"station_id"`
	Name               string   `json:"name"`
	Location           GeoPoint `json:"location"`
	Area               float64  `json:"area"` // bounding-box area in square degrees
	ImageURL           string   `json:"image_url"`
	CompressedImageURL string   `json:"compressed_image_url,omitempty"`
}

// Cluster is an ephemeral aggregate of two or more nearby stations at a
// given zoom. It does not survive the next index query.
type Cluster struct {
	ID         uint64   `json:"id"`
	Location   GeoPoint `json:"location"` // weighted centroid
	Count      int      `json:"point_count"`
	NameSample []string `json:"name_sample,omitempty"` // up to 3 names, traversal order
	TotalArea  float64  `json:"total_area"`
}

// OverlaySpec describes a georeferenced coverage image for the map surface.
type OverlaySpec struct {
	StationID string       `json:"station_id"`
	Bounds    LatLngBounds `json:"bounds"`
	ImageURL  string       `json:"image_url"`
	Opacity   float64      `json:"opacity"`
}

// ClusterMarkerSpec describes a cluster marker for the map surface.
type ClusterMarkerSpec struct {
	ClusterID uint64   `json:"cluster_id"`
	Location  GeoPoint `json:"location"`
	Count     int      `json:"count"`
	SizePX    int      `json:"size_px"`
	Color     string   `json:"color"`
	Tooltip   string   `json:"tooltip,omitempty"`
}
