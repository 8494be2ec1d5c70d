package domain

import "time"

// WarningType identifies a performance threshold breach. Warnings are
// deduplicated per type until explicitly cleared.
type WarningType string

const (
	WarningLowFPS          WarningType = "low-fps"
	WarningHighMemory      WarningType = "high-memory"
	WarningCriticalMemory  WarningType = "critical-memory"
	WarningSlowRender      WarningType = "slow-render"
	WarningTooManyStations WarningType = "too-many-stations"
)

// Warning is a non-fatal performance signal surfaced to callbacks.
type Warning struct {
	Type     WarningType `json:"type"`
	Message  string      `json:"message"`
	RaisedAt time.Time   `json:"raised_at"`
}

// PerformanceMetrics is a point-in-time sample of a session's health.
type PerformanceMetrics struct {
	FPS              float64 `json:"fps"`
	HeapUsedMB       float64 `json:"heap_used_mb"`
	LastRenderMS     float64 `json:"last_render_ms"`
	StationCount     int     `json:"station_count"`
	RenderedOverlays int     `json:"rendered_overlays"`
	RenderedClusters int     `json:"rendered_clusters"`
}

// PerformanceReport is the periodic structured report emitted by the
// performance monitor. Recommendations are derived from the metrics alone,
// independent of which warnings are currently active.
type PerformanceReport struct {
	GeneratedAt     time.Time          `json:"generated_at"`
	Metrics         PerformanceMetrics `json:"metrics"`
	Warnings        []Warning          `json:"warnings"`
	Recommendations []string           `json:"recommendations"`
}

// RenderStats summarizes a station manager's current state for the UI.
type RenderStats struct {
	TotalStations     int             `json:"total_stations"`
	VisibleStations   int             `json:"visible_stations"`
	RenderedOverlays  int             `json:"rendered_overlays"`
	RenderedClusters  int             `json:"rendered_clusters"`
	QueuedStations    int             `json:"queued_stations"`
	DeviceType        DeviceType      `json:"device_type"`
	Tier              PerformanceTier `json:"tier"`
	MarkerCap         int             `json:"marker_cap"`
	ClusteringEnabled bool            `json:"clustering_enabled"`
	ClusteringActive  bool            `json:"clustering_active"`
}
