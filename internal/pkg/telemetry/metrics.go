package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Rendering health
	MetricSessionFPS      = "render.session_fps"
	MetricOverlayFailRate = "render.overlay_failure_rate"
	MetricViewportSettle  = "render.viewport_settle_ms"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricStationsServed  = "business.stations_served"
	MetricCompressionLagS = "business.compression_lag_seconds"
)
