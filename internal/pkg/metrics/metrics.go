package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyview",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skyview",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Rendering metrics
	OverlaysRendered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyview",
		Subsystem: "render",
		Name:      "overlays_rendered_total",
		Help:      "Total coverage overlays successfully loaded onto a map",
	})

	OverlayLoadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyview",
		Subsystem: "render",
		Name:      "overlay_load_failures_total",
		Help:      "Total overlay image loads that failed and were evicted",
	})

	ClustersRendered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyview",
		Subsystem: "render",
		Name:      "clusters_rendered_total",
		Help:      "Total cluster markers placed on maps",
	})

	ViewportUpdates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skyview",
		Subsystem: "render",
		Name:      "viewport_update_duration_seconds",
		Help:      "Duration of a debounced viewport recompute",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.016, 0.05, 0.1, 0.5},
	})

	PerformanceWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyview",
		Subsystem: "perf",
		Name:      "warnings_total",
		Help:      "Total performance warnings raised across sessions",
	}, []string{"type"})

	SessionFPS = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skyview",
		Subsystem: "perf",
		Name:      "session_fps",
		Help:      "Client-reported frame rates at check time",
		Buckets:   []float64{5, 10, 15, 20, 30, 45, 60},
	})

	CompressionJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyview",
		Subsystem: "images",
		Name:      "compression_jobs_total",
		Help:      "Total coverage image compression jobs by outcome",
	}, []string{"outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyview",
		Subsystem: "ws",
		Name:      "active_sessions",
		Help:      "Current number of active map sessions",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyview",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyview",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyview",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyview",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyview",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool gauges from pgx pool stats.
// The interface keeps pgxpool out of this package's imports.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
