package usecases

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

// MonitorConfig holds the sampling intervals and thresholds of the
// performance monitor.
type MonitorConfig struct {
	FPSCheckInterval   time.Duration
	MemCheckInterval   time.Duration
	ReportInterval     time.Duration
	LowFPSThreshold    float64
	HighMemoryMB       float64
	CriticalMemoryMB   float64
	SlowRenderMS       float64
	MobileStationLimit int
}

// DefaultMonitorConfig returns the production thresholds.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		FPSCheckInterval:   1 * time.Second,
		MemCheckInterval:   5 * time.Second,
		ReportInterval:     30 * time.Second,
		LowFPSThreshold:    20,
		HighMemoryMB:       80,
		CriticalMemoryMB:   100,
		SlowRenderMS:       16,
		MobileStationLimit: 100,
	}
}

// PerformanceMonitor samples frame rate, heap usage, and render timing for
// one session and raises deduplicated warnings plus periodic reports. It
// observes rendering but never controls it; consumers react through the
// callbacks. All sampling loops stop cleanly on Stop.
type PerformanceMonitor struct {
	cfg     MonitorConfig
	profile domain.DeviceProfile
	log     *slog.Logger

	onWarning func(domain.Warning)
	onReport  func(domain.PerformanceReport)

	mu           sync.Mutex
	frames       []time.Time
	clientHeapMB float64
	clientHeapAt time.Time
	fps          float64
	heapMB       float64
	lastRenderMS float64
	stationCount int
	statsSource  func() domain.RenderStats
	active       map[domain.WarningType]domain.Warning
	renders      map[string]time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPerformanceMonitor creates a monitor for the given device profile.
func NewPerformanceMonitor(cfg MonitorConfig, profile domain.DeviceProfile) *PerformanceMonitor {
	return &PerformanceMonitor{
		cfg:     cfg,
		profile: profile,
		log:     slog.Default().With("component", "performance_monitor"),
		active:  make(map[domain.WarningType]domain.Warning),
		renders: make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
}

// OnWarning registers the warning callback. Warnings are deduplicated per
// type: a second breach of the same kind stays silent until ClearWarning.
func (pm *PerformanceMonitor) OnWarning(fn func(domain.Warning)) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.onWarning = fn
}

// OnReport registers the periodic report callback.
func (pm *PerformanceMonitor) OnReport(fn func(domain.PerformanceReport)) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.onReport = fn
}

// SetStatsSource wires a render-state snapshot provider so reports can
// carry the overlay/cluster counts.
func (pm *PerformanceMonitor) SetStatsSource(fn func() domain.RenderStats) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.statsSource = fn
}

// Start launches the sampling loops.
func (pm *PerformanceMonitor) Start() {
	pm.wg.Add(3)
	go pm.loop(pm.cfg.FPSCheckInterval, pm.checkFPS)
	go pm.loop(pm.cfg.MemCheckInterval, pm.checkMemory)
	go pm.loop(pm.cfg.ReportInterval, pm.emitReport)
}

// Stop cancels every sampling loop and waits for them to exit. The monitor
// must not be reused afterwards.
func (pm *PerformanceMonitor) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stop)
	})
	pm.wg.Wait()
}

func (pm *PerformanceMonitor) loop(interval time.Duration, tick func()) {
	defer pm.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tick()
		case <-pm.stop:
			return
		}
	}
}

// ObserveFrame records one client frame timestamp.
func (pm *PerformanceMonitor) ObserveFrame(t time.Time) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.frames = append(pm.frames, t)
	if len(pm.frames) > 240 {
		pm.frames = pm.frames[len(pm.frames)-240:]
	}
}

// ObserveHeap records a client-reported heap sample in MB.
func (pm *PerformanceMonitor) ObserveHeap(mb float64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.clientHeapMB = mb
	pm.clientHeapAt = time.Now()
}

// SetStationCount updates the tracked station count and checks the mobile
// station limit.
func (pm *PerformanceMonitor) SetStationCount(n int) {
	pm.mu.Lock()
	pm.stationCount = n
	tooMany := pm.profile.Mobile() && n > pm.cfg.MobileStationLimit
	pm.mu.Unlock()

	if tooMany {
		pm.warn(domain.WarningTooManyStations,
			fmt.Sprintf("%d stations tracked on a mobile device (limit %d)", n, pm.cfg.MobileStationLimit))
	}
}

// StartRender marks the beginning of a named render operation.
func (pm *PerformanceMonitor) StartRender(name string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.renders[name] = time.Now()
}

// EndRender closes a render bracket and returns the duration in ms.
// Durations beyond the 60fps budget raise a slow-render warning.
func (pm *PerformanceMonitor) EndRender(name string) float64 {
	pm.mu.Lock()
	start, ok := pm.renders[name]
	delete(pm.renders, name)
	if !ok {
		pm.mu.Unlock()
		return 0
	}
	ms := float64(time.Since(start).Microseconds()) / 1000
	pm.lastRenderMS = ms
	slow := ms > pm.cfg.SlowRenderMS
	pm.mu.Unlock()

	if slow {
		pm.warn(domain.WarningSlowRender,
			fmt.Sprintf("render %q took %.1fms (budget %.0fms)", name, ms, pm.cfg.SlowRenderMS))
	}
	return ms
}

// ClearWarning re-arms a warning type so the next breach fires again.
func (pm *PerformanceMonitor) ClearWarning(t domain.WarningType) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.active, t)
}

// ActiveWarnings returns the currently raised warnings.
func (pm *PerformanceMonitor) ActiveWarnings() []domain.Warning {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]domain.Warning, 0, len(pm.active))
	for _, w := range pm.active {
		out = append(out, w)
	}
	return out
}

// Metrics returns the current sample snapshot.
func (pm *PerformanceMonitor) Metrics() domain.PerformanceMetrics {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.metricsLocked()
}

func (pm *PerformanceMonitor) metricsLocked() domain.PerformanceMetrics {
	m := domain.PerformanceMetrics{
		FPS:          pm.fps,
		HeapUsedMB:   pm.heapMB,
		LastRenderMS: pm.lastRenderMS,
		StationCount: pm.stationCount,
	}
	if pm.statsSource != nil {
		rs := pm.statsSource()
		m.RenderedOverlays = rs.RenderedOverlays
		m.RenderedClusters = rs.RenderedClusters
	}
	return m
}

// checkFPS derives the frame rate from the frame timestamps seen inside
// the last check interval. No frames means no reading, not zero fps.
func (pm *PerformanceMonitor) checkFPS() {
	cutoff := time.Now().Add(-pm.cfg.FPSCheckInterval)

	pm.mu.Lock()
	n := 0
	for _, t := range pm.frames {
		if t.After(cutoff) {
			n++
		}
	}
	if n == 0 && len(pm.frames) == 0 {
		pm.mu.Unlock()
		return
	}
	pm.fps = float64(n) / pm.cfg.FPSCheckInterval.Seconds()
	fps := pm.fps
	pm.mu.Unlock()

	if fps < pm.cfg.LowFPSThreshold {
		pm.warn(domain.WarningLowFPS,
			fmt.Sprintf("frame rate %.0f fps below threshold %.0f", fps, pm.cfg.LowFPSThreshold))
	}
}

// checkMemory prefers a fresh client-reported heap sample and falls back
// to the process heap when the client exposes no introspection.
func (pm *PerformanceMonitor) checkMemory() {
	pm.mu.Lock()
	var mb float64
	if !pm.clientHeapAt.IsZero() && time.Since(pm.clientHeapAt) < 2*pm.cfg.MemCheckInterval {
		mb = pm.clientHeapMB
	} else {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		mb = float64(ms.HeapAlloc) / (1024 * 1024)
	}
	pm.heapMB = mb
	pm.mu.Unlock()

	switch {
	case mb > pm.cfg.CriticalMemoryMB:
		pm.warn(domain.WarningCriticalMemory,
			fmt.Sprintf("heap %.1fMB above critical threshold %.0fMB", mb, pm.cfg.CriticalMemoryMB))
	case mb > pm.cfg.HighMemoryMB:
		pm.warn(domain.WarningHighMemory,
			fmt.Sprintf("heap %.1fMB above threshold %.0fMB", mb, pm.cfg.HighMemoryMB))
	}
}

// emitReport builds the periodic structured report. Recommendations come
// from the current metrics alone, not from which warnings happen to be
// active.
func (pm *PerformanceMonitor) emitReport() {
	pm.mu.Lock()
	metrics := pm.metricsLocked()
	warnings := make([]domain.Warning, 0, len(pm.active))
	for _, w := range pm.active {
		warnings = append(warnings, w)
	}
	reportFn := pm.onReport
	pm.mu.Unlock()

	report := domain.PerformanceReport{
		GeneratedAt:     time.Now(),
		Metrics:         metrics,
		Warnings:        warnings,
		Recommendations: pm.recommendations(metrics),
	}

	if reportFn != nil {
		reportFn(report)
	}
}

func (pm *PerformanceMonitor) recommendations(m domain.PerformanceMetrics) []string {
	var recs []string
	if m.FPS > 0 && m.FPS < pm.cfg.LowFPSThreshold {
		recs = append(recs, "enable clustering to reduce marker count")
	}
	if m.HeapUsedMB > pm.cfg.HighMemoryMB {
		recs = append(recs, "lower compression quality to reduce overlay memory")
	}
	if m.LastRenderMS > pm.cfg.SlowRenderMS {
		recs = append(recs, "disable animations to shorten render passes")
	}
	if pm.profile.Mobile() && m.StationCount > pm.cfg.MobileStationLimit {
		recs = append(recs, "enable progressive loading for large station sets")
	}
	return recs
}

// warn raises a warning once per type until it is cleared.
func (pm *PerformanceMonitor) warn(t domain.WarningType, msg string) {
	pm.mu.Lock()
	if _, exists := pm.active[t]; exists {
		pm.mu.Unlock()
		return
	}
	w := domain.Warning{Type: t, Message: msg, RaisedAt: time.Now()}
	pm.active[t] = w
	fn := pm.onWarning
	pm.mu.Unlock()

	pm.log.Warn("performance warning", "type", string(t), "message", msg)
	if fn != nil {
		fn(w)
	}
}
