package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/cluster"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/ports"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/geospatial"
)

const (
	bufferFraction     = 0.20
	overlayOpacity     = 0.6
	overlayLoadTimeout = 10 * time.Second
	clusterFlyDuration = 800 * time.Millisecond
)

// StationManager owns station rendering for one map session: it tracks the
// viewport, decides cluster-vs-individual rendering, applies the device
// marker cap, and progressively loads overlays in batches. The rendered
// sets it keeps are the single source of truth for what is on the map;
// nothing else adds or removes this class of handles.
type StationManager struct {
	surface ports.MapSurface
	events  ports.MapEventSource
	profile domain.DeviceProfile
	log     *slog.Logger

	mu               sync.Mutex
	settings         domain.PerformanceSettings
	stations         []domain.Station
	index            *cluster.Index
	rendered         map[string]bool // station id -> overlay materialized
	renderedClusters map[uint64]bool
	queue            []domain.Station // FIFO loading queue
	queued           map[string]bool
	draining         bool
	pending          *time.Timer
	cancels          []func()
	closed           bool
	desiredCount     int

	onOverlayError func(stationID string, err error)
}

// NewStationManager creates a manager for one session. Call Start to begin
// reacting to map events and Close to tear the subscriptions down.
func NewStationManager(
	surface ports.MapSurface,
	events ports.MapEventSource,
	profile domain.DeviceProfile,
	settings domain.PerformanceSettings,
) *StationManager {
	return &StationManager{
		surface:          surface,
		events:           events,
		profile:          profile,
		log:              slog.Default().With("component", "station_manager"),
		settings:         settings,
		index:            cluster.New(cluster.DefaultConfig()),
		rendered:         make(map[string]bool),
		renderedClusters: make(map[uint64]bool),
		queued:           make(map[string]bool),
	}
}

// OnOverlayError registers the callback invoked when an overlay fails to
// load. The overlay is already evicted when the callback fires; there is
// no automatic retry.
func (m *StationManager) OnOverlayError(fn func(stationID string, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOverlayError = fn
}

// Start subscribes to map settle events. Every event schedules a debounced
// recompute rather than running synchronously, so drag/zoom bursts coalesce
// into one pass.
func (m *StationManager) Start() error {
	for _, ev := range []ports.MapEvent{ports.EventMove, ports.EventZoom, ports.EventResize} {
		cancel, err := m.events.Subscribe(ev, func(domain.Viewport) {
			m.scheduleUpdate()
		})
		if err != nil {
			m.Close()
			return fmt.Errorf("subscribe map event %d: %w", ev, err)
		}
		m.mu.Lock()
		m.cancels = append(m.cancels, cancel)
		m.mu.Unlock()
	}
	return nil
}

// Close unsubscribes from map events, drops the pending recompute, and
// truncates the loading queue. In-flight overlay loads finish their batch.
func (m *StationManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.queue = nil
	m.queued = make(map[string]bool)
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	cancels := m.cancels
	m.cancels = nil
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// SetStations replaces the authoritative station list and recomputes the
// viewport immediately. A pending loading queue is superseded.
func (m *StationManager) SetStations(list []domain.Station) {
	m.mu.Lock()
	m.stations = list
	m.queue = nil
	m.queued = make(map[string]bool)
	if m.settings.EnableClustering {
		m.index = m.index.WithStations(list)
	}
	m.mu.Unlock()

	m.updateVisibleStations()
}

// SetClusteringEnabled toggles clustering and forces a rebuild so no stale
// handles survive the policy change.
func (m *StationManager) SetClusteringEnabled(enabled bool) {
	m.mu.Lock()
	m.settings.EnableClustering = enabled
	m.mu.Unlock()
	m.ForceUpdate()
}

// UpdateSettings replaces the performance settings and forces a rebuild.
func (m *StationManager) UpdateSettings(s domain.PerformanceSettings) {
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
	m.ForceUpdate()
}

// ForceUpdate clears every rendered handle, reloads the clusterer, and
// recomputes from scratch.
func (m *StationManager) ForceUpdate() {
	m.mu.Lock()
	m.queue = nil
	m.queued = make(map[string]bool)
	for id := range m.rendered {
		m.surface.RemoveImageOverlay(id)
		delete(m.rendered, id)
	}
	for id := range m.renderedClusters {
		m.surface.RemoveClusterMarker(id)
		delete(m.renderedClusters, id)
	}
	m.index = m.index.WithStations(m.stations)
	m.mu.Unlock()

	m.updateVisibleStations()
}

// HandleClusterClick resolves the cluster's expansion zoom and flies the
// viewport there. This is the only zoom-in path for clusters; leaf listing
// lives in the analysis panel, not on the map.
func (m *StationManager) HandleClusterClick(clusterID uint64) {
	m.mu.Lock()
	index := m.index
	animate := m.settings.EnableAnimations
	m.mu.Unlock()

	leaves := index.GetLeaves(clusterID)
	if len(leaves) == 0 {
		return
	}

	var sumLat, sumLng float64
	for _, p := range leaves {
		sumLat += p.Location.Lat
		sumLng += p.Location.Lng
	}
	center := domain.GeoPoint{
		Lat: sumLat / float64(len(leaves)),
		Lng: sumLng / float64(len(leaves)),
	}

	duration := clusterFlyDuration
	if !animate {
		duration = 0
	}
	m.surface.FlyTo(center, float64(index.ExpansionZoom(clusterID)), duration)
}

// Stats returns a snapshot of the manager's rendering state.
func (m *StationManager) Stats() domain.RenderStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	vp := m.surface.Viewport()
	return domain.RenderStats{
		TotalStations:     len(m.stations),
		VisibleStations:   m.desiredCount,
		RenderedOverlays:  len(m.rendered),
		RenderedClusters:  len(m.renderedClusters),
		QueuedStations:    len(m.queue),
		DeviceType:        m.profile.Type,
		Tier:              m.profile.Tier,
		MarkerCap:         m.settings.MaxVisibleMarkers,
		ClusteringEnabled: m.settings.EnableClustering,
		ClusteringActive:  m.settings.EnableClustering && m.index.ShouldCluster(vp.Zoom),
	}
}

// scheduleUpdate coalesces recompute requests into a single pending slot:
// a new request replaces any unfired prior one, so at most one recompute
// is pending per settle burst. A recompute already running is not
// cancelled; the clear-before-render step keeps overlap harmless.
func (m *StationManager) scheduleUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.pending != nil {
		m.pending.Stop()
	}
	m.pending = time.AfterFunc(m.settings.DebounceDelay, m.updateVisibleStations)
}

// updateVisibleStations is the central recompute: it rebuilds the desired
// marker set from the buffered viewport, rebuilds cluster markers from
// scratch, applies removals synchronously, and queues additions for the
// progressive loader. Removals always land before any new overlay starts
// loading, so the same station never holds doubled memory.
func (m *StationManager) updateVisibleStations() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	vp := m.surface.Viewport()
	buffered := vp.Buffered(bufferFraction)

	// Cluster markers never survive a settle; they are cheap and the
	// underlying groups shift with every zoom change.
	for id := range m.renderedClusters {
		m.surface.RemoveClusterMarker(id)
		delete(m.renderedClusters, id)
	}

	var desired []domain.Station
	if m.settings.EnableClustering && m.index.ShouldCluster(vp.Zoom) {
		desired = m.renderClustersLocked(buffered, vp.Zoom)
	} else {
		desired = m.cappedCandidatesLocked(buffered, vp.Center)
	}
	m.desiredCount = len(desired)

	desiredSet := make(map[string]bool, len(desired))
	for _, s := range desired {
		desiredSet[s.ID] = true
	}

	// Removals first, synchronously.
	for id := range m.rendered {
		if !desiredSet[id] {
			m.surface.RemoveImageOverlay(id)
			delete(m.rendered, id)
		}
	}

	// Drop queued stations that fell out of the desired set.
	if len(m.queue) > 0 {
		kept := m.queue[:0]
		for _, s := range m.queue {
			if desiredSet[s.ID] {
				kept = append(kept, s)
			} else {
				delete(m.queued, s.ID)
			}
		}
		m.queue = kept
	}

	// New additions join the FIFO queue in candidate order.
	enqueued := false
	for _, s := range desired {
		if m.rendered[s.ID] || m.queued[s.ID] {
			continue
		}
		m.queue = append(m.queue, s)
		m.queued[s.ID] = true
		enqueued = true
	}

	startDrain := enqueued && !m.draining
	if startDrain {
		m.draining = true
	}
	m.mu.Unlock()

	if startDrain {
		go m.drainQueue()
	}
}

// renderClustersLocked queries the clusterer, renders one marker per
// cluster, and returns the non-clustered points as individual candidates.
// Caller holds m.mu.
func (m *StationManager) renderClustersLocked(buffered domain.Viewport, zoom float64) []domain.Station {
	clusters, points := m.index.GetClusters(buffered, zoom)

	for _, c := range clusters {
		m.surface.AddClusterMarker(clusterMarkerSpec(c))
		m.renderedClusters[c.ID] = true
	}

	byID := make(map[string]domain.Station, len(m.stations))
	for _, s := range m.stations {
		byID[s.ID] = s
	}

	var desired []domain.Station
	for _, p := range points {
		if s, ok := byID[p.StationID]; ok {
			desired = append(desired, s)
		}
	}
	return desired
}

// cappedCandidatesLocked filters stations to visible ones whose centroid
// falls inside the buffered viewport, then truncates to the device cap by
// ascending Euclidean degree distance from the viewport center. Distance
// is the only truncation policy; ties keep original order. Caller holds
// m.mu.
func (m *StationManager) cappedCandidatesLocked(buffered domain.Viewport, center domain.GeoPoint) []domain.Station {
	var candidates []domain.Station
	for _, s := range m.stations {
		if !s.Visible {
			continue
		}
		if !s.Bounds.Valid() {
			m.log.Debug("skipping station with invalid bounds", "station_id", s.ID)
			continue
		}
		if buffered.Contains(s.Bounds.Center()) {
			candidates = append(candidates, s)
		}
	}

	limit := m.settings.MaxVisibleMarkers
	if limit > 0 && len(candidates) > limit {
		sort.SliceStable(candidates, func(i, j int) bool {
			di := geospatial.DegreeDistance(candidates[i].Bounds.Center(), center)
			dj := geospatial.DegreeDistance(candidates[j].Bounds.Center(), center)
			return di < dj
		})
		candidates = candidates[:limit]
	}
	return candidates
}

// drainQueue loads queued overlays in fixed-size batches with a short
// inter-batch delay so the interactive thread is never starved. Within a
// batch loads run concurrently and fail independently. A superseding
// SetStations/ForceUpdate truncates the queue between batches, never
// mid-batch; the drainer itself runs until the queue is empty, so entries
// enqueued while a batch is in flight are always picked up.
func (m *StationManager) drainQueue() {
	for {
		m.mu.Lock()
		if m.closed || len(m.queue) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}

		n := m.settings.BatchSize
		if n <= 0 || !m.settings.EnableProgressiveLoading {
			n = len(m.queue)
		}
		if n > len(m.queue) {
			n = len(m.queue)
		}
		batch := make([]domain.Station, n)
		copy(batch, m.queue[:n])
		m.queue = m.queue[n:]
		delay := m.settings.BatchDelay
		progressive := m.settings.EnableProgressiveLoading
		m.mu.Unlock()

		var wg sync.WaitGroup
		for _, s := range batch {
			wg.Add(1)
			go func(st domain.Station) {
				defer wg.Done()
				m.addStationOverlay(st)
			}(s)
		}
		wg.Wait()

		if progressive {
			time.Sleep(delay)
		}
	}
}

// addStationOverlay creates the georeferenced image overlay for one
// station, preferring the compressed image when present. On load failure
// the overlay is evicted and the error callback fires; there is no retry.
func (m *StationManager) addStationOverlay(s domain.Station) {
	url := s.ImageURL
	if s.CompressedImageURL != "" {
		url = s.CompressedImageURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), overlayLoadTimeout)
	defer cancel()

	err := m.surface.AddImageOverlay(ctx, domain.OverlaySpec{
		StationID: s.ID,
		Bounds:    s.Bounds,
		ImageURL:  url,
		Opacity:   overlayOpacity,
	})

	m.mu.Lock()
	delete(m.queued, s.ID)
	if err == nil {
		m.rendered[s.ID] = true
		m.mu.Unlock()
		return
	}
	delete(m.rendered, s.ID)
	errFn := m.onOverlayError
	m.mu.Unlock()

	m.log.Warn("overlay load failed", "station_id", s.ID, "error", err)
	if errFn != nil {
		errFn(s.ID, err)
	}
}

// clusterMarkerSpec sizes and colors a cluster marker from its count:
// min(60, 30+2·sqrt(n)) px, colored by the count thresholds.
func clusterMarkerSpec(c domain.Cluster) domain.ClusterMarkerSpec {
	size := 30 + 2*math.Sqrt(float64(c.Count))
	if size > 60 {
		size = 60
	}

	color := "#3b82f6" // blue
	switch {
	case c.Count >= 50:
		color = "#ef4444" // red
	case c.Count >= 20:
		color = "#f97316" // orange
	case c.Count >= 10:
		color = "#eab308" // yellow
	}

	tooltip := fmt.Sprintf("%d stations", c.Count)
	if len(c.NameSample) > 0 {
		tooltip = fmt.Sprintf("%d stations: %s", c.Count, strings.Join(c.NameSample, ", "))
	}

	return domain.ClusterMarkerSpec{
		ClusterID: c.ID,
		Location:  c.Location,
		Count:     c.Count,
		SizePX:    int(size),
		Color:     color,
		Tooltip:   tooltip,
	}
}
