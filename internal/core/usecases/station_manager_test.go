package usecases_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/ports"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/usecases"
)

// --- Mock MapSurface ---

type flyCall struct {
	center   domain.GeoPoint
	zoom     float64
	duration time.Duration
}

type mockSurface struct {
	mu       sync.Mutex
	vp       domain.Viewport
	addErr   map[string]error
	calls    []string // sequential log: "add:<id>", "remove:<id>", ...
	overlays map[string]domain.OverlaySpec
	markers  map[uint64]domain.ClusterMarkerSpec
	flights  []flyCall
}

func newMockSurface(vp domain.Viewport) *mockSurface {
	return &mockSurface{
		vp:       vp,
		overlays: make(map[string]domain.OverlaySpec),
		markers:  make(map[uint64]domain.ClusterMarkerSpec),
	}
}

func (m *mockSurface) Viewport() domain.Viewport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vp
}

func (m *mockSurface) setViewport(vp domain.Viewport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vp = vp
}

func (m *mockSurface) AddImageOverlay(ctx context.Context, spec domain.OverlaySpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "add:"+spec.StationID)
	if err, ok := m.addErr[spec.StationID]; ok {
		return err
	}
	m.overlays[spec.StationID] = spec
	return nil
}

func (m *mockSurface) RemoveImageOverlay(stationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "remove:"+stationID)
	delete(m.overlays, stationID)
}

func (m *mockSurface) AddClusterMarker(spec domain.ClusterMarkerSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("addcluster:%d", spec.ClusterID))
	m.markers[spec.ClusterID] = spec
}

func (m *mockSurface) RemoveClusterMarker(clusterID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("removecluster:%d", clusterID))
	delete(m.markers, clusterID)
}

func (m *mockSurface) FlyTo(center domain.GeoPoint, zoom float64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flights = append(m.flights, flyCall{center: center, zoom: zoom, duration: duration})
}

func (m *mockSurface) overlayIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.overlays))
	for id := range m.overlays {
		ids = append(ids, id)
	}
	return ids
}

func (m *mockSurface) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockSurface) resetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *mockSurface) markerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.markers)
}

// --- Mock MapEventSource ---

type mockEvents struct {
	mu   sync.Mutex
	subs map[ports.MapEvent][]func(domain.Viewport)
}

func newMockEvents() *mockEvents {
	return &mockEvents{subs: make(map[ports.MapEvent][]func(domain.Viewport))}
}

func (m *mockEvents) Subscribe(ev ports.MapEvent, fn func(domain.Viewport)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[ev] = append(m.subs[ev], fn)
	return func() {}, nil
}

func (m *mockEvents) fire(ev ports.MapEvent, vp domain.Viewport) {
	m.mu.Lock()
	fns := append([]func(domain.Viewport){}, m.subs[ev]...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(vp)
	}
}

// --- Helpers ---

func testViewport() domain.Viewport {
	return domain.Viewport{
		North: 14.5, South: 13.5, East: 101.0, West: 100.0,
		Zoom:   16,
		Center: domain.GeoPoint{Lat: 14.0, Lng: 100.5},
	}
}

func fastSettings() domain.PerformanceSettings {
	return domain.PerformanceSettings{
		MaxVisibleMarkers:        500,
		EnableClustering:         false,
		EnableProgressiveLoading: false,
		EnableAnimations:         true,
		DebounceDelay:            5 * time.Millisecond,
		BatchSize:                10,
		BatchDelay:               time.Millisecond,
	}
}

func stationAt(id string, lat, lng float64) domain.Station {
	return domain.Station{
		ID:      id,
		Name:    "Station " + id,
		Visible: true,
		Bounds: domain.LatLngBounds{
			SW: domain.GeoPoint{Lat: lat - 0.01, Lng: lng - 0.01},
			NE: domain.GeoPoint{Lat: lat + 0.01, Lng: lng + 0.01},
		},
		ImageURL: "https://img.example/" + id + ".png",
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// --- Tests ---

func TestStationManager_RendersAllUnderCap(t *testing.T) {
	surface := newMockSurface(testViewport())
	mgr := usecases.NewStationManager(surface, newMockEvents(), domain.DeviceProfile{Type: domain.DeviceDesktop, Tier: domain.TierHigh}, fastSettings())
	defer mgr.Close()

	mgr.SetStations([]domain.Station{
		stationAt("a", 14.0, 100.5),
		stationAt("b", 14.1, 100.6),
		stationAt("c", 13.9, 100.4),
	})

	waitFor(t, func() bool { return len(surface.overlayIDs()) == 3 })
	if n := surface.markerCount(); n != 0 {
		t.Errorf("expected no cluster markers, got %d", n)
	}
}

func TestStationManager_CapTruncatesToClosest(t *testing.T) {
	surface := newMockSurface(testViewport())
	settings := fastSettings()
	settings.MaxVisibleMarkers = 2

	mgr := usecases.NewStationManager(surface, newMockEvents(), domain.DeviceProfile{Type: domain.DeviceMobile, Tier: domain.TierMedium}, settings)
	defer mgr.Close()

	// Distances from center (14.0, 100.5) ascending: near1, near2, far1, far2.
	mgr.SetStations([]domain.Station{
		stationAt("far1", 14.4, 100.9),
		stationAt("near1", 14.0, 100.5),
		stationAt("far2", 13.6, 100.1),
		stationAt("near2", 14.05, 100.55),
	})

	waitFor(t, func() bool { return len(surface.overlayIDs()) == 2 })
	got := map[string]bool{}
	for _, id := range surface.overlayIDs() {
		got[id] = true
	}
	if !got["near1"] || !got["near2"] {
		t.Errorf("expected the two closest stations rendered, got %v", surface.overlayIDs())
	}
}

func TestStationManager_RepeatedSettleIsIdempotent(t *testing.T) {
	surface := newMockSurface(testViewport())
	events := newMockEvents()
	mgr := usecases.NewStationManager(surface, events, domain.DeviceProfile{Type: domain.DeviceDesktop, Tier: domain.TierHigh}, fastSettings())
	if err := mgr.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mgr.Close()

	mgr.SetStations([]domain.Station{
		stationAt("a", 14.0, 100.5),
		stationAt("b", 14.1, 100.6),
	})
	waitFor(t, func() bool { return len(surface.overlayIDs()) == 2 })

	surface.resetCalls()
	events.fire(ports.EventMove, surface.Viewport())
	time.Sleep(50 * time.Millisecond) // past the debounce window

	if calls := surface.callLog(); len(calls) != 0 {
		t.Errorf("expected no surface mutations on identical settle, got %v", calls)
	}
}

func TestStationManager_TinyPanKeepsBufferedStations(t *testing.T) {
	surface := newMockSurface(testViewport())
	events := newMockEvents()
	mgr := usecases.NewStationManager(surface, events, domain.DeviceProfile{Type: domain.DeviceDesktop, Tier: domain.TierHigh}, fastSettings())
	if err := mgr.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mgr.Close()

	mgr.SetStations([]domain.Station{
		stationAt("a", 14.0, 100.5),
		stationAt("b", 13.6, 100.1), // near the edge but inside the 20% buffer
	})
	waitFor(t, func() bool { return len(surface.overlayIDs()) == 2 })

	surface.resetCalls()
	vp := surface.Viewport()
	vp.North += 0.0001
	vp.South += 0.0001
	vp.Center.Lat += 0.0001
	surface.setViewport(vp)
	events.fire(ports.EventMove, vp)
	time.Sleep(50 * time.Millisecond)

	if calls := surface.callLog(); len(calls) != 0 {
		t.Errorf("expected no churn on sub-buffer pan, got %v", calls)
	}
}

func TestStationManager_CapExceededTinyPanCausesNoChurn(t *testing.T) {
	surface := newMockSurface(testViewport())
	events := newMockEvents()
	settings := fastSettings()
	settings.MaxVisibleMarkers = 2

	mgr := usecases.NewStationManager(surface, events, domain.DeviceProfile{Type: domain.DeviceMobile, Tier: domain.TierMedium}, settings)
	if err := mgr.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mgr.Close()

	// Four stations in view but a cap of two: only the two closest render.
	mgr.SetStations([]domain.Station{
		stationAt("near1", 14.0, 100.5),
		stationAt("near2", 14.05, 100.55),
		stationAt("far1", 14.3, 100.8),
		stationAt("far2", 13.7, 100.2),
	})
	waitFor(t, func() bool { return len(surface.overlayIDs()) == 2 })

	surface.resetCalls()
	vp := surface.Viewport()
	vp.North += 0.0001
	vp.South += 0.0001
	vp.Center.Lat += 0.0001
	surface.setViewport(vp)
	events.fire(ports.EventMove, vp)
	time.Sleep(50 * time.Millisecond)

	if calls := surface.callLog(); len(calls) != 0 {
		t.Errorf("expected no churn on sub-buffer pan at the cap, got %v", calls)
	}
	got := map[string]bool{}
	for _, id := range surface.overlayIDs() {
		got[id] = true
	}
	if !got["near1"] || !got["near2"] {
		t.Errorf("expected the two closest stations to stay rendered, got %v", surface.overlayIDs())
	}
}

func TestStationManager_ReplaceDuringDrainLoadsNewStations(t *testing.T) {
	surface := newMockSurface(testViewport())
	settings := fastSettings()
	settings.EnableProgressiveLoading = true
	settings.BatchSize = 1
	settings.BatchDelay = 400 * time.Millisecond

	mgr := usecases.NewStationManager(surface, newMockEvents(), domain.DeviceProfile{Type: domain.DeviceMobile, Tier: domain.TierLow}, settings)
	defer mgr.Close()

	mgr.SetStations([]domain.Station{
		stationAt("a1", 14.0, 100.5),
		stationAt("a2", 14.1, 100.6),
	})
	// First batch lands, then the drainer sits in its inter-batch delay.
	waitFor(t, func() bool { return len(surface.overlayIDs()) == 1 })

	// Replace the list while the drain is between batches. The fresh queue
	// must still be picked up even though no new drainer starts.
	mgr.SetStations([]domain.Station{
		stationAt("b1", 14.0, 100.5),
		stationAt("b2", 14.1, 100.6),
	})

	waitFor(t, func() bool {
		ids := surface.overlayIDs()
		got := map[string]bool{}
		for _, id := range ids {
			got[id] = true
		}
		return len(ids) == 2 && got["b1"] && got["b2"]
	})
	if q := mgr.Stats().QueuedStations; q != 0 {
		t.Errorf("expected an empty queue after the drain, got %d", q)
	}
}

func TestStationManager_RemovalsBeforeAdditions(t *testing.T) {
	surface := newMockSurface(testViewport())
	events := newMockEvents()
	mgr := usecases.NewStationManager(surface, events, domain.DeviceProfile{Type: domain.DeviceDesktop, Tier: domain.TierHigh}, fastSettings())
	if err := mgr.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mgr.Close()

	mgr.SetStations([]domain.Station{
		stationAt("west", 14.0, 100.5),
		stationAt("east", 14.0, 104.0),
	})
	waitFor(t, func() bool { return len(surface.overlayIDs()) == 1 })

	surface.resetCalls()
	vp := domain.Viewport{
		North: 14.5, South: 13.5, East: 104.5, West: 103.5,
		Zoom:   16,
		Center: domain.GeoPoint{Lat: 14.0, Lng: 104.0},
	}
	surface.setViewport(vp)
	events.fire(ports.EventMove, vp)

	waitFor(t, func() bool {
		ids := surface.overlayIDs()
		return len(ids) == 1 && ids[0] == "east"
	})

	calls := surface.callLog()
	removeIdx, addIdx := -1, -1
	for i, c := range calls {
		if strings.HasPrefix(c, "remove:west") && removeIdx == -1 {
			removeIdx = i
		}
		if strings.HasPrefix(c, "add:east") && addIdx == -1 {
			addIdx = i
		}
	}
	if removeIdx == -1 || addIdx == -1 || removeIdx > addIdx {
		t.Errorf("expected removal before addition, got %v", calls)
	}
}

func TestStationManager_OverlayFailureEvictsWithoutRetry(t *testing.T) {
	surface := newMockSurface(testViewport())
	surface.addErr = map[string]error{"bad": fmt.Errorf("image decode failed")}

	mgr := usecases.NewStationManager(surface, newMockEvents(), domain.DeviceProfile{Type: domain.DeviceDesktop, Tier: domain.TierHigh}, fastSettings())
	defer mgr.Close()

	var mu sync.Mutex
	var failed []string
	mgr.OnOverlayError(func(stationID string, err error) {
		mu.Lock()
		failed = append(failed, stationID)
		mu.Unlock()
	})

	mgr.SetStations([]domain.Station{
		stationAt("good", 14.0, 100.5),
		stationAt("bad", 14.1, 100.6),
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 1
	})
	waitFor(t, func() bool { return mgr.Stats().QueuedStations == 0 })

	if ids := surface.overlayIDs(); len(ids) != 1 || ids[0] != "good" {
		t.Errorf("expected only the good overlay, got %v", ids)
	}

	attempts := 0
	for _, c := range surface.callLog() {
		if c == "add:bad" {
			attempts++
		}
	}
	if attempts != 1 {
		t.Errorf("expected exactly one load attempt for the failed overlay, got %d", attempts)
	}
}

func TestStationManager_ClusteringAtLowZoom(t *testing.T) {
	vp := testViewport()
	vp.Zoom = 10
	surface := newMockSurface(vp)

	settings := fastSettings()
	settings.EnableClustering = true

	mgr := usecases.NewStationManager(surface, newMockEvents(), domain.DeviceProfile{Type: domain.DeviceMobile, Tier: domain.TierMedium}, settings)
	defer mgr.Close()

	// Three stations a few hundred meters apart collapse into one cluster
	// at zoom 10.
	mgr.SetStations([]domain.Station{
		stationAt("a", 14.000, 100.500),
		stationAt("b", 14.002, 100.502),
		stationAt("c", 14.004, 100.504),
	})

	waitFor(t, func() bool { return surface.markerCount() == 1 })
	if n := len(surface.overlayIDs()); n != 0 {
		t.Errorf("expected no individual overlays while clustered, got %d", n)
	}

	stats := mgr.Stats()
	if !stats.ClusteringActive {
		t.Error("expected clustering to be active at zoom 10")
	}
	surface.mu.Lock()
	for _, spec := range surface.markers {
		if spec.Count != 3 {
			t.Errorf("expected cluster count 3, got %d", spec.Count)
		}
		wantSize := int(math.Min(60, 30+2*math.Sqrt(3)))
		if spec.SizePX != wantSize {
			t.Errorf("expected marker size %d, got %d", wantSize, spec.SizePX)
		}
		if spec.Color != "#3b82f6" {
			t.Errorf("expected blue marker below 10 stations, got %s", spec.Color)
		}
	}
	surface.mu.Unlock()
}

func TestStationManager_ClusterClickFliesToExpansionZoom(t *testing.T) {
	vp := testViewport()
	vp.Zoom = 10
	surface := newMockSurface(vp)

	settings := fastSettings()
	settings.EnableClustering = true

	mgr := usecases.NewStationManager(surface, newMockEvents(), domain.DeviceProfile{Type: domain.DeviceDesktop, Tier: domain.TierMedium}, settings)
	defer mgr.Close()

	mgr.SetStations([]domain.Station{
		stationAt("a", 14.000, 100.500),
		stationAt("b", 14.002, 100.502),
	})
	waitFor(t, func() bool { return surface.markerCount() == 1 })

	surface.mu.Lock()
	var clusterID uint64
	for id := range surface.markers {
		clusterID = id
	}
	surface.mu.Unlock()

	mgr.HandleClusterClick(clusterID)

	surface.mu.Lock()
	defer surface.mu.Unlock()
	if len(surface.flights) != 1 {
		t.Fatalf("expected one fly-to, got %d", len(surface.flights))
	}
	if surface.flights[0].zoom <= 10 {
		t.Errorf("expected expansion zoom above 10, got %f", surface.flights[0].zoom)
	}
	if math.Abs(surface.flights[0].center.Lat-14.001) > 1e-6 {
		t.Errorf("expected centroid latitude 14.001, got %f", surface.flights[0].center.Lat)
	}
}

func TestStationManager_SkipsHiddenAndMalformedStations(t *testing.T) {
	surface := newMockSurface(testViewport())
	mgr := usecases.NewStationManager(surface, newMockEvents(), domain.DeviceProfile{Type: domain.DeviceDesktop, Tier: domain.TierHigh}, fastSettings())
	defer mgr.Close()

	hidden := stationAt("hidden", 14.0, 100.5)
	hidden.Visible = false

	malformed := stationAt("nan", 14.1, 100.6)
	malformed.Bounds.SW.Lat = math.NaN()

	mgr.SetStations([]domain.Station{
		hidden,
		malformed,
		stationAt("ok", 13.9, 100.4),
	})

	waitFor(t, func() bool { return len(surface.overlayIDs()) == 1 })
	if ids := surface.overlayIDs(); ids[0] != "ok" {
		t.Errorf("expected only the valid visible station, got %v", ids)
	}
}

func TestStationManager_CompressedImagePreferred(t *testing.T) {
	surface := newMockSurface(testViewport())
	mgr := usecases.NewStationManager(surface, newMockEvents(), domain.DeviceProfile{Type: domain.DeviceDesktop, Tier: domain.TierHigh}, fastSettings())
	defer mgr.Close()

	st := stationAt("a", 14.0, 100.5)
	st.CompressedImageURL = "https://img.example/a-compressed.webp"
	mgr.SetStations([]domain.Station{st})

	waitFor(t, func() bool { return len(surface.overlayIDs()) == 1 })

	surface.mu.Lock()
	defer surface.mu.Unlock()
	spec := surface.overlays["a"]
	if spec.ImageURL != st.CompressedImageURL {
		t.Errorf("expected compressed URL, got %s", spec.ImageURL)
	}
	if spec.Opacity != 0.6 {
		t.Errorf("expected opacity 0.6, got %f", spec.Opacity)
	}
}

func TestStationManager_CloseTruncatesQueue(t *testing.T) {
	surface := newMockSurface(testViewport())
	settings := fastSettings()
	settings.EnableProgressiveLoading = true
	settings.BatchSize = 1
	settings.BatchDelay = 20 * time.Millisecond

	mgr := usecases.NewStationManager(surface, newMockEvents(), domain.DeviceProfile{Type: domain.DeviceMobile, Tier: domain.TierLow}, settings)

	stations := make([]domain.Station, 0, 8)
	for i := 0; i < 8; i++ {
		stations = append(stations, stationAt(fmt.Sprintf("s%d", i), 14.0+float64(i)*0.01, 100.5))
	}
	mgr.SetStations(stations)

	waitFor(t, func() bool { return len(surface.overlayIDs()) >= 1 })
	mgr.Close()
	time.Sleep(60 * time.Millisecond)

	if n := len(surface.overlayIDs()); n == 8 {
		t.Error("expected the queue to be truncated on close, but all overlays loaded")
	}
	if q := mgr.Stats().QueuedStations; q != 0 {
		t.Errorf("expected empty queue after close, got %d", q)
	}
}
