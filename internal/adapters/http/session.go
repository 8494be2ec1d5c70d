package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/ports"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/usecases"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/logging"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/metrics"
)

// clientMessage is the envelope for everything the browser sends.
type clientMessage struct {
	Type      string                      `json:"type"`
	ClientID  string                      `json:"client_id,omitempty"`
	Signals   *domain.DeviceSignals       `json:"signals,omitempty"`
	Viewport  *domain.Viewport            `json:"viewport,omitempty"`
	Event     string                      `json:"event,omitempty"` // move | zoom | resize
	StationID string                      `json:"station_id,omitempty"`
	OK        bool                        `json:"ok,omitempty"`
	Error     string                      `json:"error,omitempty"`
	HeapMB    float64                     `json:"heap_mb,omitempty"`
	ClusterID uint64                      `json:"cluster_id,omitempty"`
	Enabled   bool                        `json:"enabled,omitempty"`
	Warning   string                      `json:"warning,omitempty"`
	Settings  *domain.PerformanceSettings `json:"settings,omitempty"`
}

// serverMessage is the envelope for every render command and notification
// the server pushes.
type serverMessage struct {
	Type       string                      `json:"type"`
	Overlay    *domain.OverlaySpec         `json:"overlay,omitempty"`
	Marker     *domain.ClusterMarkerSpec   `json:"marker,omitempty"`
	StationID  string                      `json:"station_id,omitempty"`
	ClusterID  uint64                      `json:"cluster_id,omitempty"`
	Center     *domain.GeoPoint            `json:"center,omitempty"`
	Zoom       float64                     `json:"zoom,omitempty"`
	DurationMS int64                       `json:"duration_ms,omitempty"`
	Warning    *domain.Warning             `json:"warning,omitempty"`
	Report     *domain.PerformanceReport   `json:"report,omitempty"`
	Stats      *domain.RenderStats         `json:"stats,omitempty"`
	Settings   *domain.PerformanceSettings `json:"settings,omitempty"`
	Profile    *domain.DeviceProfile       `json:"profile,omitempty"`
	Message    string                      `json:"message,omitempty"`
}

// MapSession is one live map connection. It is both the MapSurface the
// station manager renders onto (commands out, overlay acks back in) and
// the MapEventSource it listens to (viewport settles in).
type MapSession struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	viewport  domain.Viewport
	subs      map[ports.MapEvent]map[int]func(domain.Viewport)
	nextSubID int
	acks      map[string]chan error
	closed    bool

	manager *usecases.StationManager
	monitor *usecases.PerformanceMonitor
}

func newMapSession(conn *websocket.Conn) *MapSession {
	return &MapSession{
		id:   uuid.NewString(),
		conn: conn,
		subs: make(map[ports.MapEvent]map[int]func(domain.Viewport)),
		acks: make(map[string]chan error),
	}
}

func (s *MapSession) send(msg serverMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// --- ports.MapSurface ---

func (s *MapSession) Viewport() domain.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// AddImageOverlay sends the overlay command and blocks until the client
// acknowledges the image load, the load fails, or ctx expires.
func (s *MapSession) AddImageOverlay(ctx context.Context, spec domain.OverlaySpec) error {
	ack := make(chan error, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session closed")
	}
	s.acks[spec.StationID] = ack
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.acks, spec.StationID)
		s.mu.Unlock()
	}()

	if err := s.send(serverMessage{Type: "add_overlay", Overlay: &spec}); err != nil {
		return err
	}

	select {
	case err := <-ack:
		if err != nil {
			metrics.OverlayLoadFailures.Inc()
			return err
		}
		metrics.OverlaysRendered.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MapSession) RemoveImageOverlay(stationID string) {
	_ = s.send(serverMessage{Type: "remove_overlay", StationID: stationID})
}

func (s *MapSession) AddClusterMarker(spec domain.ClusterMarkerSpec) {
	metrics.ClustersRendered.Inc()
	_ = s.send(serverMessage{Type: "add_cluster_marker", Marker: &spec})
}

func (s *MapSession) RemoveClusterMarker(clusterID uint64) {
	_ = s.send(serverMessage{Type: "remove_cluster_marker", ClusterID: clusterID})
}

func (s *MapSession) FlyTo(center domain.GeoPoint, zoom float64, duration time.Duration) {
	_ = s.send(serverMessage{
		Type:       "fly_to",
		Center:     &center,
		Zoom:       zoom,
		DurationMS: duration.Milliseconds(),
	})
}

// --- ports.MapEventSource ---

func (s *MapSession) Subscribe(ev ports.MapEvent, fn func(domain.Viewport)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if s.subs[ev] == nil {
		s.subs[ev] = make(map[int]func(domain.Viewport))
	}
	id := s.nextSubID
	s.nextSubID++
	s.subs[ev][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[ev], id)
	}, nil
}

func (s *MapSession) dispatch(ev ports.MapEvent, vp domain.Viewport) {
	s.mu.Lock()
	fns := make([]func(domain.Viewport), 0, len(s.subs[ev]))
	for _, fn := range s.subs[ev] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(vp)
	}
}

// teardown fails pending overlay acks and marks the session closed, so
// blocked AddImageOverlay calls return instead of waiting out the timeout.
func (s *MapSession) teardown() {
	s.mu.Lock()
	s.closed = true
	for id, ack := range s.acks {
		select {
		case ack <- fmt.Errorf("session closed"):
		default:
		}
		delete(s.acks, id)
	}
	s.mu.Unlock()
}

// SessionHandler upgrades to WebSocket and runs one map session: it waits
// for the hello message, profiles the device, spins up a station manager
// and performance monitor for this connection, then relays viewport events
// and acks until the client goes away.
func SessionHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer conn.Close()

		session := newMapSession(conn)
		log := logging.ForSession(session.id)

		metrics.ActiveSessions.Inc()
		defer metrics.ActiveSessions.Dec()

		// First message must be the hello carrying device signals.
		var hello clientMessage
		if err := conn.ReadJSON(&hello); err != nil || hello.Type != "hello" {
			_ = session.send(serverMessage{Type: "error", Message: "expected hello message"})
			return
		}
		var signals domain.DeviceSignals
		if hello.Signals != nil {
			signals = *hello.Signals
		}

		ctx := context.Background()
		profile, settings, err := deps.Settings.Resolve(ctx, hello.ClientID, signals)
		if err != nil {
			log.Warn("settings resolve failed, using profile defaults", "error", err)
		}
		log.Info("map session started", "device", string(profile.Type), "tier", string(profile.Tier))

		manager := usecases.NewStationManager(session, session, profile, settings)
		monitor := usecases.NewPerformanceMonitor(usecases.DefaultMonitorConfig(), profile)
		session.manager = manager
		session.monitor = monitor

		monitor.SetStatsSource(manager.Stats)
		monitor.OnWarning(func(w domain.Warning) {
			_ = session.send(serverMessage{Type: "warning", Warning: &w})
			if deps.Publisher != nil {
				_ = deps.Publisher.PublishWarning(ctx, session.id, w)
			}
			// Degrade hard under pressure: pressure warnings force
			// clustering on regardless of the user's preference.
			if w.Type == domain.WarningCriticalMemory || w.Type == domain.WarningLowFPS {
				manager.SetClusteringEnabled(true)
			}
		})
		monitor.OnReport(func(r domain.PerformanceReport) {
			_ = session.send(serverMessage{Type: "report", Report: &r})
			if deps.Publisher != nil {
				_ = deps.Publisher.PublishReport(ctx, session.id, r)
			}
		})
		manager.OnOverlayError(func(stationID string, err error) {
			log.Warn("overlay evicted", "station_id", stationID, "error", err)
		})

		if err := manager.Start(); err != nil {
			log.Error("manager start failed", "error", err)
			return
		}
		monitor.Start()
		defer func() {
			session.teardown()
			manager.Close()
			monitor.Stop()
			log.Info("map session ended")
		}()

		if deps.Sessions != nil {
			deps.Sessions.add(session)
			defer deps.Sessions.remove(session)
		}

		// Initial station load.
		stations, err := deps.Stations.List(ctx)
		if err != nil {
			log.Error("station load failed", "error", err)
			_ = session.send(serverMessage{Type: "error", Message: "station data unavailable"})
			return
		}
		monitor.SetStationCount(len(stations))
		_ = session.send(serverMessage{Type: "ready", Profile: &profile, Settings: &settings})

		// Read loop. The station list lands in the manager on the first
		// viewport, once there is something to compute visibility against.
		loaded := false
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "viewport" && !loaded {
				if msg.Viewport != nil {
					session.mu.Lock()
					session.viewport = *msg.Viewport
					session.mu.Unlock()
				}
				manager.SetStations(stations)
				loaded = true
				continue
			}
			session.handleMessage(log, msg)
		}
	}
}

func (s *MapSession) handleMessage(log *slog.Logger, msg clientMessage) {
	switch msg.Type {
	case "viewport":
		if msg.Viewport == nil {
			return
		}
		s.mu.Lock()
		s.viewport = *msg.Viewport
		s.mu.Unlock()
		switch msg.Event {
		case "zoom":
			s.dispatch(ports.EventZoom, *msg.Viewport)
		case "resize":
			s.dispatch(ports.EventResize, *msg.Viewport)
		default:
			s.dispatch(ports.EventMove, *msg.Viewport)
		}

	case "overlay_ack":
		s.mu.Lock()
		ack := s.acks[msg.StationID]
		s.mu.Unlock()
		if ack == nil {
			return
		}
		var err error
		if !msg.OK {
			reason := msg.Error
			if reason == "" {
				reason = "image load failed"
			}
			err = fmt.Errorf("%s", reason)
		}
		select {
		case ack <- err:
		default:
		}

	case "frame":
		s.monitor.ObserveFrame(time.Now())

	case "heap":
		s.monitor.ObserveHeap(msg.HeapMB)

	case "cluster_click":
		s.manager.HandleClusterClick(msg.ClusterID)

	case "set_clustering":
		s.manager.SetClusteringEnabled(msg.Enabled)

	case "update_settings":
		if msg.Settings != nil {
			s.manager.UpdateSettings(*msg.Settings)
		}

	case "force_update":
		s.manager.ForceUpdate()

	case "clear_warning":
		s.monitor.ClearWarning(domain.WarningType(msg.Warning))

	case "stats":
		stats := s.manager.Stats()
		_ = s.send(serverMessage{Type: "stats", Stats: &stats})

	default:
		log.Warn("unknown message type", "type", msg.Type)
	}
}

// reloadStations swaps in a fresh station list, e.g. after a broadcast
// announced new ingest data.
func (s *MapSession) reloadStations(stations []domain.Station) {
	if s.manager == nil {
		return
	}
	s.monitor.SetStationCount(len(stations))
	s.manager.SetStations(stations)
}

// SessionHub tracks live sessions on this instance so broadcasts can reach
// them.
type SessionHub struct {
	mu       sync.Mutex
	sessions map[*MapSession]bool
}

// NewSessionHub creates an empty hub.
func NewSessionHub() *SessionHub {
	return &SessionHub{sessions: make(map[*MapSession]bool)}
}

func (h *SessionHub) add(s *MapSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = true
}

func (h *SessionHub) remove(s *MapSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
}

// ReloadAll pushes a fresh station list into every live session.
func (h *SessionHub) ReloadAll(stations []domain.Station) {
	h.mu.Lock()
	sessions := make([]*MapSession, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.reloadStations(stations)
	}
}
