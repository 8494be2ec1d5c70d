package usecases_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/usecases"
)

// --- Mock StationRepository ---

type mockStationRepo struct {
	listFn        func(ctx context.Context) ([]domain.Station, error)
	getByIDFn     func(ctx context.Context, id string) (*domain.Station, error)
	upsertBatchFn func(ctx context.Context, stations []domain.Station) error
	setVisibleFn  func(ctx context.Context, id string, visible bool) error
}

func (m *mockStationRepo) Upsert(ctx context.Context, s *domain.Station) error { return nil }

func (m *mockStationRepo) UpsertBatch(ctx context.Context, stations []domain.Station) error {
	if m.upsertBatchFn != nil {
		return m.upsertBatchFn(ctx, stations)
	}
	return nil
}

func (m *mockStationRepo) GetByID(ctx context.Context, id string) (*domain.Station, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockStationRepo) List(ctx context.Context) ([]domain.Station, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockStationRepo) SetVisible(ctx context.Context, id string, visible bool) error {
	if m.setVisibleFn != nil {
		return m.setVisibleFn(ctx, id, visible)
	}
	return nil
}

func (m *mockStationRepo) SetCompressedImageURL(ctx context.Context, id, url string) error {
	return nil
}

// --- Mock TechnicalDataRepository ---

type mockTechnicalRepo struct {
	searchFn       func(ctx context.Context, query string, limit int) ([]domain.TechnicalData, error)
	listInBoundsFn func(ctx context.Context, v domain.Viewport, limit int) ([]domain.TechnicalData, error)
}

func (m *mockTechnicalRepo) UpsertBatch(ctx context.Context, records []domain.TechnicalData) error {
	return nil
}

func (m *mockTechnicalRepo) List(ctx context.Context) ([]domain.TechnicalData, error) {
	return nil, nil
}

func (m *mockTechnicalRepo) Search(ctx context.Context, query string, limit int) ([]domain.TechnicalData, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockTechnicalRepo) ListInBounds(ctx context.Context, v domain.Viewport, limit int) ([]domain.TechnicalData, error) {
	if m.listInBoundsFn != nil {
		return m.listInBoundsFn(ctx, v, limit)
	}
	return nil, nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, context.Canceled // any error means miss
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Mock ImageCompressor ---

type mockCompressor struct {
	mu       sync.Mutex
	enqueued []string
}

func (m *mockCompressor) EnqueueCompression(ctx context.Context, stationID string, quality float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, stationID)
	return nil
}

// --- Tests ---

func TestStationService_ListCachesResult(t *testing.T) {
	calls := 0
	repo := &mockStationRepo{
		listFn: func(ctx context.Context) ([]domain.Station, error) {
			calls++
			return []domain.Station{stationAt("a", 14.0, 100.5)}, nil
		},
	}
	cache := newMockCache()
	svc := usecases.NewStationService(repo, &mockTechnicalRepo{}, cache, nil)

	for i := 0; i < 3; i++ {
		stations, err := svc.List(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(stations) != 1 || stations[0].ID != "a" {
			t.Fatalf("unexpected result: %v", stations)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 repository call, got %d", calls)
	}
}

func TestStationService_IngestRejectsInvalidBounds(t *testing.T) {
	svc := usecases.NewStationService(&mockStationRepo{}, &mockTechnicalRepo{}, nil, nil)

	bad := stationAt("bad", 14.0, 100.5)
	bad.Bounds.SW.Lat = 91 // out of range

	err := svc.Ingest(context.Background(), []domain.Station{bad}, 0.5)
	if err == nil {
		t.Fatal("expected an error for out-of-range bounds")
	}
}

func TestStationService_IngestEnqueuesCompression(t *testing.T) {
	comp := &mockCompressor{}
	svc := usecases.NewStationService(&mockStationRepo{}, &mockTechnicalRepo{}, nil, comp)

	withImage := stationAt("img", 14.0, 100.5)
	alreadyDone := stationAt("done", 14.1, 100.6)
	alreadyDone.CompressedImageURL = "https://img.example/done.webp"
	noImage := stationAt("none", 14.2, 100.7)
	noImage.ImageURL = ""

	if err := svc.Ingest(context.Background(), []domain.Station{withImage, alreadyDone, noImage}, 0.4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comp.mu.Lock()
	defer comp.mu.Unlock()
	if len(comp.enqueued) != 1 || comp.enqueued[0] != "img" {
		t.Errorf("expected only the uncompressed station enqueued, got %v", comp.enqueued)
	}
}

func TestStationService_IngestInvalidatesListCache(t *testing.T) {
	cache := newMockCache()
	stale, _ := json.Marshal([]domain.Station{stationAt("stale", 14.0, 100.5)})
	_ = cache.Set(context.Background(), "stations:all", stale, 300)

	svc := usecases.NewStationService(&mockStationRepo{}, &mockTechnicalRepo{}, cache, nil)
	if err := svc.Ingest(context.Background(), []domain.Station{stationAt("fresh", 14.0, 100.5)}, 0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := cache.Get(context.Background(), "stations:all"); err == nil {
		t.Error("expected the list cache to be invalidated after ingest")
	}
}

func TestStationService_SearchTechnicalRequiresQuery(t *testing.T) {
	svc := usecases.NewStationService(&mockStationRepo{}, &mockTechnicalRepo{}, nil, nil)
	if _, err := svc.SearchTechnical(context.Background(), "", 10); err == nil {
		t.Fatal("expected an error for an empty query")
	}
}

func TestStationService_SearchTechnicalClampsLimit(t *testing.T) {
	var gotLimit int
	tech := &mockTechnicalRepo{
		searchFn: func(ctx context.Context, query string, limit int) ([]domain.TechnicalData, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	svc := usecases.NewStationService(&mockStationRepo{}, tech, nil, nil)

	if _, err := svc.SearchTechnical(context.Background(), "thai pbs", 9999); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 20 {
		t.Errorf("expected limit clamped to 20, got %d", gotLimit)
	}
}

// --- Mock SettingsStore ---

type mockSettingsStore struct {
	mu    sync.Mutex
	saved map[string]domain.PerformanceSettings
}

func newMockSettingsStore() *mockSettingsStore {
	return &mockSettingsStore{saved: make(map[string]domain.PerformanceSettings)}
}

func (m *mockSettingsStore) Load(ctx context.Context, clientID string) (*domain.PerformanceSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.saved[clientID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *mockSettingsStore) Save(ctx context.Context, clientID string, s domain.PerformanceSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[clientID] = s
	return nil
}

func TestSettingsService_ResolveDefaultsFromProfile(t *testing.T) {
	svc := usecases.NewSettingsService(newMockSettingsStore())

	signals := domain.DeviceSignals{
		HardwareCores: 2,
		UserAgent:     "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148",
	}
	profile, settings, err := svc.Resolve(context.Background(), "client-1", signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Type != domain.DeviceMobile || profile.Tier != domain.TierLow {
		t.Errorf("expected mobile/low, got %+v", profile)
	}
	if settings.MaxVisibleMarkers != 20 {
		t.Errorf("expected low-mobile cap 20, got %d", settings.MaxVisibleMarkers)
	}
}

func TestSettingsService_StoredOverrideWins(t *testing.T) {
	store := newMockSettingsStore()
	svc := usecases.NewSettingsService(store)

	override := domain.PerformanceSettings{MaxVisibleMarkers: 42, EnableClustering: true}
	if err := svc.Save(context.Background(), "client-1", override); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, settings, err := svc.Resolve(context.Background(), "client-1", domain.DeviceSignals{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.MaxVisibleMarkers != 42 {
		t.Errorf("expected the stored override, got %d", settings.MaxVisibleMarkers)
	}
}
