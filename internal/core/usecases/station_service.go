package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/ports"
)

// StationService handles coverage-station and technical-data business logic.
type StationService struct {
	stations   ports.StationRepository
	technical  ports.TechnicalDataRepository
	cache      ports.CacheService
	compressor ports.ImageCompressor
}

// NewStationService creates a new StationService.
func NewStationService(stations ports.StationRepository, technical ports.TechnicalDataRepository, cache ports.CacheService, compressor ports.ImageCompressor) *StationService {
	return &StationService{stations: stations, technical: technical, cache: cache, compressor: compressor}
}

// List returns all coverage stations.
func (s *StationService) List(ctx context.Context) ([]domain.Station, error) {
	cacheKey := "stations:all"
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var stations []domain.Station
			if err := json.Unmarshal(data, &stations); err == nil {
				return stations, nil
			}
		}
	}

	stations, err := s.stations.List(ctx)
	if err != nil {
		return nil, err
	}

	// Cache for 5 minutes (coverage footprints change rarely)
	if s.cache != nil {
		if data, err := json.Marshal(stations); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}

	return stations, nil
}

// GetByID returns a single coverage station.
func (s *StationService) GetByID(ctx context.Context, id string) (*domain.Station, error) {
	cacheKey := "stations:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var st domain.Station
			if err := json.Unmarshal(data, &st); err == nil {
				return &st, nil
			}
		}
	}

	st, err := s.stations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(st); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600)
		}
	}

	return st, nil
}

// Ingest upserts a batch of stations and enqueues image compression for
// any station that still lacks a compressed coverage image.
func (s *StationService) Ingest(ctx context.Context, stations []domain.Station, quality float64) error {
	if len(stations) == 0 {
		return nil
	}
	for i := range stations {
		if !stations[i].Bounds.Valid() {
			return fmt.Errorf("station %s: invalid bounds", stations[i].ID)
		}
	}
	if err := s.stations.UpsertBatch(ctx, stations); err != nil {
		return err
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, "stations:all")
	}

	if s.compressor != nil {
		for i := range stations {
			st := &stations[i]
			if st.ImageURL == "" || st.CompressedImageURL != "" {
				continue
			}
			// Best-effort: the full-size image keeps working meanwhile.
			_ = s.compressor.EnqueueCompression(ctx, st.ID, quality)
		}
	}
	return nil
}

// SetVisible toggles a station's visibility flag.
func (s *StationService) SetVisible(ctx context.Context, id string, visible bool) error {
	if err := s.stations.SetVisible(ctx, id, visible); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "stations:all")
		_ = s.cache.Delete(ctx, "stations:id:"+id)
	}
	return nil
}

// SearchTechnical performs a name/owner/type search over transmitter
// records. Records without a usable location never show up.
func (s *StationService) SearchTechnical(ctx context.Context, query string, limit int) ([]domain.TechnicalData, error) {
	if query == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("technical:search:%s:%d", query, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var records []domain.TechnicalData
			if err := json.Unmarshal(data, &records); err == nil {
				return records, nil
			}
		}
	}

	records, err := s.technical.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(records); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}

	return records, nil
}

// TechnicalInViewport returns transmitter records inside a viewport.
func (s *StationService) TechnicalInViewport(ctx context.Context, v domain.Viewport, limit int) ([]domain.TechnicalData, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	return s.technical.ListInBounds(ctx, v, limit)
}
