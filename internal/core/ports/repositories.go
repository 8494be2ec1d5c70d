package ports

import (
	"context"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

// StationRepository persists coverage stations.
type StationRepository interface {
	Upsert(ctx context.Context, s *domain.Station) error
	UpsertBatch(ctx context.Context, stations []domain.Station) error
	GetByID(ctx context.Context, id string) (*domain.Station, error)
	List(ctx context.Context) ([]domain.Station, error)
	SetVisible(ctx context.Context, id string, visible bool) error
	SetCompressedImageURL(ctx context.Context, id, url string) error
}

// TechnicalDataRepository persists transmitter point records.
type TechnicalDataRepository interface {
	UpsertBatch(ctx context.Context, records []domain.TechnicalData) error
	List(ctx context.Context) ([]domain.TechnicalData, error)
	// Search matches station name, owner, and type. Records without a
	// location are excluded.
	Search(ctx context.Context, query string, limit int) ([]domain.TechnicalData, error)
	ListInBounds(ctx context.Context, v domain.Viewport, limit int) ([]domain.TechnicalData, error)
}
