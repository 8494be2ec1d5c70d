package ports

import (
	"context"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher fans performance events out to a message broker for ops
// tooling. Publishing is best-effort; callers ignore errors.
type EventPublisher interface {
	PublishWarning(ctx context.Context, sessionID string, w domain.Warning) error
	PublishReport(ctx context.Context, sessionID string, r domain.PerformanceReport) error
	PublishBroadcast(ctx context.Context, data []byte) error
}

// SettingsStore persists per-client performance settings. Load returns
// (nil, nil) when no value is stored.
type SettingsStore interface {
	Load(ctx context.Context, clientID string) (*domain.PerformanceSettings, error)
	Save(ctx context.Context, clientID string, s domain.PerformanceSettings) error
}

// ImageCompressor enqueues asynchronous recompression of a station's
// coverage image. The compressed URL lands on the station record later;
// it is never required for correctness.
type ImageCompressor interface {
	EnqueueCompression(ctx context.Context, stationID string, quality float64) error
}
