package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

const (
	settingsKeyPrefix = "settings:client:"
	settingsTTL       = 30 * 24 * 60 * 60 // 30 days, refreshed on save
)

// SettingsStore implements ports.SettingsStore on top of the shared cache
// client. Settings are small JSON blobs keyed by client id.
type SettingsStore struct {
	cache *Cache
}

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(cache *Cache) *SettingsStore {
	return &SettingsStore{cache: cache}
}

// Load returns the stored settings for a client, or (nil, nil) when the
// client has never saved an override.
func (s *SettingsStore) Load(ctx context.Context, clientID string) (*domain.PerformanceSettings, error) {
	data, err := s.cache.Get(ctx, settingsKeyPrefix+clientID)
	if err != nil {
		// Valkey reports a missing key as an error; treat every read
		// failure as a miss so a cache outage never blocks a session.
		return nil, nil
	}

	var settings domain.PerformanceSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("decode stored settings for %s: %w", clientID, err)
	}
	return &settings, nil
}

// Save persists a client's settings override.
func (s *SettingsStore) Save(ctx context.Context, clientID string, settings domain.PerformanceSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.cache.Set(ctx, settingsKeyPrefix+clientID, data, settingsTTL)
}
