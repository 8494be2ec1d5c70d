package usecases

import (
	"context"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/ports"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/device"
)

// SettingsService resolves per-client performance settings: hardware
// signals determine the defaults, stored overrides win over them.
type SettingsService struct {
	store ports.SettingsStore
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(store ports.SettingsStore) *SettingsService {
	return &SettingsService{store: store}
}

// Resolve profiles the client and returns its effective settings. A stored
// override replaces the profile defaults wholesale; partial merges would
// make the stored value meaningless as a snapshot.
func (s *SettingsService) Resolve(ctx context.Context, clientID string, signals domain.DeviceSignals) (domain.DeviceProfile, domain.PerformanceSettings, error) {
	profile := device.Profile(signals)
	settings := device.RecommendedSettings(profile)

	if s.store != nil && clientID != "" {
		stored, err := s.store.Load(ctx, clientID)
		if err != nil {
			return profile, settings, err
		}
		if stored != nil {
			settings = *stored
		}
	}
	return profile, settings, nil
}

// Save persists a client's settings override.
func (s *SettingsService) Save(ctx context.Context, clientID string, settings domain.PerformanceSettings) error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(ctx, clientID, settings)
}
