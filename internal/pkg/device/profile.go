// Package device classifies client hardware from the signals a browser
// reports at session start and derives rendering limits from the result.
// Classification happens once; the resulting DeviceProfile value is passed
// down explicitly rather than re-read from the environment.
package device

import (
	"regexp"
	"strings"
	"time"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

var (
	tabletPattern = regexp.MustCompile(`(?i)ipad|tablet|kindle|silk|playbook`)
	mobilePattern = regexp.MustCompile(`(?i)mobi|android|iphone|ipod|blackberry|opera mini|iemobile`)
)

// ClassifyDeviceType matches the user agent against tablet then mobile
// patterns; the tablet pattern takes precedence because tablet UAs usually
// also match the generic mobile pattern. Unknown or empty UAs are desktop.
func ClassifyDeviceType(userAgent string) domain.DeviceType {
	switch {
	case tabletPattern.MatchString(userAgent):
		return domain.DeviceTablet
	case mobilePattern.MatchString(userAgent):
		return domain.DeviceMobile
	default:
		return domain.DeviceDesktop
	}
}

// ClassifyTier buckets the device into low/medium/high. A signal whose
// value is zero is treated as unavailable and skipped; a client that
// exposes nothing at all gets the permissive high default.
func ClassifyTier(s domain.DeviceSignals) domain.PerformanceTier {
	if s.Empty() {
		return domain.TierHigh
	}

	if (s.HardwareCores > 0 && s.HardwareCores <= 2) ||
		(s.DeviceMemoryGB > 0 && s.DeviceMemoryGB <= 1) {
		return domain.TierLow
	}

	if (s.HardwareCores > 0 && s.HardwareCores <= 4) ||
		(s.DeviceMemoryGB > 0 && s.DeviceMemoryGB <= 2) ||
		slowConnection(s.EffectiveType) {
		return domain.TierMedium
	}

	return domain.TierHigh
}

func slowConnection(effectiveType string) bool {
	switch strings.ToLower(effectiveType) {
	case "slow-2g", "2g", "3g":
		return true
	}
	return false
}

// Profile derives the full device profile from the reported signals. It
// never fails: absent signals fall back to desktop/high.
func Profile(s domain.DeviceSignals) domain.DeviceProfile {
	if s.Empty() {
		return domain.DeviceProfile{Type: domain.DeviceDesktop, Tier: domain.TierHigh}
	}
	return domain.DeviceProfile{
		Type: ClassifyDeviceType(s.UserAgent),
		Tier: ClassifyTier(s),
	}
}

// RecommendedSettings derives the rendering limits for a profile.
// Clustering and progressive loading stay on everywhere except a high-tier
// desktop, which can afford the full marker set.
func RecommendedSettings(p domain.DeviceProfile) domain.PerformanceSettings {
	s := domain.PerformanceSettings{
		EnableClustering:         true,
		EnableProgressiveLoading: true,
		EnableAnimations:         p.Tier != domain.TierLow,
		BatchSize:                10,
		BatchDelay:               100 * time.Millisecond,
	}

	switch p.Type {
	case domain.DeviceMobile:
		s.MaxVisibleMarkers = 50
	case domain.DeviceTablet:
		s.MaxVisibleMarkers = 100
	default:
		s.MaxVisibleMarkers = 500
		if p.Tier == domain.TierHigh {
			s.EnableClustering = false
			s.EnableProgressiveLoading = false
		}
	}

	// A low-tier device is capped hard regardless of its form factor: a
	// desktop with two cores is no better at markers than a weak phone.
	if p.Tier == domain.TierLow && s.MaxVisibleMarkers > 20 {
		s.MaxVisibleMarkers = 20
	}

	switch p.Tier {
	case domain.TierLow:
		s.DebounceDelay = 300 * time.Millisecond
		s.CompressionQuality = 0.3
	case domain.TierMedium:
		s.DebounceDelay = 200 * time.Millisecond
		s.CompressionQuality = 0.4
	default:
		s.DebounceDelay = 150 * time.Millisecond
		s.CompressionQuality = 0.5
	}

	return s
}
