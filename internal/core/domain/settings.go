package domain

import "time"

// DeviceType is the coarse hardware class of a client.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
)

// PerformanceTier classifies a client's rendering capability.
type PerformanceTier string

const (
	TierLow    PerformanceTier = "low"
	TierMedium PerformanceTier = "medium"
	TierHigh   PerformanceTier = "high"
)

// DeviceSignals are the raw hardware hints a client reports at session
// start. Zero values mean the signal was unavailable.
type DeviceSignals struct {
	HardwareCores  int     `json:"hardware_cores"`
	DeviceMemoryGB float64 `json:"device_memory_gb"`
	EffectiveType  string  `json:"effective_type"` // network: slow-2g, 2g, 3g, 4g
	UserAgent      string  `json:"user_agent"`
}

// Empty reports whether no introspection signal was available at all.
func (s DeviceSignals) Empty() bool {
	return s.HardwareCores == 0 && s.DeviceMemoryGB == 0 &&
		s.EffectiveType == "" && s.UserAgent == ""
}

// DeviceProfile is the classification derived once from DeviceSignals and
// passed down explicitly, never re-read from the environment.
type DeviceProfile struct {
	Type DeviceType      `json:"type"`
	Tier PerformanceTier `json:"tier"`
}

// Mobile reports whether the profile is a handheld class device.
func (p DeviceProfile) Mobile() bool {
	return p.Type == DeviceMobile
}

// PerformanceSettings is the rendering configuration derived from a device
// profile and overridable by the user.
type PerformanceSettings struct {
	MaxVisibleMarkers        int           `json:"max_visible_markers"`
	EnableClustering         bool          `json:"enable_clustering"`
	EnableProgressiveLoading bool          `json:"enable_progressive_loading"`
	EnableAnimations         bool          `json:"enable_animations"`
	CompressionQuality       float64       `json:"compression_quality"`
	DebounceDelay            time.Duration `json:"debounce_delay"`
	BatchSize                int           `json:"batch_size"`
	BatchDelay               time.Duration `json:"batch_delay"`
}
