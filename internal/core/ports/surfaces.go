package ports

import (
	"context"
	"time"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

// MapEvent is a settle event on the map surface.
type MapEvent int

const (
	EventMove MapEvent = iota
	EventZoom
	EventResize
)

// MapSurface is the rendering primitive set the station manager needs from
// a slippy-map client. Overlay and marker handles are exclusively owned by
// the station manager from creation to removal.
//
// AddImageOverlay blocks until the client has loaded the image or failed;
// a non-nil error means the overlay never materialized.
type MapSurface interface {
	Viewport() domain.Viewport
	AddImageOverlay(ctx context.Context, spec domain.OverlaySpec) error
	RemoveImageOverlay(stationID string)
	AddClusterMarker(spec domain.ClusterMarkerSpec)
	RemoveClusterMarker(clusterID uint64)
	FlyTo(center domain.GeoPoint, zoom float64, duration time.Duration)
}

// MapEventSource delivers settle events. Subscribe returns a cancel
// function so subscription lifetime is structurally paired with teardown.
type MapEventSource interface {
	Subscribe(ev MapEvent, fn func(domain.Viewport)) (cancel func(), err error)
}
