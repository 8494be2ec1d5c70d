package http

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/cluster"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/geospatial"
)

// DataStats holds row counts over the coverage tables.
type DataStats struct {
	Stations   int    `json:"stations"`
	Compressed int    `json:"compressed"`
	Technical  int    `json:"technical"`
	LastIngest string `json:"last_ingest,omitempty"`
}

// DataStatsHandler returns row counts from the coverage tables.
func DataStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats DataStats
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM stations),
				(SELECT count(*) FROM stations WHERE compressed_image_url IS NOT NULL),
				(SELECT count(*) FROM technical_data),
				COALESCE((SELECT max(created_at)::text FROM stations), '')
		`)
		if err := row.Scan(&stats.Stations, &stats.Compressed, &stats.Technical, &stats.LastIngest); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}

// ListStationsHandler returns all coverage stations, paginated.
func ListStationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stations, err := deps.Stations.List(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}

		start, end, pg := PageBounds(c.QueryInt("offset", 0), c.QueryInt("limit", 100), len(stations), 100, 500)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: stations[start:end], Pagination: pg})
	}
}

// GetStationHandler returns a single coverage station.
func GetStationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "station id is required")
		}

		station, err := deps.Stations.GetByID(c.Context(), id)
		if err != nil {
			return errNotFound(c, "station "+id+" not found")
		}
		return c.JSON(station)
	}
}

// SetStationVisibleHandler toggles a station's visibility and broadcasts
// the change so live sessions refresh.
func SetStationVisibleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		var body struct {
			Visible bool `json:"visible"`
		}
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid body: "+err.Error())
		}

		if err := deps.Stations.SetVisible(c.Context(), id, body.Visible); err != nil {
			return errNotFound(c, err.Error())
		}
		LoggerFromCtx(c.UserContext()).Info("station visibility changed", "station_id", id, "visible", body.Visible)

		if deps.Publisher != nil {
			payload, _ := json.Marshal(map[string]string{"change": "visibility", "station_id": id})
			_ = deps.Publisher.PublishBroadcast(c.Context(), payload)
		}

		return c.JSON(fiber.Map{"id": id, "visible": body.Visible})
	}
}

// parseBBox parses "west,south,east,north".
func parseBBox(s string) (domain.Viewport, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Viewport{}, fiber.NewError(400, "bbox must be west,south,east,north")
	}
	var vals [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Viewport{}, fiber.NewError(400, "bbox contains a non-numeric value")
		}
		vals[i] = f
	}
	v := domain.Viewport{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	v.Center = domain.GeoPoint{Lat: (v.North + v.South) / 2, Lng: (v.East + v.West) / 2}
	return v, nil
}

// ClustersHandler computes the cluster view for a bounding box and zoom,
// for clients that fetch clusters over REST instead of a live session.
func ClustersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bbox := c.Query("bbox")
		if bbox == "" {
			return errBadRequest(c, "bbox query parameter is required")
		}
		vp, err := parseBBox(bbox)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		zoom := c.QueryFloat("zoom", 10)
		vp.Zoom = zoom

		stations, err := deps.Stations.List(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}

		idx := cluster.New(deps.Cluster).WithStations(stations)
		clusters, points := idx.GetClusters(vp, zoom)

		return c.JSON(fiber.Map{
			"clusters":   clusters,
			"points":     points,
			"clustering": idx.ShouldCluster(zoom),
		})
	}
}

// TechnicalSearchHandler searches transmitter records by name, owner, or type.
func TechnicalSearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := c.Query("q")
		if query == "" {
			return errBadRequest(c, "q query parameter is required")
		}
		limit := c.QueryInt("limit", 20)

		records, err := deps.Stations.SearchTechnical(c.Context(), query, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{"data": records, "count": len(records)})
	}
}

// TechnicalInBoundsHandler returns transmitter records inside a bbox, each
// annotated with distance and accessibility relative to an optional
// reference point.
func TechnicalInBoundsHandler(deps *Dependencies) fiber.Handler {
	type annotated struct {
		domain.TechnicalData
		DistanceM     float64 `json:"distance_m,omitempty"`
		Accessibility float64 `json:"accessibility,omitempty"`
	}

	return func(c *fiber.Ctx) error {
		bbox := c.Query("bbox")
		if bbox == "" {
			return errBadRequest(c, "bbox query parameter is required")
		}
		vp, err := parseBBox(bbox)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		limit := c.QueryInt("limit", 500)

		records, err := deps.Stations.TechnicalInViewport(c.Context(), vp, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		refLat := c.QueryFloat("ref_lat", 0)
		refLng := c.QueryFloat("ref_lng", 0)
		ref := domain.GeoPoint{Lat: refLat, Lng: refLng}
		hasRef := !(refLat == 0 && refLng == 0)

		out := make([]annotated, 0, len(records))
		for _, t := range records {
			a := annotated{TechnicalData: t}
			if hasRef {
				a.DistanceM = geospatial.Haversine(ref.Lat, ref.Lng, t.Latitude, t.Longitude)
				a.Accessibility = geospatial.AccessibilityScore(ref, t)
			}
			out = append(out, a)
		}
		return c.JSON(fiber.Map{"data": out, "count": len(out)})
	}
}

// ResolveSettingsHandler profiles a device from posted signals and returns
// the effective performance settings, for clients that want them before
// opening a session.
func ResolveSettingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			ClientID string               `json:"client_id"`
			Signals  domain.DeviceSignals `json:"signals"`
		}
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid body: "+err.Error())
		}

		profile, settings, err := deps.Settings.Resolve(c.Context(), body.ClientID, body.Signals)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{"profile": profile, "settings": settings})
	}
}

// SaveSettingsHandler persists a client's settings override.
func SaveSettingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := c.Params("clientID")
		if clientID == "" {
			return errBadRequest(c, "client id is required")
		}

		var settings domain.PerformanceSettings
		if err := c.BodyParser(&settings); err != nil {
			return errBadRequest(c, "invalid body: "+err.Error())
		}

		if err := deps.Settings.Save(c.Context(), clientID, settings); err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{"client_id": clientID, "saved": true})
	}
}
