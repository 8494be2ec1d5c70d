package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.temporal.io/sdk/client"

	natsadapter "github.com/Jaylaelike/sky-view-coverage/internal/adapters/nats"
	"github.com/Jaylaelike/sky-view-coverage/internal/adapters/postgres"
	temporaladapter "github.com/Jaylaelike/sky-view-coverage/internal/adapters/temporal"
	"github.com/Jaylaelike/sky-view-coverage/internal/adapters/valkey"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/ports"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/usecases"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/config"
)

// ---------------------------------------------------------------------------
// Manifest types
// ---------------------------------------------------------------------------

type Manifest struct {
	Source   string         `json:"source"`
	Stations []StationEntry `json:"stations"`
}

type StationEntry struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	SWLat    float64 `json:"sw_lat"`
	SWLng    float64 `json:"sw_lng"`
	NELat    float64 `json:"ne_lat"`
	NELng    float64 `json:"ne_lng"`
	ImageURL string  `json:"image_url"`
	Hidden   bool    `json:"hidden,omitempty"`
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load("skyview-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	manifestPath := "manifest.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}

	log.Printf("SkyView Coverage Ingestor — %d stations from %s", len(manifest.Stations), manifest.Source)

	// Temporal client for compression enqueue. Optional: without it the
	// full-size images keep serving.
	var compressor *temporaladapter.Compressor
	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Printf("temporal unavailable, skipping compression enqueue: %v", err)
	} else {
		defer tc.Close()
		compressor = temporaladapter.NewCompressor(tc, cfg.Temporal.TaskQueue)
	}

	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Printf("valkey unavailable, caches will go stale on their own: %v", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	stationRepo := postgres.NewStationRepo(db)
	technicalRepo := postgres.NewTechnicalRepo(db)

	var cacheSvc ports.CacheService
	if cache != nil {
		cacheSvc = cache
	}
	var comp ports.ImageCompressor
	if compressor != nil {
		comp = compressor
	}
	svc := usecases.NewStationService(stationRepo, technicalRepo, cacheSvc, comp)

	if err := ingestStations(ctx, svc, manifest.Stations); err != nil {
		log.Fatalf("stations: %v", err)
	}

	// Optional second arg: technical data CSV
	if len(os.Args) > 2 {
		if err := ingestTechnicalCSV(ctx, technicalRepo, os.Args[2]); err != nil {
			log.Printf("technical data: %v", err)
		}
	}

	// Tell running API instances to push fresh station lists into their
	// live sessions.
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Printf("nats unavailable, live sessions will refresh on reconnect: %v", err)
	} else {
		defer pub.Close()
		payload, _ := json.Marshal(map[string]string{
			"change": "ingest",
			"source": manifest.Source,
			"at":     time.Now().UTC().Format(time.RFC3339),
		})
		if err := pub.PublishBroadcast(ctx, payload); err != nil {
			log.Printf("broadcast: %v", err)
		}
	}

	log.Println("ingestion complete")
}

// ---------------------------------------------------------------------------
// Stations
// ---------------------------------------------------------------------------

func ingestStations(ctx context.Context, svc *usecases.StationService, entries []StationEntry) error {
	stations := make([]domain.Station, 0, len(entries))
	skipped := 0

	for _, e := range entries {
		if e.ID == "" || e.Name == "" {
			skipped++
			continue
		}
		st := domain.Station{
			ID:   e.ID,
			Name: e.Name,
			Bounds: domain.LatLngBounds{
				SW: domain.GeoPoint{Lat: e.SWLat, Lng: e.SWLng},
				NE: domain.GeoPoint{Lat: e.NELat, Lng: e.NELng},
			},
			ImageURL: e.ImageURL,
			Visible:  !e.Hidden,
		}
		if !st.Bounds.Valid() {
			log.Printf("  skipping %s: invalid bounds", e.ID)
			skipped++
			continue
		}
		stations = append(stations, st)
	}

	if err := svc.Ingest(ctx, stations, 0.7); err != nil {
		return err
	}

	log.Printf("  stations: %d upserted, %d skipped", len(stations), skipped)
	return nil
}

// ---------------------------------------------------------------------------
// Technical data CSV
// ---------------------------------------------------------------------------

func ingestTechnicalCSV(ctx context.Context, repo *postgres.TechnicalRepo, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)

	for _, required := range []string{"id", "station_name", "latitude", "longitude"} {
		if _, ok := cols[required]; !ok {
			return fmt.Errorf("csv missing required column %q", required)
		}
	}

	const batchSize = 500
	var batch []domain.TechnicalData
	total := 0
	skipped := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := repo.UpsertBatch(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		lat, _ := strconv.ParseFloat(strings.TrimSpace(record[cols["latitude"]]), 64)
		lng, _ := strconv.ParseFloat(strings.TrimSpace(record[cols["longitude"]]), 64)
		heightM, _ := strconv.ParseFloat(getField(record, cols, "height_m"), 64)
		powerKW, _ := strconv.ParseFloat(getField(record, cols, "power_kw"), 64)

		t := domain.TechnicalData{
			ID:          strings.TrimSpace(record[cols["id"]]),
			StationName: strings.TrimSpace(record[cols["station_name"]]),
			StationType: getField(record, cols, "station_type"),
			Owner:       getField(record, cols, "owner"),
			Latitude:    lat,
			Longitude:   lng,
			AntennaType: getField(record, cols, "antenna_type"),
			HeightM:     heightM,
			PowerKW:     powerKW,
		}
		if t.ID == "" || t.StationName == "" {
			skipped++
			continue
		}

		batch = append(batch, t)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}

	log.Printf("  technical: %d upserted, %d skipped", total, skipped)
	return nil
}

// ---------------------------------------------------------------------------
// CSV helpers
// ---------------------------------------------------------------------------

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.ToLower(h))] = i
	}
	return cols
}

func getField(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
