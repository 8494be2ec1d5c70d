package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Jaylaelike/sky-view-coverage/internal/adapters/http"
	natsadapter "github.com/Jaylaelike/sky-view-coverage/internal/adapters/nats"
	"github.com/Jaylaelike/sky-view-coverage/internal/adapters/postgres"
	"github.com/Jaylaelike/sky-view-coverage/internal/adapters/valkey"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/cluster"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/usecases"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/config"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/logging"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/metrics"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("skyview-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			}
		}
	}()

	// Cache. Settings persistence rides on it, so it is required here.
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	// NATS publisher for performance events
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
	}

	// Raw NATS connection for readiness checks
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats raw conn unavailable", "error", err)
	}

	// Repos
	stationRepo := postgres.NewStationRepo(db)
	technicalRepo := postgres.NewTechnicalRepo(db)
	settingsStore := valkey.NewSettingsStore(cache)

	// Use cases. The API never enqueues compression; the ingestor owns that.
	stationSvc := usecases.NewStationService(stationRepo, technicalRepo, cache, nil)
	settingsSvc := usecases.NewSettingsService(settingsStore)

	hub := http.NewSessionHub()

	deps := &http.Dependencies{
		Stations: stationSvc,
		Settings: settingsSvc,
		Sessions: hub,
		Cluster: cluster.Config{
			RadiusPX:      float64(cfg.Map.ClusterRadiusPX),
			MinPoints:     2,
			MinZoom:       0,
			MaxZoom:       cfg.Map.ClusterMaxZoom,
			DisableAtZoom: cfg.Map.DisableAtZoom,
			NameSample:    3,
		},
		DB:       db,
		Cache:    cache,
		NATS:     natsConn,
		ImageDir: cfg.Images.Dir,
	}
	if pub != nil {
		deps.Publisher = pub
	}

	// Broadcast subscription: another instance ingesting new coverage data
	// pushes fresh station lists into every live session here.
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats broadcast subscription unavailable", "error", err)
	} else {
		defer sub.Close()
		err = sub.SubscribeBroadcast(func(data []byte) {
			stations, err := stationSvc.List(ctx)
			if err != nil {
				slog.Error("station reload after broadcast failed", "error", err)
				return
			}
			hub.ReloadAll(stations)
		})
		if err != nil {
			slog.Warn("broadcast subscribe failed", "error", err)
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "SkyView Coverage API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,PATCH,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
