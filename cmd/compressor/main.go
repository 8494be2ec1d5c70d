package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/Jaylaelike/sky-view-coverage/internal/adapters/postgres"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/config"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/logging"
	"github.com/Jaylaelike/sky-view-coverage/internal/workflows"
)

func main() {
	cfg, err := config.Load("skyview-compressor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Setup("info", "json")

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.CompressionWorkflow)
	w.RegisterActivity(&workflows.CompressionActivities{
		Stations:      postgres.NewStationRepo(db),
		HTTPClient:    &http.Client{Timeout: 60 * time.Second},
		ObjectDir:     cfg.Images.Dir,
		PublicBaseURL: cfg.Images.PublicBaseURL,
	})

	log.Printf("compression worker started on queue %s", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
