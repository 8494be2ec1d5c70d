package http

import (
	"github.com/nats-io/nats.go"

	"github.com/Jaylaelike/sky-view-coverage/internal/adapters/postgres"
	"github.com/Jaylaelike/sky-view-coverage/internal/adapters/valkey"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/cluster"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/ports"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Stations  *usecases.StationService
	Settings  *usecases.SettingsService
	Publisher ports.EventPublisher
	Sessions  *SessionHub
	Cluster   cluster.Config
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
	ImageDir  string // local directory holding compressed coverage images
}
