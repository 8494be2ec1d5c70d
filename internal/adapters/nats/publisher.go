package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/metrics"
)

// Publisher implements ports.EventPublisher using NATS JetStream. Session
// performance events fan out to ops tooling; a broker outage degrades to
// dropped events, never to a broken session.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "COVERAGE_PERF_REPORTS",
			Subjects:  []string{"coverage.perf.report.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "COVERAGE_PERF_WARNINGS",
			Subjects:  []string{"coverage.perf.warning.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist — try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishWarning publishes one session warning, keyed by warning type.
func (p *Publisher) PublishWarning(ctx context.Context, sessionID string, w domain.Warning) error {
	data, err := json.Marshal(struct {
		SessionID string `json:"session_id"`
		domain.Warning
	}{SessionID: sessionID, Warning: w})
	if err != nil {
		return err
	}
	metrics.PerformanceWarnings.WithLabelValues(string(w.Type)).Inc()
	_, err = p.js.Publish("coverage.perf.warning."+string(w.Type), data)
	return err
}

// PublishReport publishes a session's periodic performance report.
func (p *Publisher) PublishReport(ctx context.Context, sessionID string, r domain.PerformanceReport) error {
	data, err := json.Marshal(struct {
		SessionID string `json:"session_id"`
		domain.PerformanceReport
	}{SessionID: sessionID, PerformanceReport: r})
	if err != nil {
		return err
	}
	_, err = p.js.Publish("coverage.perf.report."+sessionID, data)
	return err
}

// PublishBroadcast publishes a fire-and-forget message for every API
// instance, e.g. a station-data-changed notification.
func (p *Publisher) PublishBroadcast(ctx context.Context, data []byte) error {
	return p.conn.Publish("coverage.updates.broadcast", data)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. broadcast relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
