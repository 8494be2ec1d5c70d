package natsadapter

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Subscriber relays broadcast messages into the process, so every API
// instance hears about station-data changes made through any of them.
type Subscriber struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Subscriber{conn: conn}, nil
}

// SubscribeBroadcast delivers each broadcast payload to the handler.
func (s *Subscriber) SubscribeBroadcast(handler func(data []byte)) error {
	sub, err := s.conn.Subscribe("coverage.updates.broadcast", func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe broadcast: %w", err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains the connection.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
