// Package mq carries admin audit events over a message broker.
package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eocert/console/config"
)

// Envelope is one event on the audit channel. Body is opaque to the broker.
type Envelope struct {
	ID        string
	Kind      string
	Body      []byte
	Published time.Time
}

// Handler processes one delivery. An error rejects it: RabbitMQ drops the
// delivery, Pub/Sub redelivers it.
type Handler func(ctx context.Context, env Envelope) error

// Backend is implemented by each broker. A Backend is bound to one channel.
type Backend interface {
	Publish(ctx context.Context, env Envelope) error
	// Follow delivers every envelope published after it starts until ctx is
	// done. Followers each see every envelope.
	Follow(ctx context.Context, handler Handler) error
	Close() error
}

// Open connects the backend named by cfg.Backend. An empty or "none"
// backend returns nil with no error; callers treat that as disabled.
func Open(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	channel := strings.TrimSpace(cfg.Channel)
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend != "" && backend != "none" && channel == "" {
		return nil, fmt.Errorf("audit channel is required")
	}
	switch backend {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		client, err := NewRabbitMQClient(cfg.RabbitMQ, channel)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "pubsub":
		client, err := NewPubSubClient(ctx, cfg.PubSub, channel)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}
