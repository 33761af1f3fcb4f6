package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/eocert/console/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

const appID = "eocert-console"

// RabbitMQClient publishes audit events to a fanout exchange named after
// the channel. Each follower reads from its own exclusive queue.
type RabbitMQClient struct {
	conn     *amqp.Connection
	exchange string
	prefetch int

	mu      sync.Mutex
	publish *amqp.Channel
}

// NewRabbitMQClient dials RabbitMQ and declares the exchange and, when
// configured, the archive queue.
func NewRabbitMQClient(cfg config.RabbitMQConfig, channel string) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	fail := func(step string, err error) (*RabbitMQClient, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if err := ch.ExchangeDeclare(channel, amqp.ExchangeFanout, cfg.Durable, false, false, false, nil); err != nil {
		return fail("declare audit exchange", err)
	}
	if cfg.ArchiveQueue != "" {
		if _, err := ch.QueueDeclare(cfg.ArchiveQueue, cfg.Durable, false, false, false, nil); err != nil {
			return fail("declare archive queue", err)
		}
		if err := ch.QueueBind(cfg.ArchiveQueue, "", channel, false, nil); err != nil {
			return fail("bind archive queue", err)
		}
	}

	return &RabbitMQClient{conn: conn, exchange: channel, prefetch: cfg.PrefetchCount, publish: ch}, nil
}

// Publish sends env to the exchange as a persistent JSON message.
func (r *RabbitMQClient) Publish(ctx context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publish.PublishWithContext(ctx, r.exchange, env.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Type:         env.Kind,
		Timestamp:    env.Published,
		AppId:        appID,
		Body:         env.Body,
	})
}

// Follow binds a server-named exclusive queue to the exchange and consumes
// it on a channel of its own until ctx is done. The queue goes away with
// the follower.
func (r *RabbitMQClient) Follow(ctx context.Context, handler Handler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	defer ch.Close()

	if r.prefetch > 0 {
		if err := ch.Qos(r.prefetch, 0, false); err != nil {
			return fmt.Errorf("set rabbitmq prefetch: %w", err)
		}
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare follower queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		return fmt.Errorf("bind follower queue: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			env := Envelope{ID: d.MessageId, Kind: d.Type, Body: d.Body, Published: d.Timestamp}
			if err := handler(ctx, env); err != nil {
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() error {
	r.mu.Lock()
	_ = r.publish.Close()
	r.mu.Unlock()
	return r.conn.Close()
}
