package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/eocert/console/config"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const (
	attrEventID = "event_id"
	attrKind    = "kind"

	// Pub/Sub does not accept a shorter expiration.
	followerExpiry    = 24 * time.Hour
	followerRetention = 10 * time.Minute
)

// PubSubClient publishes audit events to the topic named after the channel.
// Each follower gets a subscription of its own that is deleted when it
// stops.
type PubSubClient struct {
	client *pubsub.Client
	name   string
	suffix string

	once     sync.Once
	topic    *pubsub.Topic
	topicErr error
}

// NewPubSubClient creates a Pub/Sub client.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig, channel string) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	suffix := cfg.SubscriptionSuffix
	if suffix == "" {
		suffix = "-console"
	}
	return &PubSubClient{client: client, name: channel, suffix: suffix}, nil
}

// Publish sends env and waits for the server to accept it.
func (p *PubSubClient) Publish(ctx context.Context, env Envelope) error {
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		return err
	}
	_, err = topic.Publish(ctx, &pubsub.Message{
		Data:       env.Body,
		Attributes: map[string]string{attrEventID: env.ID, attrKind: env.Kind},
	}).Get(ctx)
	return err
}

// Follow creates a follower subscription and receives from it until ctx is
// done.
func (p *PubSubClient) Follow(ctx context.Context, handler Handler) error {
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		return err
	}
	id := p.name + p.suffix + "-" + uuid.NewString()[:8]
	sub, err := p.client.CreateSubscription(ctx, id, pubsub.SubscriptionConfig{
		Topic:             topic,
		ExpirationPolicy:  followerExpiry,
		RetentionDuration: followerRetention,
	})
	if err != nil {
		return fmt.Errorf("create subscription %s: %w", id, err)
	}
	defer func() {
		cleanup, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = sub.Delete(cleanup)
	}()

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		env := Envelope{
			ID:        msg.Attributes[attrEventID],
			Kind:      msg.Attributes[attrKind],
			Body:      msg.Data,
			Published: msg.PublishTime,
		}
		if env.ID == "" {
			env.ID = msg.ID
		}
		if err := handler(ctx, env); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (p *PubSubClient) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	return p.client.Close()
}

func (p *PubSubClient) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	p.once.Do(func() {
		topic := p.client.Topic(p.name)
		exists, err := topic.Exists(ctx)
		switch {
		case err != nil:
			p.topicErr = err
		case !exists:
			topic, p.topicErr = p.client.CreateTopic(ctx, p.name)
		}
		p.topic = topic
	})
	return p.topic, p.topicErr
}
