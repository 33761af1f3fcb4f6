// Package audit records admin mutations as events on the message bus.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eocert/console/internal/mq"
	"github.com/google/uuid"
)

// ErrDisabled is returned by Tail when no broker is configured.
var ErrDisabled = errors.New("audit backend is not configured")

// Event is one admin mutation.
type Event struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	TargetID string    `json:"targetId,omitempty"`
	Status   string    `json:"status,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher sends events to the audit channel. A Publisher without a
// backend only logs.
type Publisher struct {
	backend mq.Backend
	now     func() time.Time
}

// NewPublisher returns a Publisher. backend may be nil.
func NewPublisher(backend mq.Backend) *Publisher {
	return &Publisher{backend: backend, now: time.Now}
}

// Enabled reports whether events leave the process.
func (p *Publisher) Enabled() bool {
	return p != nil && p.backend != nil
}

// Record publishes ev, filling its id and timestamp. Publishing failures are
// logged and returned; they never undo the mutation.
func (p *Publisher) Record(ctx context.Context, ev Event) error {
	if p == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = p.now().UTC()
	}
	slog.Info("admin_audit", "id", ev.ID, "kind", ev.Kind, "target", ev.TargetID, "status", ev.Status, "actor", ev.Actor)
	if p.backend == nil {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	env := mq.Envelope{ID: ev.ID, Kind: ev.Kind, Body: data, Published: ev.At}
	if err := p.backend.Publish(ctx, env); err != nil {
		slog.Error("audit_publish_failed", "id", ev.ID, "error", err)
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// Tail decodes events published from now on and hands them to fn until
// ctx is done. Undecodable events are logged and skipped.
func (p *Publisher) Tail(ctx context.Context, fn func(Event) error) error {
	if !p.Enabled() {
		return ErrDisabled
	}
	return p.backend.Follow(ctx, func(ctx context.Context, env mq.Envelope) error {
		var ev Event
		if err := json.Unmarshal(env.Body, &ev); err != nil {
			slog.Error("audit_decode_failed", "id", env.ID, "kind", env.Kind, "error", err)
			return nil
		}
		return fn(ev)
	})
}

// Close releases the backend.
func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.backend.Close()
}
