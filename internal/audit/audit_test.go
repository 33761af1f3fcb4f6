package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/eocert/console/internal/mq"
)

type fakeBackend struct {
	published []mq.Envelope
	err       error
}

func (f *fakeBackend) Publish(ctx context.Context, env mq.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, env)
	return nil
}

func (f *fakeBackend) Follow(ctx context.Context, handler mq.Handler) error {
	for _, env := range f.published {
		if err := handler(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func TestRecordPublishesEvent(t *testing.T) {
	backend := &fakeBackend{}
	p := NewPublisher(backend)
	p.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	if err := p.Record(context.Background(), Event{Kind: "user.status", TargetID: "7", Status: "approved", Actor: "root"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(backend.published) != 1 {
		t.Fatalf("unexpected publish %+v", backend)
	}
	env := backend.published[0]

	var ev Event
	if err := json.Unmarshal(env.Body, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ID == "" || ev.ID != env.ID || env.Kind != "user.status" || !env.Published.Equal(p.now()) {
		t.Fatalf("expected envelope to carry the event id, kind and time, got %+v / %+v", env, ev)
	}
	if ev.Kind != "user.status" || !ev.At.Equal(p.now()) {
		t.Fatalf("unexpected event %+v", ev)
	}

	var tailed []Event
	if err := p.Tail(context.Background(), func(e Event) error {
		tailed = append(tailed, e)
		return nil
	}); err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(tailed) != 1 || tailed[0].TargetID != "7" {
		t.Fatalf("unexpected tailed events %+v", tailed)
	}
}

func TestRecordWithoutBackend(t *testing.T) {
	p := NewPublisher(nil)
	if p.Enabled() {
		t.Fatalf("expected disabled publisher")
	}
	if err := p.Record(context.Background(), Event{Kind: "user.delete"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := p.Tail(context.Background(), func(Event) error { return nil }); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestRecordSurfacesPublishErrors(t *testing.T) {
	p := NewPublisher(&fakeBackend{err: errors.New("broker down")})
	if err := p.Record(context.Background(), Event{Kind: "certificate.delete"}); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestTailSkipsUndecodableEvents(t *testing.T) {
	backend := &fakeBackend{published: []mq.Envelope{
		{ID: "bad", Kind: "user.delete", Body: []byte("{")},
		{ID: "good", Kind: "user.delete", Body: []byte(`{"id":"good","kind":"user.delete","targetId":"9"}`)},
	}}
	var got []string
	if err := NewPublisher(backend).Tail(context.Background(), func(ev Event) error {
		got = append(got, ev.ID)
		return nil
	}); err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 1 || got[0] != "good" {
		t.Fatalf("expected only the decodable event, got %v", got)
	}
}
