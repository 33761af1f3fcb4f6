// Package web holds browser-facing session state for the web console.
package web

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/eocert/console/types"
)

// ErrNoSession is returned for unknown or expired browser sessions.
var ErrNoSession = errors.New("web session not found")

// Session ties a browser cookie to the backend bearer token it signed in
// with.
type Session struct {
	ID        string
	Token     string
	User      types.User
	CSRFToken string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Registry stores browser sessions.
type Registry interface {
	Create(ctx context.Context, token string, user types.User, now time.Time) (Session, error)
	Get(ctx context.Context, id string, now time.Time) (Session, error)
	Delete(ctx context.Context, id string) error
}

// NewSession builds a session with fresh random id and CSRF token.
func NewSession(token string, user types.User, now time.Time, ttl time.Duration) (Session, error) {
	id, err := RandomToken(32)
	if err != nil {
		return Session{}, err
	}
	csrf, err := RandomToken(32)
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:        id,
		Token:     token,
		User:      user,
		CSRFToken: csrf,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// MemoryRegistry keeps sessions in process memory.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
}

func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		sessions: map[string]Session{},
		ttl:      ttl,
	}
}

func (m *MemoryRegistry) Create(ctx context.Context, token string, user types.User, now time.Time) (Session, error) {
	sess, err := NewSession(token, user, now, m.ttl)
	if err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return sess, nil
}

func (m *MemoryRegistry) Get(ctx context.Context, id string, now time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(now)

	sess, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

func (m *MemoryRegistry) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryRegistry) prune(now time.Time) {
	for id, sess := range m.sessions {
		if now.After(sess.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
}

// RandomToken returns size random bytes, base64url encoded.
func RandomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
