package session

import (
	"context"
	"sync"

	"github.com/eocert/console/types"
)

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu   sync.RWMutex
	sess types.Session
	set  bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return types.Session{}, ErrNoSession
	}
	return s.sess, nil
}

func (s *MemoryStore) Save(ctx context.Context, sess types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	s.set = true
	return nil
}

func (s *MemoryStore) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.Token = token
	s.set = true
	return nil
}

func (s *MemoryStore) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set || s.sess.Token == "" {
		return "", ErrNoSession
	}
	return s.sess.Token, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = types.Session{}
	s.set = false
	return nil
}
