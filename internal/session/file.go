package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eocert/console/types"
)

// FileStore keeps the session in a JSON file readable only by the owner.
type FileStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

type persistedSession struct {
	Version int        `json:"version"`
	Token   string     `json:"token"`
	User    types.User `json:"user"`
	SavedAt int64      `json:"savedAt"`
}

// NewFileStore returns a FileStore backed by path. The file and its parent
// directory are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.readLocked()
	if err != nil {
		return types.Session{}, err
	}
	return types.Session{Token: file.Token, User: file.User}, nil
}

func (s *FileStore) Save(ctx context.Context, sess types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(persistedSession{Token: sess.Token, User: sess.User})
}

func (s *FileStore) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.readLocked()
	if err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	file.Token = token
	return s.writeLocked(file)
}

func (s *FileStore) Token(ctx context.Context) (string, error) {
	sess, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	if sess.Token == "" {
		return "", ErrNoSession
	}
	return sess.Token, nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *FileStore) readLocked() (persistedSession, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return persistedSession{}, ErrNoSession
	}
	if err != nil {
		return persistedSession{}, fmt.Errorf("read session file: %w", err)
	}
	var file persistedSession
	if err := json.Unmarshal(data, &file); err != nil {
		return persistedSession{}, fmt.Errorf("decode session file: %w", err)
	}
	return file, nil
}

func (s *FileStore) writeLocked(file persistedSession) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	file.Version = 1
	file.SavedAt = s.now().UnixMilli()
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
