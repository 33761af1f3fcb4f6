// Package storage keeps certificate exports in an object bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/eocert/console/config"
)

// ErrNotFound is returned for a missing key.
var ErrNotFound = errors.New("object not found")

// Object describes one stored export.
type Object struct {
	Key         string
	Size        int64
	ContentType string
	Modified    time.Time
	// Metadata holds the export annotations written by Put. Listing does
	// not fill it; use Stat.
	Metadata map[string]string
}

// Name is the last path segment of the key.
func (o Object) Name() string {
	return path.Base(o.Key)
}

// PutOptions annotate an upload.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStorage is implemented by each bucket backend.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Object, error)
	// List returns the objects under prefix, newest first.
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Open connects the backend named by cfg.Backend and makes sure its bucket
// exists. An empty or "none" backend returns nil; exports are then
// disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown export backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return backend, nil
}

// attachment is the Content-Disposition of an export download.
func attachment(key string) string {
	return fmt.Sprintf("attachment; filename=%q", path.Base(key))
}

func newestFirst(objects []Object) []Object {
	sort.SliceStable(objects, func(i, j int) bool {
		if objects[i].Modified.Equal(objects[j].Modified) {
			return objects[i].Key > objects[j].Key
		}
		return objects[i].Modified.After(objects[j].Modified)
	})
	return objects
}
