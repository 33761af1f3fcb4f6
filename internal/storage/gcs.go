package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/eocert/console/config"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSClient keeps exports in a Google Cloud Storage bucket.
type GCSClient struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	name      string
	projectID string
}

// NewGCSClient validates cfg and creates the SDK client.
func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSClient{
		client:    client,
		bucket:    client.Bucket(cfg.Bucket),
		name:      cfg.Bucket,
		projectID: cfg.ProjectID,
	}, nil
}

// EnsureBucket creates the bucket when missing, which needs a project id.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return err
	}
	if strings.TrimSpace(g.projectID) == "" {
		return errors.New("gcs project id is required to create bucket")
	}
	return g.bucket.Create(ctx, g.projectID, nil)
}

// Put streams an export into the bucket with its annotations as object
// metadata.
func (g *GCSClient) Put(ctx context.Context, key string, r io.Reader, _ int64, opts PutOptions) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.ContentDisposition = attachment(key)
	w.Metadata = opts.Metadata
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (g *GCSClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, gcsError(err)
	}
	return r, nil
}

func (g *GCSClient) Stat(ctx context.Context, key string) (Object, error) {
	attrs, err := g.bucket.Object(key).Attrs(ctx)
	if err != nil {
		return Object{}, gcsError(err)
	}
	obj := gcsObject(attrs)
	obj.Metadata = attrs.Metadata
	return obj, nil
}

func (g *GCSClient) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, gcsObject(attrs))
	}
	return newestFirst(out), nil
}

func (g *GCSClient) Delete(ctx context.Context, key string) error {
	return gcsError(g.bucket.Object(key).Delete(ctx))
}

func (g *GCSClient) Bucket() string {
	return g.name
}

func gcsObject(attrs *storage.ObjectAttrs) Object {
	return Object{Key: attrs.Name, Size: attrs.Size, ContentType: attrs.ContentType, Modified: attrs.Updated}
}

func gcsError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}
