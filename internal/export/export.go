// Package export writes certificate listings to object storage as CSV.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eocert/console/internal/storage"
	"github.com/eocert/console/types"
)

// ErrDisabled is returned when no export bucket is configured.
var ErrDisabled = errors.New("certificate export is not configured")

const (
	pageSize    = 100
	contentType = "text/csv"
	prefix      = "exports/"
)

// Lister pages through the admin certificate listing.
type Lister func(ctx context.Context, filter types.Filter, page, limit int) (types.CertificatePage, error)

// Result describes a finished export.
type Result struct {
	Key   string
	Rows  int
	Bytes int
}

// Exporter streams every matching certificate into one CSV object.
type Exporter struct {
	store storage.ObjectStorage
	list  Lister
	now   func() time.Time
}

// New returns an Exporter. store may be nil, in which case every call
// returns ErrDisabled.
func New(store storage.ObjectStorage, list Lister) *Exporter {
	return &Exporter{store: store, list: list, now: time.Now}
}

func (e *Exporter) Enabled() bool {
	return e != nil && e.store != nil
}

var header = []string{
	types.LabelEONumber,
	types.LabelYear,
	types.LabelVehicleMake,
	types.LabelVehicleModel,
	types.LabelManufacturer,
	types.LabelEngineSize,
	types.LabelEvaporativeFamily,
	types.LabelTestGroup,
	types.LabelExhaustECS,
	types.LabelVehicleClass,
}

func record(c types.Certificate) []string {
	return []string{
		c.EONumber,
		c.Year.String(),
		c.VehicleMake,
		c.VehicleModel,
		c.Manufacturer,
		c.EngineSize,
		c.EvaporativeFamily,
		c.TestGroup,
		c.ExhaustECS,
		c.VehicleClass,
	}
}

// Export writes every certificate matching filter and uploads the file.
func (e *Exporter) Export(ctx context.Context, filter types.Filter) (Result, error) {
	if !e.Enabled() {
		return Result{}, ErrDisabled
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return Result{}, err
	}

	rows := 0
	for page := 1; ; page++ {
		result, err := e.list(ctx, filter, page, pageSize)
		if err != nil {
			return Result{}, fmt.Errorf("list page %d: %w", page, err)
		}
		for _, c := range result.Certificates {
			if err := w.Write(record(c)); err != nil {
				return Result{}, err
			}
			rows++
		}
		if len(result.Certificates) == 0 || result.Pagination == nil || page >= result.Pagination.TotalPages {
			break
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Result{}, fmt.Errorf("write csv: %w", err)
	}

	key := prefix + "certificates-" + e.now().UTC().Format("20060102T150405Z") + ".csv"
	size := buf.Len()
	opts := storage.PutOptions{ContentType: contentType, Metadata: metadata(filter, rows)}
	if err := e.store.Put(ctx, key, &buf, int64(size), opts); err != nil {
		return Result{}, fmt.Errorf("upload %s: %w", key, err)
	}
	slog.Info("certificates_exported", "key", key, "rows", rows, "bucket", e.store.Bucket())
	return Result{Key: key, Rows: rows, Bytes: size}, nil
}

func metadata(filter types.Filter, rows int) map[string]string {
	q := url.Values{}
	for k, v := range filter.Values() {
		q.Set(k, v)
	}
	return map[string]string{"rows": strconv.Itoa(rows), "filter": q.Encode()}
}

// List returns previous exports, newest first.
func (e *Exporter) List(ctx context.Context) ([]storage.Object, error) {
	if !e.Enabled() {
		return nil, ErrDisabled
	}
	return e.store.List(ctx, prefix)
}

// Stat describes a previous export, including the filter and row count it
// was written with.
func (e *Exporter) Stat(ctx context.Context, key string) (storage.Object, error) {
	if !e.Enabled() {
		return storage.Object{}, ErrDisabled
	}
	if err := checkKey(key); err != nil {
		return storage.Object{}, err
	}
	return e.store.Stat(ctx, key)
}

// Open returns a reader for a previous export.
func (e *Exporter) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if !e.Enabled() {
		return nil, ErrDisabled
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return e.store.Get(ctx, key)
}

// Remove deletes a previous export.
func (e *Exporter) Remove(ctx context.Context, key string) error {
	if !e.Enabled() {
		return ErrDisabled
	}
	if err := checkKey(key); err != nil {
		return err
	}
	return e.store.Delete(ctx, key)
}

func checkKey(key string) error {
	if !strings.HasPrefix(key, prefix) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid export key %q", key)
	}
	return nil
}
