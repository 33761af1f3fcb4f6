// Package listing pages through certificate lists.
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/types"
)

// EmptyMessage is shown when a successful load returns no rows.
const EmptyMessage = "No certificates found"

// Fetcher loads one page of certificates.
type Fetcher func(ctx context.Context, filter types.Filter, page, limit int) (types.CertificatePage, error)

// Snapshot is a copy of the controller state.
type Snapshot struct {
	Filter     types.Filter
	Page       int
	TotalPages int
	Total      int
	Rows       []types.Certificate
	Err        string
	Loading    bool
	Loaded     bool
}

// Controls is the pagination bar view model.
type Controls struct {
	PageInfo     string
	Page         int
	TotalPages   int
	PrevDisabled bool
	NextDisabled bool
	Visible      bool
}

// Controller owns one certificate list. Every load is tagged with a
// sequence number and only the newest load may write state.
type Controller struct {
	name     string
	pageSize int
	fetch    Fetcher
	errText  string

	mu    sync.Mutex
	seq   uint64
	state Snapshot
}

// New returns a Controller that requests pageSize rows per page. errText,
// when set, replaces backend messages in the inline error.
func New(name string, pageSize int, fetch Fetcher, errText string) *Controller {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Controller{
		name:     name,
		pageSize: pageSize,
		fetch:    fetch,
		errText:  errText,
		state:    Snapshot{Page: 1},
	}
}

// PageSize returns the configured page size.
func (c *Controller) PageSize() int {
	return c.pageSize
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Rows = append([]types.Certificate(nil), c.state.Rows...)
	return s
}

// Load fetches page with filter. An empty page past the first falls back to
// page one, once. A failed load keeps the previous rows and page.
func (c *Controller) Load(ctx context.Context, filter types.Filter, page int) error {
	if page < 1 {
		page = 1
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.state.Loading = true
	c.mu.Unlock()

	result, err := c.fetch(ctx, filter, page, c.pageSize)
	if err == nil && len(result.Certificates) == 0 && page > 1 {
		slog.Debug("list_page_empty", "list", c.name, "page", page)
		page = 1
		result, err = c.fetch(ctx, filter, page, c.pageSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		slog.Debug("list_response_discarded", "list", c.name, "seq", seq, "latest", c.seq)
		return nil
	}
	c.state.Loading = false

	if err != nil {
		c.state.Err = c.errorText(err)
		slog.Error("list_load_failed", "list", c.name, "page", page, "error", err)
		return err
	}

	c.state.Filter = filter
	c.state.Rows = result.Certificates
	c.state.Err = ""
	c.state.Loaded = true
	c.state.Page = page
	c.state.TotalPages = 1
	c.state.Total = len(result.Certificates)
	if p := result.Pagination; p != nil {
		if p.CurrentPage > 0 {
			c.state.Page = p.CurrentPage
		}
		c.state.TotalPages = p.TotalPages
		c.state.Total = p.Total
	}
	return nil
}

// Next loads the following page when there is one.
func (c *Controller) Next(ctx context.Context) error {
	s := c.Snapshot()
	if s.Page >= s.TotalPages {
		return nil
	}
	return c.Load(ctx, s.Filter, s.Page+1)
}

// Prev loads the previous page when not on the first.
func (c *Controller) Prev(ctx context.Context) error {
	s := c.Snapshot()
	if s.Page <= 1 {
		return nil
	}
	return c.Load(ctx, s.Filter, s.Page-1)
}

// Refresh reloads the current page with the current filter.
func (c *Controller) Refresh(ctx context.Context) error {
	s := c.Snapshot()
	return c.Load(ctx, s.Filter, s.Page)
}

// Reset loads page one with filter.
func (c *Controller) Reset(ctx context.Context, filter types.Filter) error {
	return c.Load(ctx, filter, 1)
}

// Controls builds the pagination bar for the current state.
func (c *Controller) Controls() Controls {
	s := c.Snapshot()
	return Controls{
		PageInfo:     fmt.Sprintf("Page %d of %d", s.Page, s.TotalPages),
		Page:         s.Page,
		TotalPages:   s.TotalPages,
		PrevDisabled: s.Page <= 1,
		NextDisabled: s.Page >= s.TotalPages || s.TotalPages == 0,
		Visible:      s.TotalPages > 1,
	}
}

// Message is the text shown in place of the table, or "" when rows exist.
func (c *Controller) Message() string {
	s := c.Snapshot()
	switch {
	case s.Err != "":
		return s.Err
	case s.Loading && !s.Loaded:
		return "Loading..."
	case s.Loaded && len(s.Rows) == 0:
		return EmptyMessage
	default:
		return ""
	}
}

func (c *Controller) errorText(err error) string {
	if c.errText != "" {
		return c.errText
	}
	return "Error: " + api.Message(err, "Failed to load")
}
