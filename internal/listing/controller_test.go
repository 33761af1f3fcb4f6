package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/internal/backendtest"
	"github.com/eocert/console/types"
)

func seeded(t *testing.T, n int) (*backendtest.Backend, *api.Client) {
	t.Helper()
	backend := backendtest.New(t)
	user := backend.AddUser(types.User{Username: "u", Email: "u@example.com"}, "pw")
	for i := 0; i < n; i++ {
		vehicleMake := "FORD"
		if i%2 == 1 {
			vehicleMake = "KIA"
		}
		backend.AddCertificate(types.Certificate{EONumber: fmt.Sprintf("A-%03d", i), Year: 2020, VehicleMake: vehicleMake})
	}
	return backend, api.New(backend.URL(), api.StaticToken(backend.IssueToken(user.ID)))
}

func TestLoadAndControls(t *testing.T) {
	_, client := seeded(t, 45)
	c := New("user", 20, client.ListCertificates, "")
	ctx := context.Background()

	if err := c.Load(ctx, types.Filter{}, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	s := c.Snapshot()
	if len(s.Rows) != 20 || s.TotalPages != 3 || s.Total != 45 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	ctl := c.Controls()
	if ctl.PageInfo != "Page 1 of 3" || !ctl.PrevDisabled || ctl.NextDisabled || !ctl.Visible {
		t.Fatalf("unexpected controls %+v", ctl)
	}

	_ = c.Next(ctx)
	_ = c.Next(ctx)
	ctl = c.Controls()
	if ctl.Page != 3 || ctl.PrevDisabled || !ctl.NextDisabled {
		t.Fatalf("unexpected controls on last page %+v", ctl)
	}
	if len(c.Snapshot().Rows) != 5 {
		t.Fatalf("expected 5 rows on last page")
	}
	_ = c.Next(ctx)
	if c.Snapshot().Page != 3 {
		t.Fatalf("next past the end should be a no-op")
	}
	_ = c.Prev(ctx)
	if c.Snapshot().Page != 2 {
		t.Fatalf("expected page 2 after prev")
	}
}

func TestSinglePageHidesControls(t *testing.T) {
	_, client := seeded(t, 4)
	c := New("admin", 10, client.AdminListCertificates, "")
	if err := c.Load(context.Background(), types.Filter{}, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Controls().Visible {
		t.Fatalf("expected controls hidden for a single page")
	}
	if c.Message() != "" {
		t.Fatalf("expected no message with rows present")
	}
}

func TestEmptyPageFallsBackToFirstOnce(t *testing.T) {
	backend, client := seeded(t, 25)
	c := New("user", 20, client.ListCertificates, "")
	ctx := context.Background()

	if err := c.Load(ctx, types.Filter{}, 2); err != nil {
		t.Fatalf("load: %v", err)
	}
	backend.ResetRequests()

	if err := c.Load(ctx, types.Filter{Make: "FORD"}, 2); err != nil {
		t.Fatalf("load: %v", err)
	}
	reqs := backend.Requests("/eo-certificates")
	if len(reqs) != 2 || reqs[0].Query.Get("page") != "2" || reqs[1].Query.Get("page") != "1" {
		t.Fatalf("expected page 2 then page 1, got %+v", reqs)
	}
	if s := c.Snapshot(); s.Page != 1 || len(s.Rows) != 13 {
		t.Fatalf("unexpected snapshot after fallback %+v", s)
	}

	backend.ResetRequests()
	if err := c.Load(ctx, types.Filter{Make: "TESLA"}, 3); err != nil {
		t.Fatalf("load: %v", err)
	}
	if n := len(backend.Requests("/eo-certificates")); n != 2 {
		t.Fatalf("expected exactly one fallback, got %d calls", n)
	}
	if c.Message() != EmptyMessage {
		t.Fatalf("expected empty message, got %q", c.Message())
	}
}

func TestFailureKeepsState(t *testing.T) {
	backend, client := seeded(t, 30)
	c := New("user", 20, client.ListCertificates, "")
	ctx := context.Background()
	_ = c.Load(ctx, types.Filter{Year: "2020"}, 2)

	backend.Fail(http.MethodGet, "/eo-certificates", http.StatusInternalServerError, "database unavailable")
	err := c.Load(ctx, types.Filter{Year: "2021"}, 1)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected API error, got %v", err)
	}

	s := c.Snapshot()
	if s.Page != 2 || s.Filter.Year != "2020" || len(s.Rows) != 10 {
		t.Fatalf("expected previous state to survive, got %+v", s)
	}
	if s.Err != "Error: database unavailable" || c.Message() != s.Err {
		t.Fatalf("unexpected inline error %q", s.Err)
	}

	backend.Recover(http.MethodGet, "/eo-certificates")
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.Snapshot().Err != "" {
		t.Fatalf("expected error to clear after a good load")
	}
}

func TestStaleResponsesAreDiscarded(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	fetch := func(ctx context.Context, filter types.Filter, page, limit int) (types.CertificatePage, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
			return types.CertificatePage{
				Certificates: []types.Certificate{{EONumber: "OLD"}},
				Pagination:   &types.Pagination{CurrentPage: 1, TotalPages: 1, Total: 1},
			}, nil
		}
		return types.CertificatePage{
			Certificates: []types.Certificate{{EONumber: "NEW"}},
			Pagination:   &types.Pagination{CurrentPage: 1, TotalPages: 1, Total: 1},
		}, nil
	}
	c := New("user", 20, fetch, "")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.Load(context.Background(), types.Filter{Year: "2019"}, 1)
	}()
	for atomic.LoadInt32(&calls) == 0 {
		time.Sleep(time.Millisecond)
	}

	if err := c.Load(context.Background(), types.Filter{Year: "2020"}, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	close(release)
	wg.Wait()

	s := c.Snapshot()
	if len(s.Rows) != 1 || s.Rows[0].EONumber != "NEW" || s.Filter.Year != "2020" {
		t.Fatalf("expected the newer response to win, got %+v", s)
	}
}

func TestCustomErrorText(t *testing.T) {
	c := New("admin", 10, func(context.Context, types.Filter, int, int) (types.CertificatePage, error) {
		return types.CertificatePage{}, errors.New("boom")
	}, "Error loading admin certificates")
	_ = c.Load(context.Background(), types.Filter{}, 1)
	if c.Message() != "Error loading admin certificates" {
		t.Fatalf("unexpected message %q", c.Message())
	}
}
