package console

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/eocert/console/internal/admin"
	"github.com/eocert/console/internal/backendtest"
	"github.com/eocert/console/internal/filter"
	"github.com/eocert/console/internal/form"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/internal/session"
	"github.com/eocert/console/internal/view"
	"github.com/eocert/console/types"
)

func newApp(t *testing.T, backend *backendtest.Backend, debounce time.Duration) *App {
	t.Helper()
	app := New(Options{
		BaseURL:       backend.URL(),
		Store:         session.NewMemoryStore(),
		Notes:         notify.New(io.Discard),
		Confirm:       admin.Always,
		UserPageSize:  20,
		AdminPageSize: 10,
		Debounce:      debounce,
	})
	t.Cleanup(app.Close)
	return app
}

func seed(backend *backendtest.Backend, n int) {
	for i := 0; i < n; i++ {
		backend.AddCertificate(types.Certificate{
			EONumber:     "A-" + string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Year:         2020,
			VehicleMake:  "FORD",
			VehicleModel: "F150",
		})
	}
}

func TestUserLoginLoadsDashboard(t *testing.T) {
	backend := backendtest.New(t)
	backend.AddUser(types.User{Username: "ada", Email: "ada@example.com", Role: types.RoleUser, Status: types.StatusApproved}, "pw")
	seed(backend, 25)

	app := newApp(t, backend, time.Millisecond)
	if err := app.Router.Login(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if app.Router.State() != view.UserDashboard {
		t.Fatalf("expected user dashboard, got %s", app.Router.State())
	}

	snap := app.UserList.Snapshot()
	if len(snap.Rows) != 20 || snap.TotalPages != 2 {
		t.Fatalf("expected first page of 20 rows over 2 pages, got %d rows, %d pages", len(snap.Rows), snap.TotalPages)
	}
	years := app.Filter.Fields()[0]
	if !years.Enabled || len(years.Options) != 1 || years.Options[0] != "2020" {
		t.Fatalf("expected year options to be loaded, got %+v", years)
	}
}

func TestAdminLoginLoadsUsersAndCertificates(t *testing.T) {
	backend := backendtest.New(t)
	backend.AddUser(types.User{Username: "root", Email: "root@example.com", Role: types.RoleAdmin, Status: types.StatusApproved}, "pw")
	backend.AddUser(types.User{Username: "new", Email: "new@example.com", Role: types.RoleUser, Status: types.StatusPending}, "pw")
	seed(backend, 12)

	app := newApp(t, backend, time.Millisecond)
	if err := app.Router.Login(context.Background(), "root@example.com", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if app.Router.State() != view.AdminDashboard {
		t.Fatalf("expected admin dashboard, got %s", app.Router.State())
	}
	if len(app.Users.Pending()) != 1 || len(app.Users.Others()) != 1 {
		t.Fatalf("expected one pending and one other user")
	}
	if snap := app.AdminList.Snapshot(); len(snap.Rows) != 10 || snap.TotalPages != 2 {
		t.Fatalf("expected 10 admin rows over 2 pages, got %d/%d", len(snap.Rows), snap.TotalPages)
	}
}

func adminOnSecondPage(t *testing.T, n int) (*App, *backendtest.Backend) {
	t.Helper()
	backend := backendtest.New(t)
	backend.AddUser(types.User{Username: "root", Email: "root@example.com", Role: types.RoleAdmin, Status: types.StatusApproved}, "pw")
	seed(backend, n)

	app := newApp(t, backend, time.Millisecond)
	ctx := context.Background()
	if err := app.Router.Login(ctx, "root@example.com", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := app.AdminList.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if page := app.AdminList.Snapshot().Page; page != 2 {
		t.Fatalf("expected page 2, got %d", page)
	}
	backend.ResetRequests()
	return app, backend
}

func lastListQuery(t *testing.T, backend *backendtest.Backend) url.Values {
	t.Helper()
	reqs := backend.Requests("/admin/eo-certificates")
	if len(reqs) == 0 {
		t.Fatalf("expected the admin list to be reloaded")
	}
	return reqs[len(reqs)-1].Query
}

func TestCertificateDeleteReloadsSamePage(t *testing.T) {
	app, backend := adminOnSecondPage(t, 15)
	id := backend.Certificates()[0].ID

	if err := app.Certs.Delete(context.Background(), id.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if q := lastListQuery(t, backend); q.Get("page") != "2" || q.Get("limit") != "10" {
		t.Fatalf("expected reload of page 2 at 10 per page, got %v", q)
	}
	if snap := app.AdminList.Snapshot(); snap.Page != 2 || len(snap.Rows) != 4 {
		t.Fatalf("expected page 2 with 4 rows, got page %d with %d rows", snap.Page, len(snap.Rows))
	}
}

func TestCertificateSaveReloadsSamePage(t *testing.T) {
	app, backend := adminOnSecondPage(t, 15)
	cert := backend.Certificates()[12]
	cert.VehicleModel = "RANGER"

	if err := app.Editor.Save(context.Background(), form.FromCertificate(cert), cert.ID.String()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if q := lastListQuery(t, backend); q.Get("page") != "2" || q.Get("limit") != "10" {
		t.Fatalf("expected reload of page 2 at 10 per page, got %v", q)
	}
	if page := app.AdminList.Snapshot().Page; page != 2 {
		t.Fatalf("expected to stay on page 2, got %d", page)
	}
}

func TestAdminFilterInputDebouncesToPageOne(t *testing.T) {
	backend := backendtest.New(t)
	root := backend.AddUser(types.User{Username: "root", Email: "root@example.com", Role: types.RoleAdmin, Status: types.StatusApproved}, "pw")
	seed(backend, 12)
	backend.AddCertificate(types.Certificate{EONumber: "Z-1", Year: 2021, VehicleMake: "KIA"})

	app := newApp(t, backend, 20*time.Millisecond)
	ctx := context.Background()
	if err := app.Store.Save(ctx, types.Session{Token: backend.IssueToken(root.ID), User: types.User{Role: types.RoleAdmin}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := app.AdminList.Load(ctx, types.Filter{}, 2); err != nil {
		t.Fatalf("load: %v", err)
	}
	backend.ResetRequests()

	for _, ch := range []string{"K", "KI", "KIA"} {
		if err := app.AdminFilterInput("make", ch); err != nil {
			t.Fatalf("input: %v", err)
		}
	}
	if !app.AdminFilterPending() {
		t.Fatalf("expected a pending reload")
	}

	deadline := time.Now().Add(2 * time.Second)
	for app.AdminFilterPending() || app.AdminList.Snapshot().Filter.Make != "KIA" {
		if time.Now().After(deadline) {
			t.Fatalf("debounced reload never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := app.LastDebouncedError(); err != nil {
		t.Fatalf("debounced reload: %v", err)
	}

	reqs := backend.Requests("/admin/eo-certificates")
	if len(reqs) != 1 {
		t.Fatalf("expected a single reload after typing, got %d", len(reqs))
	}
	if q := reqs[0].Query; q.Get("page") != "1" || q.Get("make") != "KIA" {
		t.Fatalf("unexpected reload query %v", q)
	}
	if snap := app.AdminList.Snapshot(); snap.Page != 1 || len(snap.Rows) != 1 {
		t.Fatalf("expected page 1 with one row, got page %d with %d rows", snap.Page, len(snap.Rows))
	}
}

func TestAdminFilterSubmitSkipsTheWait(t *testing.T) {
	backend := backendtest.New(t)
	root := backend.AddUser(types.User{Username: "root", Email: "root@example.com", Role: types.RoleAdmin, Status: types.StatusApproved}, "pw")
	seed(backend, 3)

	app := newApp(t, backend, time.Hour)
	ctx := context.Background()
	_ = app.Store.SetToken(ctx, backend.IssueToken(root.ID))

	if err := app.AdminFilterInput("year", "2020"); err != nil {
		t.Fatalf("input: %v", err)
	}
	if err := app.AdminFilterSubmit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if app.AdminFilterPending() {
		t.Fatalf("expected submit to drop the pending reload")
	}
	if got := backend.Count(http.MethodGet, "/admin/eo-certificates"); got != 1 {
		t.Fatalf("expected one request, got %d", got)
	}
	if err := app.AdminFilterInput("colour", "red"); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestSelectionReloadsUserList(t *testing.T) {
	backend := backendtest.New(t)
	backend.AddUser(types.User{Username: "ada", Email: "ada@example.com", Role: types.RoleUser, Status: types.StatusApproved}, "pw")
	seed(backend, 3)
	backend.AddCertificate(types.Certificate{EONumber: "Z-1", Year: 2021, VehicleMake: "KIA"})

	app := newApp(t, backend, time.Millisecond)
	ctx := context.Background()
	if err := app.Router.Login(ctx, "ada@example.com", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(app.UserList.Snapshot().Rows) != 4 {
		t.Fatalf("expected all four rows unfiltered")
	}
	if err := app.Filter.Select(ctx, filter.Year, "2021"); err != nil {
		t.Fatalf("select: %v", err)
	}
	snap := app.UserList.Snapshot()
	if len(snap.Rows) != 1 || snap.Rows[0].EONumber != "Z-1" || snap.Page != 1 {
		t.Fatalf("expected the 2021 certificate on page 1, got %+v", snap)
	}
}

func TestUnauthorizedSignsOut(t *testing.T) {
	backend := backendtest.New(t)
	backend.AddUser(types.User{Username: "ada", Email: "ada@example.com", Role: types.RoleUser, Status: types.StatusApproved}, "pw")

	app := newApp(t, backend, time.Millisecond)
	ctx := context.Background()
	if err := app.Router.Login(ctx, "ada@example.com", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	backend.RevokeTokens()

	err := app.UserList.Refresh(ctx)
	if err == nil {
		t.Fatalf("expected refresh to fail after revocation")
	}
	if !app.Unauthorized(ctx, err) {
		t.Fatalf("expected 401 to be handled")
	}
	if app.Router.State() != view.Unauthenticated {
		t.Fatalf("expected sign-in view, got %s", app.Router.State())
	}
	if _, err := app.Store.Load(ctx); err == nil {
		t.Fatalf("expected session to be cleared")
	}
}

func TestParseAdminField(t *testing.T) {
	cases := map[string]string{"EO": "eo_number", "eo_number": "eo_number", " Make ": "make", "year": "year"}
	for in, want := range cases {
		got, ok := ParseAdminField(in)
		if !ok || got != want {
			t.Fatalf("ParseAdminField(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseAdminField("colour"); ok {
		t.Fatalf("expected colour to be rejected")
	}
}
