// Package console assembles the controllers behind one signed-in operator,
// shared by the CLI and the web console.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eocert/console/internal/admin"
	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/internal/audit"
	"github.com/eocert/console/internal/export"
	"github.com/eocert/console/internal/filter"
	"github.com/eocert/console/internal/form"
	"github.com/eocert/console/internal/listing"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/internal/session"
	"github.com/eocert/console/internal/storage"
	"github.com/eocert/console/internal/view"
	"github.com/eocert/console/types"
)

// Options configures an App.
type Options struct {
	BaseURL       string
	Store         session.Store
	Notes         *notify.Notifier
	Confirm       admin.ConfirmFunc
	UserPageSize  int
	AdminPageSize int
	Debounce      time.Duration
	Audit         *audit.Publisher
	Exports       storage.ObjectStorage
	HTTPClient    *http.Client
	// SkipEntryLoad leaves dashboards empty on sign-in; one-shot commands
	// load only what they print.
	SkipEntryLoad bool
}

// App is one operator's console: session, view router, filters, lists,
// editor and admin controllers.
type App struct {
	Client    *api.Client
	Store     session.Store
	Notes     *notify.Notifier
	Router    *view.Router
	Filter    *filter.Cascade
	UserList  *listing.Controller
	AdminList *listing.Controller
	Editor    *form.Editor
	Users     *admin.Users
	Certs     *admin.Certificates
	Exporter  *export.Exporter
	Audit     *audit.Publisher

	mu          sync.Mutex
	adminFilter types.Filter
	debounce    *listing.Debouncer
	lastErr     error
	exports     []string
}

// New wires an App. Store and Notes are required.
func New(opts Options) *App {
	client := api.New(opts.BaseURL, opts.Store, api.WithHTTPClient(opts.HTTPClient))

	a := &App{
		Client: client,
		Store:  opts.Store,
		Notes:  opts.Notes,
		Audit:  opts.Audit,
	}

	a.Router = view.NewRouter(client, opts.Store, opts.Notes)
	a.UserList = listing.New("user", opts.UserPageSize, client.ListCertificates, "")
	a.AdminList = listing.New("admin", opts.AdminPageSize, client.AdminListCertificates, "Error loading admin certificates")
	a.Filter = filter.New(client, opts.Notes, func(ctx context.Context, sel types.Filter) error {
		return a.UserList.Reset(ctx, sel)
	})

	a.Editor = form.NewEditor(client, form.NewModal(), opts.Notes, a.AdminList.Refresh)
	a.Editor.OnSaved(func(ctx context.Context, id string, cert types.Certificate) {
		kind := "certificate.update"
		if id == "" {
			kind = "certificate.create"
			id = cert.EONumber
		}
		a.record(ctx, admin.Change{Kind: kind, TargetID: id})
	})

	a.Users = admin.NewUsers(client, opts.Confirm, opts.Notes)
	a.Users.OnChange(a.record)
	a.Certs = admin.NewCertificates(client, opts.Confirm, opts.Notes, a.AdminList.Refresh)
	a.Certs.OnChange(a.record)

	a.Exporter = export.New(opts.Exports, client.AdminListCertificates)
	a.debounce = listing.NewDebouncer(opts.Debounce, a.debouncedReload)

	if !opts.SkipEntryLoad {
		a.Router.OnEnter(view.UserDashboard, a.enterUser)
		a.Router.OnEnter(view.AdminDashboard, a.enterAdmin)
	}
	return a
}

func (a *App) enterUser(ctx context.Context) error {
	if err := a.Filter.Init(ctx); err != nil {
		slog.Error("load_years_failed", "error", err)
	}
	return a.UserList.Reset(ctx, a.Filter.Selection())
}

func (a *App) enterAdmin(ctx context.Context) error {
	usersErr := a.Users.Load(ctx)
	page := a.AdminList.Snapshot().Page
	if err := a.AdminList.Load(ctx, a.AdminFilter(), page); err != nil {
		a.Notes.Error("Error loading admin certificates")
		return err
	}
	return usersErr
}

func (a *App) record(ctx context.Context, c admin.Change) {
	ev := audit.Event{Kind: c.Kind, TargetID: c.TargetID, Status: c.Status, Actor: a.Router.User().Username}
	if err := a.Audit.Record(ctx, ev); err != nil {
		slog.Error("audit_record_failed", "kind", c.Kind, "error", err)
	}
}

// AdminFilter returns the free-text admin filter.
func (a *App) AdminFilter() types.Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.adminFilter
}

// SetAdminFilter replaces the whole admin filter without loading.
func (a *App) SetAdminFilter(f types.Filter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adminFilter = f
}

// AdminFilterInput updates one admin filter field and schedules a page-one
// reload once typing pauses.
func (a *App) AdminFilterInput(field, value string) error {
	a.mu.Lock()
	switch field {
	case "eo_number":
		a.adminFilter.EONumber = value
	case "year":
		a.adminFilter.Year = value
	case "make":
		a.adminFilter.Make = value
	case "model":
		a.adminFilter.Model = value
	default:
		a.mu.Unlock()
		return fmt.Errorf("unknown admin filter field %q", field)
	}
	a.mu.Unlock()
	a.debounce.Trigger()
	return nil
}

// AdminFilterSubmit applies the admin filter now, dropping any pending
// debounced reload.
func (a *App) AdminFilterSubmit(ctx context.Context) error {
	a.debounce.Cancel()
	return a.AdminList.Reset(ctx, a.AdminFilter())
}

// AdminFilterPending reports whether a debounced reload is waiting.
func (a *App) AdminFilterPending() bool {
	return a.debounce.Pending()
}

// LastDebouncedError returns the error of the most recent debounced reload.
func (a *App) LastDebouncedError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *App) debouncedReload() {
	err := a.AdminList.Reset(context.Background(), a.AdminFilter())
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}

// Unauthorized signs the operator out when err is a 401 and reports
// whether it did.
func (a *App) Unauthorized(ctx context.Context, err error) bool {
	return a.Router.HandleError(ctx, err)
}

// Export writes the admin listing for the current admin filter to the
// export bucket.
func (a *App) Export(ctx context.Context) (export.Result, error) {
	res, err := a.Exporter.Export(ctx, a.AdminFilter())
	if err != nil {
		if errors.Is(err, export.ErrDisabled) {
			a.Notes.Error("Certificate export is not configured")
		} else {
			a.Notes.Error("%s", api.Message(err, "Export failed"))
		}
		return res, err
	}
	a.mu.Lock()
	a.exports = append(a.exports, res.Key)
	a.mu.Unlock()
	a.Notes.Success("Exported %d certificates to %s", res.Rows, res.Key)
	a.record(ctx, admin.Change{Kind: "certificate.export", TargetID: res.Key})
	return res, nil
}

// Exports lists the keys exported by this app, oldest first.
func (a *App) Exports() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.exports...)
}

// Close stops pending timers.
func (a *App) Close() {
	a.debounce.Cancel()
}

// ParseAdminField accepts the admin filter field names used in forms and
// the shell.
func ParseAdminField(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "eo", "eo_number", "eonumber":
		return "eo_number", true
	case "year", "make", "model":
		return strings.ToLower(strings.TrimSpace(name)), true
	default:
		return "", false
	}
}
