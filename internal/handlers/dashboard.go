package handlers

import (
	"net/http"
	"net/url"

	"github.com/eocert/console/internal/console"
	"github.com/eocert/console/internal/filter"
	"github.com/eocert/console/internal/render"
	"github.com/eocert/console/internal/view"
	"github.com/go-chi/chi/v5"
)

var fieldLabels = map[filter.Field]string{
	filter.Year:     "Year",
	filter.Make:     "Make",
	filter.Model:    "Model",
	filter.EONumber: "EO Number",
}

// DashboardHandler serves the read-only certificate search.
type DashboardHandler struct {
	auth *AuthHandler
}

func NewDashboardHandler(auth *AuthHandler) *DashboardHandler {
	return &DashboardHandler{auth: auth}
}

// DashboardRouter registers the user dashboard routes. The router must
// already carry RequireConsole.
func DashboardRouter(r chi.Router, handler *DashboardHandler) {
	r.Get("/", handler.Dashboard)
	r.Get("/certificates/{certificateID}", handler.Certificate)
}

// Dashboard applies the selection in the query and renders the list. A
// changed field is selected through the cascade so everything downstream
// resets; otherwise only the page moves.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	app, _ := consoleFrom(r.Context())
	if app.Router.State() != view.UserDashboard {
		redirect(w, r, dashboardPath(app.Router.State()))
		return
	}
	app.Editor.Modal().Close()

	ctx := r.Context()
	q := r.URL.Query()
	var err error
	switch {
	case q.Has("clear"):
		err = app.Filter.Clear(ctx)
	case hasFilter(q):
		err = h.applySelection(r, app, q)
	default:
		if page, ok := pageParam(q); ok {
			err = app.UserList.Load(ctx, app.Filter.Selection(), page)
		} else if !app.UserList.Snapshot().Loaded {
			err = app.UserList.Reset(ctx, app.Filter.Selection())
		}
	}
	if app.Unauthorized(ctx, err) {
		h.auth.signOut(w, r)
		return
	}
	h.render(w, r, app)
}

func (h *DashboardHandler) applySelection(r *http.Request, app *console.App, q url.Values) error {
	ctx := r.Context()
	for _, f := range []filter.Field{filter.Year, filter.Make, filter.Model, filter.EONumber} {
		value := q.Get(f.String())
		if value != app.Filter.Field(f).Value {
			return app.Filter.Select(ctx, f, value)
		}
	}
	if page, ok := pageParam(q); ok {
		return app.UserList.Load(ctx, app.Filter.Selection(), page)
	}
	if !app.UserList.Snapshot().Loaded {
		return app.UserList.Reset(ctx, app.Filter.Selection())
	}
	return nil
}

// Certificate opens the detail modal over the dashboard.
func (h *DashboardHandler) Certificate(w http.ResponseWriter, r *http.Request) {
	app, _ := consoleFrom(r.Context())
	if app.Router.State() == view.Unauthenticated {
		redirect(w, r, "/login")
		return
	}

	err := app.Editor.View(r.Context(), chi.URLParam(r, "certificateID"))
	if app.Unauthorized(r.Context(), err) {
		h.auth.signOut(w, r)
		return
	}
	if err != nil {
		redirect(w, r, dashboardPath(app.Router.State()))
		return
	}
	if app.Router.State() == view.AdminDashboard {
		adminView(w, r, h.auth, app, http.StatusOK)
		return
	}
	h.render(w, r, app)
}

func (h *DashboardHandler) render(w http.ResponseWriter, r *http.Request, app *console.App) {
	_, sess := consoleFrom(r.Context())
	snap := app.UserList.Snapshot()
	closeURL := listURL("/dashboard", snap.Filter, snap.Page)

	choices := app.Filter.Fields()
	selects := make([]render.Select, 0, len(choices))
	for i, choice := range choices {
		f := filter.Field(i)
		selects = append(selects, render.Select{
			Name:        f.String(),
			Label:       fieldLabels[f],
			Placeholder: f.Placeholder(),
			Value:       choice.Value,
			Options:     choice.Options,
			Disabled:    !choice.Enabled,
		})
	}

	page := render.UserDashboard{
		Page:     basePage(app, sess, "Dashboard", h.auth.now()),
		Selects:  selects,
		ClearURL: "/dashboard?clear=1",
		Rows: certificateRows(snap.Rows, func(id string) string {
			return "/dashboard/certificates/" + url.PathEscape(id)
		}, nil, nil),
		Message: app.UserList.Message(),
		Pager:   pager("/dashboard", app.UserList),
		Modal:   modalView(app.Editor.Modal().View(), sess.CSRFToken, closeURL),
	}
	render.HTML(w, http.StatusOK, "dashboard.html", page)
}
