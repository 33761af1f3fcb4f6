package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"

	"github.com/eocert/console/internal/admin"
	"github.com/eocert/console/internal/console"
	"github.com/eocert/console/internal/export"
	"github.com/eocert/console/internal/form"
	"github.com/eocert/console/internal/render"
	"github.com/eocert/console/internal/storage"
	"github.com/eocert/console/internal/view"
	"github.com/eocert/console/types"
	"github.com/go-chi/chi/v5"
)

const exportPrefix = "exports/"

// AdminHandler serves user administration and certificate maintenance.
type AdminHandler struct {
	auth *AuthHandler
}

func NewAdminHandler(auth *AuthHandler) *AdminHandler {
	return &AdminHandler{auth: auth}
}

// AdminRouter registers the admin routes. The router must already carry
// RequireConsole and RequireCSRF.
func AdminRouter(r chi.Router, handler *AdminHandler) {
	r.Use(handler.requireAdmin)

	r.Get("/", handler.Dashboard)
	r.Get("/certificates/new", handler.NewCertificate)
	r.Post("/certificates", handler.CreateCertificate)
	r.Post("/certificates/export", handler.Export)
	r.Get("/certificates/{certificateID}", handler.EditCertificate)
	r.Post("/certificates/{certificateID}", handler.UpdateCertificate)
	r.Post("/certificates/{certificateID}/delete", handler.DeleteCertificate)
	r.Post("/users/{userID}/status", handler.SetUserStatus)
	r.Post("/users/{userID}/delete", handler.DeleteUser)
	r.Get("/exports/{name}", handler.DownloadExport)
}

func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app, _ := consoleFrom(r.Context())
		if app == nil || app.Router.State() != view.AdminDashboard {
			if app != nil && r.Method == http.MethodGet {
				redirect(w, r, dashboardPath(app.Router.State()))
				return
			}
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Dashboard applies the admin filter and page from the query. Submitting
// the filter form applies it at once, the same as pressing Enter.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	app, _ := consoleFrom(r.Context())
	app.Editor.Modal().Close()

	ctx := r.Context()
	q := r.URL.Query()
	page, hasPage := pageParam(q)
	var err error
	switch {
	case hasFilter(q) && filterFrom(q) != app.AdminFilter():
		app.SetAdminFilter(filterFrom(q))
		err = app.AdminFilterSubmit(ctx)
	case hasPage:
		err = app.AdminList.Load(ctx, app.AdminFilter(), page)
	case !app.AdminList.Snapshot().Loaded:
		err = app.AdminList.Load(ctx, app.AdminFilter(), 1)
	}
	if !app.Users.Loaded() && err == nil {
		err = app.Users.Load(ctx)
	}
	if h.unauthorized(w, r, app, err) {
		return
	}
	adminView(w, r, h.auth, app, http.StatusOK)
}

func (h *AdminHandler) NewCertificate(w http.ResponseWriter, r *http.Request) {
	app, _ := consoleFrom(r.Context())
	app.Editor.OpenCreate()
	adminView(w, r, h.auth, app, http.StatusOK)
}

func (h *AdminHandler) EditCertificate(w http.ResponseWriter, r *http.Request) {
	app, _ := consoleFrom(r.Context())
	err := app.Editor.OpenEdit(r.Context(), chi.URLParam(r, "certificateID"))
	if h.unauthorized(w, r, app, err) {
		return
	}
	if err != nil {
		redirect(w, r, "/admin")
		return
	}
	adminView(w, r, h.auth, app, http.StatusOK)
}

func (h *AdminHandler) CreateCertificate(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "")
}

func (h *AdminHandler) UpdateCertificate(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, chi.URLParam(r, "certificateID"))
}

// save keeps the modal open with the submitted values on any failure.
func (h *AdminHandler) save(w http.ResponseWriter, r *http.Request, id string) {
	app, _ := consoleFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	err := app.Editor.Save(r.Context(), form.FromValues(r.PostForm), id)
	if h.unauthorized(w, r, app, err) {
		return
	}
	if err != nil && app.Editor.Modal().IsOpen() {
		status := http.StatusBadGateway
		if errors.Is(err, form.ErrRequiredFields) {
			status = http.StatusUnprocessableEntity
		}
		adminView(w, r, h.auth, app, status)
		return
	}
	redirect(w, r, "/admin")
}

func (h *AdminHandler) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	app, _ := consoleFrom(r.Context())
	if !confirmed(app, r) {
		redirect(w, r, "/admin")
		return
	}
	err := app.Certs.Delete(r.Context(), chi.URLParam(r, "certificateID"))
	if h.unauthorized(w, r, app, err) {
		return
	}
	redirect(w, r, "/admin")
}

func (h *AdminHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	app, _ := consoleFrom(r.Context())
	status := r.PostFormValue("status")
	if status != types.StatusApproved && status != types.StatusDenied {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	if !confirmed(app, r) {
		redirect(w, r, "/admin")
		return
	}
	err := app.Users.SetStatus(r.Context(), types.ID(chi.URLParam(r, "userID")), status)
	if errors.Is(err, admin.ErrInFlight) {
		http.Error(w, "request already in flight", http.StatusConflict)
		return
	}
	if h.unauthorized(w, r, app, err) {
		return
	}
	redirect(w, r, "/admin")
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	app, _ := consoleFrom(r.Context())
	if !confirmed(app, r) {
		redirect(w, r, "/admin")
		return
	}
	err := app.Users.Delete(r.Context(), types.ID(chi.URLParam(r, "userID")))
	if errors.Is(err, admin.ErrInFlight) {
		http.Error(w, "request already in flight", http.StatusConflict)
		return
	}
	if h.unauthorized(w, r, app, err) {
		return
	}
	redirect(w, r, "/admin")
}

// Export writes the filtered admin listing to the export bucket.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	app, _ := consoleFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if hasFilter(r.PostForm) {
		app.SetAdminFilter(filterFrom(r.PostForm))
	}
	_, err := app.Export(r.Context())
	if h.unauthorized(w, r, app, err) {
		return
	}
	redirect(w, r, "/admin")
}

// DownloadExport streams a finished export.
func (h *AdminHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	app, _ := consoleFrom(r.Context())
	name := chi.URLParam(r, "name")
	rc, err := app.Exporter.Open(r.Context(), exportPrefix+name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, export.ErrDisabled):
		http.Error(w, "exports are not configured", http.StatusNotFound)
		return
	case err != nil:
		slog.Error("export_download_failed", "name", name, "error", err)
		http.Error(w, "invalid export", http.StatusBadRequest)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(name)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("export_stream_failed", "name", name, "error", err)
	}
}

func (h *AdminHandler) unauthorized(w http.ResponseWriter, r *http.Request, app *console.App, err error) bool {
	if !app.Unauthorized(r.Context(), err) {
		return false
	}
	h.auth.signOut(w, r)
	return true
}

// confirmed reports whether the form carried the confirmation checkbox.
func confirmed(app *console.App, r *http.Request) bool {
	if r.PostFormValue("confirm") == "yes" {
		return true
	}
	app.Notes.Info("Action cancelled")
	return false
}

// adminView renders the admin dashboard with whatever the modal holds.
func adminView(w http.ResponseWriter, r *http.Request, auth *AuthHandler, app *console.App, status int) {
	_, sess := consoleFrom(r.Context())
	snap := app.AdminList.Snapshot()
	certPath := func(suffix string) func(id string) string {
		return func(id string) string {
			return "/admin/certificates/" + url.PathEscape(id) + suffix
		}
	}

	page := render.AdminDashboard{
		Page:         basePage(app, sess, "Admin", auth.now()),
		Filter:       app.AdminFilter(),
		Pending:      render.UserTable{Rows: userRows(app.Users.Pending()), CSRFToken: sess.CSRFToken},
		Others:       render.UserTable{Rows: userRows(app.Users.Others()), CSRFToken: sess.CSRFToken},
		UsersMessage: app.Users.Message(),
		Rows: certificateRows(snap.Rows, func(id string) string {
			return "/dashboard/certificates/" + url.PathEscape(id)
		}, certPath(""), certPath("/delete")),
		Message:       app.AdminList.Message(),
		Pager:         pager("/admin", app.AdminList),
		Modal:         modalView(app.Editor.Modal().View(), sess.CSRFToken, listURL("/admin", snap.Filter, snap.Page)),
		CreateURL:     "/admin/certificates/new",
		ExportEnabled: app.Exporter.Enabled(),
		Exports:       exportLinks(r.Context(), app),
	}
	render.HTML(w, status, "admin.html", page)
}

const recentExports = 10

// exportLinks lists the newest exports in the bucket. When listing fails the
// exports made in this session are shown instead.
func exportLinks(ctx context.Context, app *console.App) []render.ExportLink {
	if !app.Exporter.Enabled() {
		return nil
	}
	keys := app.Exports()
	if objects, err := app.Exporter.List(ctx); err != nil {
		slog.Error("export_list_failed", "error", err)
	} else {
		keys = keys[:0]
		for _, obj := range objects {
			keys = append(keys, obj.Key)
		}
	}

	var links []render.ExportLink
	for _, key := range keys {
		if len(links) == recentExports {
			break
		}
		name := path.Base(key)
		links = append(links, render.ExportLink{Name: name, URL: "/admin/exports/" + url.PathEscape(name)})
	}
	return links
}

func userRows(rows []admin.Row) []render.UserRow {
	out := make([]render.UserRow, 0, len(rows))
	for _, row := range rows {
		id := row.User.ID.String()
		ur := render.UserRow{
			ID:       id,
			Username: row.User.Username,
			Email:    row.User.Email,
			Role:     row.User.Role,
			Status:   row.User.Status,
		}
		for _, b := range row.Buttons {
			btn := render.UserButton{Label: b.Label, Disabled: b.Disabled}
			switch b.Action {
			case admin.Approve:
				btn.Action = "/admin/users/" + url.PathEscape(id) + "/status"
				btn.Status = types.StatusApproved
			case admin.Deny:
				btn.Action = "/admin/users/" + url.PathEscape(id) + "/status"
				btn.Status = types.StatusDenied
			default:
				btn.Action = "/admin/users/" + url.PathEscape(id) + "/delete"
			}
			ur.Buttons = append(ur.Buttons, btn)
		}
		out = append(out, ur)
	}
	return out
}
