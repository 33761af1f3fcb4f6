package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eocert/console/internal/console"
	"github.com/eocert/console/internal/form"
	"github.com/eocert/console/internal/listing"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/internal/render"
	"github.com/eocert/console/internal/web"
	"github.com/eocert/console/types"
)

type contextKey string

const (
	contextAppKey     contextKey = "app"
	contextSessionKey contextKey = "session"
)

var filterKeys = []string{"year", "make", "model", "eo_number"}

func withConsole(ctx context.Context, app *console.App, sess web.Session) context.Context {
	ctx = context.WithValue(ctx, contextAppKey, app)
	return context.WithValue(ctx, contextSessionKey, sess)
}

func consoleFrom(ctx context.Context) (*console.App, web.Session) {
	app, _ := ctx.Value(contextAppKey).(*console.App)
	sess, _ := ctx.Value(contextSessionKey).(web.Session)
	return app, sess
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func pageParam(q url.Values) (int, bool) {
	raw := strings.TrimSpace(q.Get("page"))
	if raw == "" {
		return 0, false
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1, true
	}
	return page, true
}

func hasFilter(q url.Values) bool {
	for _, key := range filterKeys {
		if q.Has(key) {
			return true
		}
	}
	return false
}

func filterFrom(q url.Values) types.Filter {
	return types.Filter{
		Year:     strings.TrimSpace(q.Get("year")),
		Make:     strings.TrimSpace(q.Get("make")),
		Model:    strings.TrimSpace(q.Get("model")),
		EONumber: strings.TrimSpace(q.Get("eo_number")),
	}
}

// listURL keeps every filter key in the link so following it never reads
// as a cleared selection.
func listURL(base string, f types.Filter, page int) string {
	q := url.Values{}
	q.Set("year", f.Year)
	q.Set("make", f.Make)
	q.Set("model", f.Model)
	q.Set("eo_number", f.EONumber)
	q.Set("page", strconv.Itoa(page))
	return base + "?" + q.Encode()
}

func pager(base string, c *listing.Controller) render.Pager {
	snap := c.Snapshot()
	controls := c.Controls()
	p := render.Pager{Controls: controls}
	if !controls.PrevDisabled {
		p.PrevURL = listURL(base, snap.Filter, controls.Page-1)
	}
	if !controls.NextDisabled {
		p.NextURL = listURL(base, snap.Filter, controls.Page+1)
	}
	return p
}

func toasts(notices []notify.Notice) []render.Toast {
	out := make([]render.Toast, 0, len(notices))
	for _, n := range notices {
		out = append(out, render.Toast{Level: string(n.Level), Message: n.Message})
	}
	return out
}

func basePage(app *console.App, sess web.Session, title string, now time.Time) render.Page {
	return render.Page{
		Title:     title,
		Greeting:  app.Router.Greeting(),
		SignedIn:  true,
		CSRFToken: sess.CSRFToken,
		Toasts:    toasts(app.Notes.Active(now)),
	}
}

func certificateRows(certs []types.Certificate, detail, edit, remove func(id string) string) []render.CertificateRow {
	rows := make([]render.CertificateRow, 0, len(certs))
	for _, cert := range certs {
		id := cert.ID.String()
		row := render.CertificateRow{Certificate: cert}
		if detail != nil {
			row.DetailURL = detail(id)
		}
		if edit != nil {
			row.EditURL = edit(id)
		}
		if remove != nil {
			row.DeleteURL = remove(id)
		}
		rows = append(rows, row)
	}
	return rows
}

func modalView(v form.ModalView, csrf, closeURL string) *render.Modal {
	if !v.Open {
		return nil
	}
	m := &render.Modal{Title: v.Title, CloseURL: closeURL, CSRFToken: csrf}
	switch body := v.Body.(type) {
	case *form.EditBody:
		m.Inputs = body.Form.Inputs()
		m.Action = "/admin/certificates"
		if body.ID != "" {
			m.Action += "/" + url.PathEscape(body.ID)
		}
	case *form.DetailBody:
		m.Fields = body.Fields
	}
	return m
}
