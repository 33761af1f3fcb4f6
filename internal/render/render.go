// Package render turns console view models into HTML. Every value passes
// through html/template's contextual escaping.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/eocert/console/internal/form"
	"github.com/eocert/console/internal/listing"
	"github.com/eocert/console/types"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"dash": Dash,
}).ParseFS(templatesFS, "templates/*.html"))

// Dash renders blanks as "-".
func Dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Toast is one notification shown on the page.
type Toast struct {
	Level   string
	Message string
}

// Page carries what every page shares.
type Page struct {
	Title     string
	Greeting  string
	SignedIn  bool
	CSRFToken string
	Toasts    []Toast
}

// AuthPage is the sign-in or registration view.
type AuthPage struct {
	Page
	Register bool
	Email    string
	Username string
	Error    string
}

// Select is one cascading dropdown.
type Select struct {
	Name        string
	Label       string
	Placeholder string
	Value       string
	Options     []string
	Disabled    bool
}

// Pager is the pagination bar; it is omitted when not Visible.
type Pager struct {
	listing.Controls
	PrevURL string
	NextURL string
}

// CertificateRow is one table row.
type CertificateRow struct {
	types.Certificate
	DetailURL string
	EditURL   string
	DeleteURL string
}

// Modal is the open dialog, if any.
type Modal struct {
	Title     string
	Action    string
	CloseURL  string
	CSRFToken string
	Inputs    []form.Input
	Fields    []types.Field
	Error     string
}

// UserDashboard is the read-only certificate search view.
type UserDashboard struct {
	Page
	Selects  []Select
	ClearURL string
	Rows     []CertificateRow
	Message  string
	Pager    Pager
	Modal    *Modal
}

// UserRow is one account in the admin tables.
type UserRow struct {
	ID       string
	Username string
	Email    string
	Role     string
	Status   string
	Buttons  []UserButton
}

// UserButton posts one account action.
type UserButton struct {
	Label    string
	Action   string
	Status   string
	Disabled bool
}

// UserTable is one of the admin account tables.
type UserTable struct {
	Rows      []UserRow
	CSRFToken string
}

// ExportLink points at a finished CSV export.
type ExportLink struct {
	Name string
	URL  string
}

// AdminDashboard is the users and certificates administration view.
type AdminDashboard struct {
	Page
	Filter        types.Filter
	Pending       UserTable
	Others        UserTable
	UsersMessage  string
	Rows          []CertificateRow
	Message       string
	Pager         Pager
	Modal         *Modal
	CreateURL     string
	ExportEnabled bool
	Exports       []ExportLink
}

// HTML renders the named template to w. The page is buffered so a
// template failure never sends a partial document.
func HTML(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("render_failed", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
