// Package backendtest provides an in-memory fake of the certificate backend
// REST API for tests. It records every request so tests can assert on the
// calls a controller issued.
package backendtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/eocert/console/types"
	"github.com/go-chi/chi/v5"
)

// Request is a recorded call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
	Body   []byte
}

type account struct {
	user     types.User
	password string
}

type failure struct {
	status  int
	message string
}

// Backend is a fake certificate backend served over httptest.
type Backend struct {
	mu       sync.Mutex
	server   *httptest.Server
	certs    []types.Certificate
	accounts []account
	tokens   map[string]types.ID
	requests []Request
	failures map[string]failure
	hook     func(*http.Request)
	nextID   int
}

// New starts a backend and registers its shutdown with t.
func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		tokens:   map[string]types.ID{},
		failures: map[string]failure{},
		nextID:   1,
	}
	b.server = httptest.NewServer(b.router())
	t.Cleanup(b.server.Close)
	return b
}

// URL is the base URL clients should use.
func (b *Backend) URL() string {
	return b.server.URL
}

// AddUser registers an account and returns it with its assigned id.
func (b *Backend) AddUser(user types.User, password string) types.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	if user.ID.Empty() {
		user.ID = b.newIDLocked()
	}
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	if user.Status == "" {
		user.Status = types.StatusApproved
	}
	b.accounts = append(b.accounts, account{user: user, password: password})
	return user
}

// AddCertificate stores a record and returns its id.
func (b *Backend) AddCertificate(cert types.Certificate) types.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cert.ID.Empty() {
		cert.ID = b.newIDLocked()
	}
	b.certs = append(b.certs, cert)
	return cert.ID
}

// Certificates returns a snapshot of the stored records.
func (b *Backend) Certificates() []types.Certificate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Certificate(nil), b.certs...)
}

// User returns the stored account with id.
func (b *Backend) User(id types.ID) (types.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acc := range b.accounts {
		if acc.user.ID == id {
			return acc.user, true
		}
	}
	return types.User{}, false
}

// IssueToken creates a valid token for the account with id.
func (b *Backend) IssueToken(id types.ID) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueTokenLocked(id)
}

// RevokeTokens invalidates every issued token.
func (b *Backend) RevokeTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = map[string]types.ID{}
}

// Fail makes every call to method+path answer with status and message
// until Recover is called.
func (b *Backend) Fail(method, path string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = failure{status: status, message: message}
}

// Recover removes an injected failure.
func (b *Backend) Recover(method, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, method+" "+path)
}

// OnRequest installs a hook that runs before each request is handled. The
// hook runs outside the backend lock and may block.
func (b *Backend) OnRequest(hook func(*http.Request)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = hook
}

// Requests returns recorded calls whose path equals path. An empty path
// returns every call.
func (b *Backend) Requests(path string) []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Request
	for _, req := range b.requests {
		if path == "" || req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

// Count returns how many calls hit method+path.
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, req := range b.Requests(path) {
		if req.Method == method {
			n++
		}
	}
	return n
}

// ResetRequests forgets recorded calls.
func (b *Backend) ResetRequests() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}

func (b *Backend) newIDLocked() types.ID {
	id := types.ID(strconv.Itoa(b.nextID))
	b.nextID++
	return id
}

func (b *Backend) issueTokenLocked(id types.ID) string {
	token := fmt.Sprintf("token-%s-%d", id, len(b.tokens)+1)
	b.tokens[token] = id
	return token
}

func (b *Backend) router() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record)

	r.Post("/auth/login", b.login)
	r.Post("/auth/register", b.register)
	r.With(b.requireUser).Get("/user/profile", b.profile)

	r.Route("/eo-certificates", func(r chi.Router) {
		r.Use(b.requireUser)
		r.Get("/", b.listCertificates(false))
		r.Get("/dropdowns/{name}", b.dropdown)
		r.Get("/{id}", b.getCertificate)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(b.requireUser, b.requireAdmin)
		r.Get("/eo-certificates", b.listCertificates(true))
		r.Post("/eo-certificates", b.createCertificate)
		r.Put("/eo-certificates/{id}", b.updateCertificate)
		r.Delete("/eo-certificates/{id}", b.deleteCertificate)
		r.Get("/users", b.listUsers)
		r.Put("/users/{id}/status", b.updateUserStatus)
		r.Delete("/users/{id}", b.deleteUser)
	})
	return r
}

type contextKey string

const userKey contextKey = "user"

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			var raw json.RawMessage
			_ = json.NewDecoder(r.Body).Decode(&raw)
			body = raw
		}

		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		hook := b.hook
		fail, failing := b.failures[r.Method+" "+r.URL.Path]
		b.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		if failing {
			writeMessage(w, fail.status, fail.message)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		b.mu.Lock()
		id, ok := b.tokens[token]
		var user types.User
		found := false
		if ok {
			for _, acc := range b.accounts {
				if acc.user.ID == id {
					user, found = acc.user, true
				}
			}
		}
		b.mu.Unlock()
		if !found {
			writeMessage(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r, user)))
	})
}

func (b *Backend) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := r.Context().Value(userKey).(types.User)
		if !user.IsAdmin() {
			writeMessage(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acc := range b.accounts {
		if !strings.EqualFold(acc.user.Email, req.Email) || acc.password != req.Password {
			continue
		}
		if acc.user.Status == types.StatusPending {
			writeMessage(w, http.StatusForbidden, "Account pending approval")
			return
		}
		if acc.user.Status == types.StatusDenied {
			writeMessage(w, http.StatusForbidden, "Account access denied")
			return
		}
		token := b.issueTokenLocked(acc.user.ID)
		writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": acc.user})
		return
	}
	writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeMessage(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	b.mu.Lock()
	for _, acc := range b.accounts {
		if strings.EqualFold(acc.user.Email, req.Email) {
			b.mu.Unlock()
			writeMessage(w, http.StatusConflict, "Email already registered")
			return
		}
	}
	user := types.User{
		ID:       b.newIDLocked(),
		Username: req.Username,
		Email:    req.Email,
		Role:     types.RoleUser,
		Status:   types.StatusPending,
	}
	b.accounts = append(b.accounts, account{user: user, password: req.Password})
	b.mu.Unlock()

	writeMessage(w, http.StatusCreated, "Registration successful")
}

func (b *Backend) profile(w http.ResponseWriter, r *http.Request) {
	user, _ := r.Context().Value(userKey).(types.User)
	writeJSON(w, http.StatusOK, user)
}

func (b *Backend) listCertificates(admin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 10)
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 10
		}

		b.mu.Lock()
		matched := make([]types.Certificate, 0, len(b.certs))
		for _, cert := range b.certs {
			if matches(cert, q, admin) {
				matched = append(matched, cert)
			}
		}
		b.mu.Unlock()

		total := len(matched)
		totalPages := (total + limit - 1) / limit
		start := (page - 1) * limit
		items := []types.Certificate{}
		if start < total {
			end := start + limit
			if end > total {
				end = total
			}
			items = matched[start:end]
		}

		writeJSON(w, http.StatusOK, types.CertificatePage{
			Certificates: items,
			Pagination:   &types.Pagination{CurrentPage: page, TotalPages: totalPages, Total: total},
		})
	}
}

// matches applies exact filters for the public view and substring filters
// for the admin view.
func matches(cert types.Certificate, q url.Values, partial bool) bool {
	check := func(param, value string) bool {
		want := strings.TrimSpace(q.Get(param))
		if want == "" {
			return true
		}
		if partial {
			return strings.Contains(strings.ToLower(value), strings.ToLower(want))
		}
		return strings.EqualFold(value, want)
	}
	return check("year", cert.Year.String()) &&
		check("make", cert.VehicleMake) &&
		check("model", cert.VehicleModel) &&
		check("eo_number", cert.EONumber)
}

func (b *Backend) dropdown(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var pick func(types.Certificate) string
	switch chi.URLParam(r, "name") {
	case "years":
		pick = func(c types.Certificate) string { return c.Year.String() }
	case "vehicle-makes":
		pick = func(c types.Certificate) string { return c.VehicleMake }
	case "vehicle-models":
		pick = func(c types.Certificate) string { return c.VehicleModel }
	case "eo-numbers":
		pick = func(c types.Certificate) string { return c.EONumber }
	default:
		writeMessage(w, http.StatusNotFound, "Unknown dropdown")
		return
	}

	b.mu.Lock()
	seen := map[string]bool{}
	values := []string{}
	for _, cert := range b.certs {
		if !matches(cert, q, false) {
			continue
		}
		v := pick(cert)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	b.mu.Unlock()

	sort.Strings(values)
	writeJSON(w, http.StatusOK, values)
}

func (b *Backend) getCertificate(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "id"))
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cert := range b.certs {
		if cert.ID == id {
			writeJSON(w, http.StatusOK, cert)
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "Certificate not found")
}

func (b *Backend) createCertificate(w http.ResponseWriter, r *http.Request) {
	var cert types.Certificate
	if err := json.NewDecoder(r.Body).Decode(&cert); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid certificate")
		return
	}
	if cert.EONumber == "" || cert.Year == 0 {
		writeMessage(w, http.StatusBadRequest, "EO Number and Year are required")
		return
	}
	b.mu.Lock()
	for _, existing := range b.certs {
		if existing.EONumber == cert.EONumber {
			b.mu.Unlock()
			writeMessage(w, http.StatusConflict, "EO Number already exists")
			return
		}
	}
	cert.ID = b.newIDLocked()
	b.certs = append(b.certs, cert)
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, cert)
}

func (b *Backend) updateCertificate(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "id"))
	var cert types.Certificate
	if err := json.NewDecoder(r.Body).Decode(&cert); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid certificate")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.certs {
		if b.certs[i].ID == id {
			cert.ID = id
			b.certs[i] = cert
			writeJSON(w, http.StatusOK, cert)
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "Certificate not found")
}

func (b *Backend) deleteCertificate(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "id"))
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.certs {
		if b.certs[i].ID == id {
			b.certs = append(b.certs[:i], b.certs[i+1:]...)
			writeMessage(w, http.StatusOK, "Certificate deleted")
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "Certificate not found")
}

func (b *Backend) listUsers(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	users := make([]types.User, 0, len(b.accounts))
	for _, acc := range b.accounts {
		users = append(users, acc.user)
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (b *Backend) updateUserStatus(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "id"))
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	switch req.Status {
	case types.StatusApproved, types.StatusDenied, types.StatusPending:
	default:
		writeMessage(w, http.StatusBadRequest, "Invalid status")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.accounts {
		if b.accounts[i].user.ID == id {
			b.accounts[i].user.Status = req.Status
			writeMessage(w, http.StatusOK, "User status updated")
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "User not found")
}

func (b *Backend) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := types.ID(chi.URLParam(r, "id"))
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.accounts {
		if b.accounts[i].user.ID == id {
			b.accounts = append(b.accounts[:i], b.accounts[i+1:]...)
			writeMessage(w, http.StatusOK, "User deleted")
			return
		}
	}
	writeMessage(w, http.StatusNotFound, "User not found")
}

func atoiDefault(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func withUser(r *http.Request, user types.User) context.Context {
	return context.WithValue(r.Context(), userKey, user)
}
