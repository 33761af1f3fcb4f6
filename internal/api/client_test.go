package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eocert/console/internal/backendtest"
	"github.com/eocert/console/types"
)

func TestLoginAndProfile(t *testing.T) {
	backend := backendtest.New(t)
	backend.AddUser(types.User{Username: "ada", Email: "ada@example.com", Role: types.RoleAdmin}, "secret")

	client := New(backend.URL(), nil)
	resp, err := client.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Token == "" || resp.User.Role != types.RoleAdmin {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	authed := client.WithTokens(StaticToken(resp.Token))
	user, err := authed.Profile(context.Background())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if user.Username != "ada" {
		t.Fatalf("expected ada, got %q", user.Username)
	}

	reqs := backend.Requests("/user/profile")
	if len(reqs) != 1 || reqs[0].Auth != "Bearer "+resp.Token {
		t.Fatalf("expected bearer token on profile call, got %+v", reqs)
	}
}

func TestNon2xxSurfacesBackendMessage(t *testing.T) {
	backend := backendtest.New(t)
	client := New(backend.URL(), nil)

	_, err := client.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Invalid credentials" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected 401 to match ErrUnauthorized")
	}
	if got := Message(err, "Login failed"); got != "Invalid credentials" {
		t.Fatalf("expected backend message, got %q", got)
	}
}

func TestMessageFallsBackForTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := New(srv.URL, nil)
	_, err := client.Years(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if got := Message(err, "Unable to login. Please try again."); got != "Unable to login. Please try again." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestListCertificatesSendsFiltersAndPaging(t *testing.T) {
	backend := backendtest.New(t)
	user := backend.AddUser(types.User{Username: "u", Email: "u@example.com"}, "pw")
	token := backend.IssueToken(user.ID)
	for i := 0; i < 25; i++ {
		backend.AddCertificate(types.Certificate{EONumber: "A-" + string(rune('a'+i)), Year: 2020, VehicleMake: "FORD"})
	}

	client := New(backend.URL(), StaticToken(token))
	page, err := client.ListCertificates(context.Background(), types.Filter{Year: "2020", Make: "FORD"}, 2, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Certificates) != 5 {
		t.Fatalf("expected 5 certificates on page 2, got %d", len(page.Certificates))
	}
	if page.Pagination == nil || page.Pagination.TotalPages != 2 || page.Pagination.CurrentPage != 2 {
		t.Fatalf("unexpected pagination %+v", page.Pagination)
	}

	reqs := backend.Requests("/eo-certificates")
	q := reqs[len(reqs)-1].Query
	if q.Get("page") != "2" || q.Get("limit") != "20" || q.Get("year") != "2020" || q.Get("make") != "FORD" {
		t.Fatalf("unexpected query %v", q)
	}
	if q.Has("model") || q.Has("eo_number") {
		t.Fatalf("expected blank filters to be omitted, got %v", q)
	}
}

func TestDropdownsAcceptNumbersAndStrings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eo-certificates/dropdowns/years" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode([]any{2019, "2020", 2021})
	}))
	defer srv.Close()

	years, err := New(srv.URL, StaticToken("t")).Years(context.Background())
	if err != nil {
		t.Fatalf("years: %v", err)
	}
	want := []string{"2019", "2020", "2021"}
	if len(years) != len(want) {
		t.Fatalf("expected %v, got %v", want, years)
	}
	for i := range want {
		if years[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, years)
		}
	}
}

func TestAdminCertificateLifecycle(t *testing.T) {
	backend := backendtest.New(t)
	admin := backend.AddUser(types.User{Username: "root", Email: "root@example.com", Role: types.RoleAdmin}, "pw")
	client := New(backend.URL(), StaticToken(backend.IssueToken(admin.ID)))
	ctx := context.Background()

	if err := client.CreateCertificate(ctx, types.Certificate{EONumber: "D-1", Year: 2022}); err != nil {
		t.Fatalf("create: %v", err)
	}
	certs := backend.Certificates()
	if len(certs) != 1 {
		t.Fatalf("expected one certificate, got %d", len(certs))
	}
	id := certs[0].ID.String()

	if err := client.UpdateCertificate(ctx, id, types.Certificate{EONumber: "D-1", Year: 2023, VehicleMake: "KIA"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := client.GetCertificate(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Year != 2023 || got.VehicleMake != "KIA" {
		t.Fatalf("unexpected certificate after update %+v", got)
	}

	if err := client.DeleteCertificate(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := client.GetCertificate(ctx, id); err == nil {
		t.Fatalf("expected deleted certificate to be missing")
	}
}

func TestUserAdministration(t *testing.T) {
	backend := backendtest.New(t)
	admin := backend.AddUser(types.User{Username: "root", Email: "root@example.com", Role: types.RoleAdmin}, "pw")
	pending := backend.AddUser(types.User{Username: "new", Email: "new@example.com", Status: types.StatusPending}, "pw")
	client := New(backend.URL(), StaticToken(backend.IssueToken(admin.ID)))
	ctx := context.Background()

	users, err := client.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	if err := client.UpdateUserStatus(ctx, pending.ID.String(), types.StatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if u, _ := backend.User(pending.ID); u.Status != types.StatusApproved {
		t.Fatalf("expected approved, got %q", u.Status)
	}

	if err := client.DeleteUser(ctx, pending.ID.String()); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, ok := backend.User(pending.ID); ok {
		t.Fatalf("expected user to be deleted")
	}
}
