package view

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/internal/backendtest"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/internal/session"
	"github.com/eocert/console/types"
	"github.com/golang-jwt/jwt/v5"
)

type fixture struct {
	backend *backendtest.Backend
	store   *session.MemoryStore
	notes   *notify.Notifier
	router  *Router
	entered []State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: backendtest.New(t),
		store:   session.NewMemoryStore(),
		notes:   notify.New(nil),
	}
	client := api.New(f.backend.URL(), f.store)
	f.router = NewRouter(client, f.store, f.notes)
	for _, st := range []State{UserDashboard, AdminDashboard} {
		st := st
		f.router.OnEnter(st, func(context.Context) error {
			f.entered = append(f.entered, st)
			return nil
		})
	}
	return f
}

func lastNotice(n *notify.Notifier) notify.Notice {
	active := n.Active(time.Now())
	if len(active) == 0 {
		return notify.Notice{}
	}
	return active[len(active)-1]
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		event Event
		role  string
		want  State
		err   bool
	}{
		{name: "user login", from: Unauthenticated, event: LoginSucceeded, role: types.RoleUser, want: UserDashboard},
		{name: "admin login", from: Unauthenticated, event: LoginSucceeded, role: types.RoleAdmin, want: AdminDashboard},
		{name: "restore admin", from: Unauthenticated, event: SessionRestored, role: types.RoleAdmin, want: AdminDashboard},
		{name: "logout", from: UserDashboard, event: Logout, want: Unauthenticated},
		{name: "auth failure", from: AdminDashboard, event: AuthFailed, want: Unauthenticated},
		{name: "login while signed in", from: UserDashboard, event: LoginSucceeded, role: types.RoleAdmin, want: UserDashboard, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(nil, session.NewMemoryStore(), notify.New(nil))
			r.state = tt.from
			err := r.Fire(context.Background(), tt.event, types.User{Username: "x", Role: tt.role})
			if tt.err != (err != nil) {
				t.Fatalf("unexpected error state: %v", err)
			}
			if tt.err && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if r.State() != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, r.State())
			}
		})
	}
}

func TestLoginRoutesByRoleAndRunsEntryHook(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser(types.User{Username: "root", Email: "root@example.com", Role: types.RoleAdmin}, "pw")

	if err := f.router.Login(context.Background(), " root@example.com ", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if f.router.State() != AdminDashboard {
		t.Fatalf("expected admin dashboard, got %s", f.router.State())
	}
	if len(f.entered) != 1 || f.entered[0] != AdminDashboard {
		t.Fatalf("expected admin entry hook, got %v", f.entered)
	}
	if got := f.router.Greeting(); got != "Hi, root (admin)" {
		t.Fatalf("unexpected greeting %q", got)
	}
	if token, _ := f.store.Token(context.Background()); token == "" {
		t.Fatalf("expected token to be stored")
	}
}

func TestLoginKeepsDashboardWhenEntryHookFails(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser(types.User{Username: "ada", Email: "ada@example.com"}, "pw")
	f.router.OnEnter(UserDashboard, func(context.Context) error {
		return errors.New("db down")
	})

	if err := f.router.Login(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
	if f.router.State() != UserDashboard {
		t.Fatalf("expected user dashboard, got %s", f.router.State())
	}
	if token, _ := f.store.Token(context.Background()); token == "" {
		t.Fatalf("expected token to be kept")
	}
}

func TestLoginFailureNotifiesBackendMessage(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser(types.User{Username: "new", Email: "new@example.com", Status: types.StatusPending}, "pw")

	if err := f.router.Login(context.Background(), "new@example.com", "pw"); err == nil {
		t.Fatalf("expected pending login to fail")
	}
	if f.router.State() != Unauthenticated {
		t.Fatalf("expected to stay unauthenticated")
	}
	if n := lastNotice(f.notes); n.Level != notify.Error || n.Message != "Account pending approval" {
		t.Fatalf("unexpected notice %+v", n)
	}
}

func TestLoginRequiresCredentialsWithoutNetwork(t *testing.T) {
	f := newFixture(t)
	if err := f.router.Login(context.Background(), "", "pw"); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if len(f.backend.Requests("")) != 0 {
		t.Fatalf("expected no backend calls")
	}
}

func TestRegisterValidationAndSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.router.Register(ctx, api.RegisterRequest{Username: "a", Email: "a@example.com", Password: "x", ConfirmPassword: "y"})
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	err = f.router.Register(ctx, api.RegisterRequest{Username: "a", Password: "x", ConfirmPassword: "x"})
	if !errors.Is(err, ErrIncompleteForm) {
		t.Fatalf("expected incomplete form, got %v", err)
	}
	if f.backend.Count(http.MethodPost, "/auth/register") != 0 {
		t.Fatalf("expected no register call for invalid forms")
	}

	err = f.router.Register(ctx, api.RegisterRequest{Username: "a", Email: "a@example.com", Password: "x", ConfirmPassword: "x"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if f.router.State() != Unauthenticated {
		t.Fatalf("expected to stay unauthenticated after register")
	}
	if n := lastNotice(f.notes); n.Message != RegisteredMessage {
		t.Fatalf("unexpected notice %+v", n)
	}
}

func TestRestore(t *testing.T) {
	t.Run("no token stays signed out", func(t *testing.T) {
		f := newFixture(t)
		if got := f.router.Restore(context.Background()); got != Unauthenticated {
			t.Fatalf("expected unauthenticated, got %s", got)
		}
		if len(f.backend.Requests("")) != 0 {
			t.Fatalf("expected no backend calls")
		}
	})

	t.Run("valid token opens dashboard", func(t *testing.T) {
		f := newFixture(t)
		user := f.backend.AddUser(types.User{Username: "u", Email: "u@example.com"}, "pw")
		_ = f.store.SetToken(context.Background(), f.backend.IssueToken(user.ID))

		if got := f.router.Restore(context.Background()); got != UserDashboard {
			t.Fatalf("expected user dashboard, got %s", got)
		}
		if len(f.entered) != 1 {
			t.Fatalf("expected entry hook to run once, got %v", f.entered)
		}
	})

	t.Run("rejected token is cleared silently", func(t *testing.T) {
		f := newFixture(t)
		_ = f.store.SetToken(context.Background(), "stale")

		if got := f.router.Restore(context.Background()); got != Unauthenticated {
			t.Fatalf("expected unauthenticated, got %s", got)
		}
		if _, err := f.store.Load(context.Background()); !errors.Is(err, session.ErrNoSession) {
			t.Fatalf("expected session to be cleared, got %v", err)
		}
		if len(f.notes.Active(time.Now())) != 0 {
			t.Fatalf("expected no notices for a silent restore failure")
		}
	})

	t.Run("expired jwt skips the profile call", func(t *testing.T) {
		f := newFixture(t)
		claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		_ = f.store.SetToken(context.Background(), token)

		if got := f.router.Restore(context.Background()); got != Unauthenticated {
			t.Fatalf("expected unauthenticated, got %s", got)
		}
		if f.backend.Count(http.MethodGet, "/user/profile") != 0 {
			t.Fatalf("expected no profile call for an expired token")
		}
	})
}

func TestLogoutAndUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser(types.User{Username: "u", Email: "u@example.com"}, "pw")
	ctx := context.Background()

	if err := f.router.Login(ctx, "u@example.com", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !f.router.HandleError(ctx, &api.APIError{Status: http.StatusUnauthorized}) {
		t.Fatalf("expected 401 to be handled")
	}
	if f.router.State() != Unauthenticated || f.router.Greeting() != "Not signed in" {
		t.Fatalf("expected signed out view")
	}
	if f.router.HandleError(ctx, errors.New("boom")) {
		t.Fatalf("expected non-401 errors to be ignored")
	}

	if err := f.router.Login(ctx, "u@example.com", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.router.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.store.Load(ctx); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected cleared session")
	}
}
