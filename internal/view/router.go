// Package view decides which top-level view of the console is active.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/internal/session"
	"github.com/eocert/console/types"
)

type State int

const (
	Unauthenticated State = iota
	UserDashboard
	AdminDashboard
)

func (s State) String() string {
	switch s {
	case UserDashboard:
		return "user_dashboard"
	case AdminDashboard:
		return "admin_dashboard"
	default:
		return "unauthenticated"
	}
}

type Event int

const (
	LoginSucceeded Event = iota
	SessionRestored
	Logout
	AuthFailed
)

func (e Event) String() string {
	switch e {
	case LoginSucceeded:
		return "login_succeeded"
	case SessionRestored:
		return "session_restored"
	case Logout:
		return "logout"
	default:
		return "auth_failed"
	}
}

var (
	ErrInvalidTransition  = errors.New("invalid view transition")
	ErrMissingCredentials = errors.New("Enter email & password")
	ErrIncompleteForm     = errors.New("Complete the form")
	ErrPasswordMismatch   = errors.New("Passwords do not match")
)

// RegisteredMessage is shown after a successful registration.
const RegisteredMessage = "Registered. Awaiting admin approval."

type edge struct {
	from  State
	event Event
}

func dashboardFor(role string) State {
	if role == types.RoleAdmin {
		return AdminDashboard
	}
	return UserDashboard
}

func signedOut(string) State { return Unauthenticated }

// transitions lists every legal move. Role-dependent targets resolve from
// the role carried by the event.
var transitions = map[edge]func(role string) State{
	{Unauthenticated, LoginSucceeded}:  dashboardFor,
	{Unauthenticated, SessionRestored}: dashboardFor,
	{Unauthenticated, AuthFailed}:      signedOut,
	{Unauthenticated, Logout}:          signedOut,
	{UserDashboard, Logout}:            signedOut,
	{UserDashboard, AuthFailed}:        signedOut,
	{AdminDashboard, Logout}:           signedOut,
	{AdminDashboard, AuthFailed}:       signedOut,
}

// Auth is the part of the gateway the router needs.
type Auth interface {
	Login(ctx context.Context, req api.LoginRequest) (api.AuthResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (string, error)
	Profile(ctx context.Context) (types.User, error)
}

// EntryHook runs after a dashboard state is entered.
type EntryHook func(ctx context.Context) error

// Router is the explicit view state machine.
type Router struct {
	mu    sync.Mutex
	state State
	user  types.User
	auth  Auth
	store session.Store
	notes *notify.Notifier
	hooks map[State]EntryHook
	now   func() time.Time
}

// NewRouter starts in Unauthenticated.
func NewRouter(auth Auth, store session.Store, notes *notify.Notifier) *Router {
	return &Router{
		state: Unauthenticated,
		auth:  auth,
		store: store,
		notes: notes,
		hooks: map[State]EntryHook{},
		now:   time.Now,
	}
}

// OnEnter registers the loader run on entry to state.
func (r *Router) OnEnter(state State, hook EntryHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[state] = hook
}

// State returns the active view.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// User returns the signed-in user, zero when unauthenticated.
func (r *Router) User() types.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.user
}

// Greeting is the header text for the current user.
func (r *Router) Greeting() string {
	user := r.User()
	if r.State() == Unauthenticated || user.Username == "" {
		return "Not signed in"
	}
	return fmt.Sprintf("Hi, %s (%s)", user.Username, user.Role)
}

// Fire applies event and runs the entry hook of the new state, if any.
// A failing entry hook is logged and leaves the transition in place; the
// dashboard controllers carry their own inline error text.
func (r *Router) Fire(ctx context.Context, event Event, user types.User) error {
	r.mu.Lock()
	next, ok := transitions[edge{r.state, event}]
	if !ok {
		from := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}
	from := r.state
	r.state = next(user.Role)
	if r.state == Unauthenticated {
		r.user = types.User{}
	} else {
		r.user = user
	}
	to := r.state
	hook := r.hooks[to]
	r.mu.Unlock()

	slog.Debug("view_transition", "from", from.String(), "event", event.String(), "to", to.String())
	if hook == nil || to == Unauthenticated {
		return nil
	}
	if err := hook(ctx); err != nil {
		slog.Error("view_entry_failed", "state", to.String(), "error", err)
	}
	return nil
}

// Restore resumes a stored session. Any failure clears the session and
// leaves the router unauthenticated without surfacing an error.
func (r *Router) Restore(ctx context.Context) State {
	sess, err := r.store.Load(ctx)
	if err != nil || sess.Token == "" {
		return r.State()
	}
	if session.Expired(sess, r.now()) {
		slog.Info("session_expired")
		r.clear(ctx)
		return r.State()
	}

	user, err := r.auth.Profile(ctx)
	if err != nil {
		slog.Info("session_restore_failed", "error", err)
		r.clear(ctx)
		return r.State()
	}
	if err := r.store.Save(ctx, types.Session{Token: sess.Token, User: user}); err != nil {
		slog.Error("session_save_failed", "error", err)
	}
	_ = r.Fire(ctx, SessionRestored, user)
	return r.State()
}

// Login authenticates and moves to the role's dashboard.
func (r *Router) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		r.notes.Error("%s", ErrMissingCredentials.Error())
		return ErrMissingCredentials
	}

	resp, err := r.auth.Login(ctx, api.LoginRequest{Email: email, Password: password})
	if err != nil {
		fallback := "Login failed"
		if errors.Is(err, api.ErrTransport) {
			fallback = "Unable to login. Please try again."
		}
		r.notes.Error("%s", api.Message(err, fallback))
		return err
	}

	if err := r.store.Save(ctx, types.Session{Token: resp.Token, User: resp.User}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return r.Fire(ctx, LoginSucceeded, resp.User)
}

// Register submits a new account. The router stays unauthenticated.
func (r *Router) Register(ctx context.Context, req api.RegisterRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		r.notes.Error("%s", ErrIncompleteForm.Error())
		return ErrIncompleteForm
	}
	if req.Password != req.ConfirmPassword {
		r.notes.Error("%s", ErrPasswordMismatch.Error())
		return ErrPasswordMismatch
	}

	if _, err := r.auth.Register(ctx, req); err != nil {
		fallback := "Registration failed"
		if errors.Is(err, api.ErrTransport) {
			fallback = "Unable to register. Please try again."
		}
		r.notes.Error("%s", api.Message(err, fallback))
		return err
	}
	r.notes.Success(RegisteredMessage)
	return nil
}

// Logout clears the session and returns to the sign-in view.
func (r *Router) Logout(ctx context.Context) error {
	r.clear(ctx)
	return r.Fire(ctx, Logout, types.User{})
}

// HandleError moves to Unauthenticated when err is a 401 and reports
// whether it did.
func (r *Router) HandleError(ctx context.Context, err error) bool {
	if !errors.Is(err, api.ErrUnauthorized) {
		return false
	}
	r.clear(ctx)
	_ = r.Fire(ctx, AuthFailed, types.User{})
	return true
}

func (r *Router) clear(ctx context.Context) {
	if err := r.store.Clear(ctx); err != nil {
		slog.Error("session_clear_failed", "error", err)
	}
}
