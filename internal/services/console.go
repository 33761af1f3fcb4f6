package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eocert/console/internal/admin"
	"github.com/eocert/console/internal/console"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/internal/session"
	"github.com/eocert/console/internal/view"
	"github.com/eocert/console/internal/web"
	"github.com/eocert/console/types"
)

// ErrSignedOut is returned when a browser session no longer has a usable
// backend token.
var ErrSignedOut = errors.New("signed out")

// ConsoleService keeps one console.App per browser session. The registry
// is authoritative; apps are rebuilt from it after a restart.
type ConsoleService struct {
	registry web.Registry
	opts     console.Options
	now      func() time.Time

	mu   sync.Mutex
	apps map[string]*console.App
}

// NewConsoleService returns a service building apps from opts. Store,
// Notes and Confirm in opts are replaced per app.
func NewConsoleService(registry web.Registry, opts console.Options) *ConsoleService {
	return &ConsoleService{
		registry: registry,
		opts:     opts,
		now:      time.Now,
		apps:     map[string]*console.App{},
	}
}

// NewApp returns a signed-out app for the login and register forms.
func (s *ConsoleService) NewApp() *console.App {
	opts := s.opts
	opts.Store = session.NewMemoryStore()
	opts.Notes = notify.New(nil)
	// destructive actions are confirmed by the submitted form
	opts.Confirm = admin.Always
	return console.New(opts)
}

// Start records a signed-in app under a new browser session.
func (s *ConsoleService) Start(ctx context.Context, app *console.App) (web.Session, error) {
	token, err := app.Store.Token(ctx)
	if err != nil {
		return web.Session{}, fmt.Errorf("start console session: %w", err)
	}
	sess, err := s.registry.Create(ctx, token, app.Router.User(), s.now())
	if err != nil {
		return web.Session{}, fmt.Errorf("create console session: %w", err)
	}

	s.mu.Lock()
	s.apps[sess.ID] = app
	s.mu.Unlock()
	slog.Info("console_session_started", "user", sess.User.Username, "role", sess.User.Role)
	return sess, nil
}

// Resume returns the app behind a browser session, restoring it from the
// registry when this process has not seen it yet.
func (s *ConsoleService) Resume(ctx context.Context, id string) (*console.App, web.Session, error) {
	if id == "" {
		return nil, web.Session{}, web.ErrNoSession
	}
	sess, err := s.registry.Get(ctx, id, s.now())
	if err != nil {
		s.forget(id)
		return nil, web.Session{}, err
	}

	s.mu.Lock()
	app, ok := s.apps[id]
	s.mu.Unlock()
	if ok && app.Router.State() != view.Unauthenticated {
		return app, sess, nil
	}
	if ok {
		// signed out by a 401 since the last request
		s.End(ctx, id)
		return nil, web.Session{}, ErrSignedOut
	}

	app = s.NewApp()
	if err := app.Store.Save(ctx, types.Session{Token: sess.Token, User: sess.User}); err != nil {
		return nil, web.Session{}, err
	}
	if app.Router.Restore(ctx) == view.Unauthenticated {
		app.Close()
		_ = s.registry.Delete(ctx, id)
		return nil, web.Session{}, ErrSignedOut
	}

	s.mu.Lock()
	if existing, ok := s.apps[id]; ok {
		s.mu.Unlock()
		app.Close()
		return existing, sess, nil
	}
	s.apps[id] = app
	s.mu.Unlock()
	return app, sess, nil
}

// End signs the app out and drops the browser session.
func (s *ConsoleService) End(ctx context.Context, id string) {
	s.mu.Lock()
	app, ok := s.apps[id]
	delete(s.apps, id)
	s.mu.Unlock()

	if ok {
		if app.Router.State() != view.Unauthenticated {
			_ = app.Router.Logout(ctx)
		}
		app.Close()
	}
	if err := s.registry.Delete(ctx, id); err != nil {
		slog.Error("console_session_delete_failed", "error", err)
	}
}

// Active returns the number of apps held in memory.
func (s *ConsoleService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.apps)
}

func (s *ConsoleService) forget(id string) {
	s.mu.Lock()
	app, ok := s.apps[id]
	delete(s.apps, id)
	s.mu.Unlock()
	if ok {
		app.Close()
	}
}
