package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eocert/console/config"
	"github.com/eocert/console/internal/audit"
	"github.com/eocert/console/internal/console"
	"github.com/eocert/console/internal/db"
	"github.com/eocert/console/internal/handlers"
	"github.com/eocert/console/internal/mq"
	"github.com/eocert/console/internal/services"
	"github.com/eocert/console/internal/storage"
	"github.com/eocert/console/internal/store"
	"github.com/eocert/console/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	audit      *audit.Publisher
	stopPrune  context.CancelFunc
}

const sessionPruneInterval = 10 * time.Minute

// Deps are the collaborators of the web console router.
type Deps struct {
	Registry     web.Registry
	Console      console.Options
	CookieSecure bool
}

// New constructs a Server from cfg, connecting the session registry,
// export bucket and audit broker it names.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	var (
		dbConn   *sql.DB
		registry web.Registry
		repo     *store.SessionRepository
	)
	switch cfg.Console.SessionBackend {
	case "", "memory":
		registry = web.NewMemoryRegistry(cfg.Console.SessionTTL)
	case "postgres":
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open session database: %w", err)
		}
		dbConn = conn
		repo = store.NewSessionRepository(conn, cfg.Console.SessionTTL)
		registry = repo
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Console.SessionBackend)
	}

	exports, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		closeDB(dbConn)
		return nil, fmt.Errorf("open export storage: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		closeDB(dbConn)
		return nil, fmt.Errorf("open audit broker: %w", err)
	}
	publisher := audit.NewPublisher(broker)

	router := NewRouter(Deps{
		Registry: registry,
		Console: console.Options{
			BaseURL:       cfg.API.BaseURL,
			UserPageSize:  cfg.Console.UserPageSize,
			AdminPageSize: cfg.Console.AdminPageSize,
			Debounce:      cfg.Console.FilterDebounce,
			Audit:         publisher,
			Exports:       exports,
		},
		CookieSecure: cfg.Console.CookieSecure,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("console_configured",
		"api", cfg.API.BaseURL,
		"sessions", cfg.Console.SessionBackend,
		"exports", exports != nil,
		"audit", publisher.Enabled(),
	)
	srv := &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		audit:      publisher,
		stopPrune:  func() {},
	}
	if repo != nil {
		pruneCtx, cancel := context.WithCancel(context.Background())
		srv.stopPrune = cancel
		go repo.PruneEvery(pruneCtx, sessionPruneInterval)
	}
	return srv, nil
}

// NewRouter builds the web console routes.
func NewRouter(deps Deps) *chi.Mux {
	consoles := services.NewConsoleService(deps.Registry, deps.Console)
	auth := handlers.NewAuthHandler(consoles, deps.CookieSecure)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		securityHeaders,
	)
	router.Get("/healthz", handlers.Healthz)
	handlers.AuthRouter(router, auth)
	router.Route("/dashboard", func(r chi.Router) {
		r.Use(auth.RequireConsole, auth.RequireCSRF)
		handlers.DashboardRouter(r, handlers.NewDashboardHandler(auth))
	})
	router.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireConsole, auth.RequireCSRF)
		handlers.AdminRouter(r, handlers.NewAdminHandler(auth))
	})
	return router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

func closeDB(conn *sql.DB) {
	if conn != nil {
		_ = conn.Close()
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.stopPrune()
	if cerr := s.audit.Close(); cerr != nil {
		slog.Error("audit_close_failed", "error", cerr)
	}
	closeDB(s.db)
	return err
}
