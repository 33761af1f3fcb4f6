package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eocert/console/internal/api"
	"github.com/eocert/console/internal/console"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/internal/render"
	"github.com/eocert/console/internal/services"
	"github.com/eocert/console/internal/view"
	"github.com/eocert/console/internal/web"
	"github.com/go-chi/chi/v5"
)

// AuthHandler serves sign-in, registration and sign-out, and guards the
// signed-in pages.
type AuthHandler struct {
	consoles *services.ConsoleService
	secure   bool
	now      func() time.Time
}

// NewAuthHandler constructs an AuthHandler. secure marks cookies Secure.
func NewAuthHandler(consoles *services.ConsoleService, secure bool) *AuthHandler {
	return &AuthHandler{consoles: consoles, secure: secure, now: time.Now}
}

// AuthRouter registers the public routes.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Get("/", handler.Index)
	r.Get("/login", handler.LoginPage)
	r.Post("/login", handler.Login)
	r.Get("/register", handler.RegisterPage)
	r.Post("/register", handler.Register)
	r.Post("/logout", handler.Logout)
}

// RequireConsole resolves the browser session and its app, sending
// anonymous visitors to the login page.
func (h *AuthHandler) RequireConsole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := web.SessionID(r)
		app, sess, err := h.consoles.Resume(r.Context(), id)
		if err != nil {
			if id != "" {
				slog.Info("console_session_rejected", "error", err)
				web.SetSessionCookie(w, "", h.secure)
			}
			redirect(w, r, "/login")
			return
		}
		next.ServeHTTP(w, r.WithContext(withConsole(r.Context(), app, sess)))
	})
}

// RequireCSRF rejects state-changing requests without the session's CSRF
// token. It must run after RequireConsole.
func (h *AuthHandler) RequireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, sess := consoleFrom(r.Context())
			if !web.VerifyCSRF(r, sess.CSRFToken) {
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Index sends the visitor to the view their session resolves to.
func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	app, _, err := h.consoles.Resume(r.Context(), web.SessionID(r))
	if err != nil {
		redirect(w, r, "/login")
		return
	}
	redirect(w, r, dashboardPath(app.Router.State()))
}

func dashboardPath(state view.State) string {
	switch state {
	case view.AdminDashboard:
		return "/admin"
	case view.UserDashboard:
		return "/dashboard"
	default:
		return "/login"
	}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.consoles.Resume(r.Context(), web.SessionID(r)); err == nil {
		redirect(w, r, "/")
		return
	}
	h.renderAuth(w, http.StatusOK, render.AuthPage{}, nil)
}

func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderAuth(w, http.StatusOK, render.AuthPage{Register: true}, nil)
}

// Login signs in against the backend and opens a browser session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !web.VerifyCSRF(r, "") {
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return
	}

	email := r.PostFormValue("email")
	app := h.consoles.NewApp()
	if err := app.Router.Login(r.Context(), email, r.PostFormValue("password")); err != nil {
		app.Close()
		status := http.StatusUnauthorized
		if errors.Is(err, view.ErrMissingCredentials) {
			status = http.StatusBadRequest
		} else if errors.Is(err, api.ErrTransport) {
			status = http.StatusBadGateway
		}
		h.renderAuth(w, status, render.AuthPage{Email: email}, app)
		return
	}

	sess, err := h.consoles.Start(r.Context(), app)
	if err != nil {
		app.Close()
		slog.Error("console_session_start_failed", "error", err)
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}
	web.SetSessionCookie(w, sess.ID, h.secure)
	web.SetCSRFCookie(w, sess.CSRFToken, h.secure)
	redirect(w, r, dashboardPath(app.Router.State()))
}

// Register creates a pending account. The visitor stays signed out.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !web.VerifyCSRF(r, "") {
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return
	}

	app := h.consoles.NewApp()
	defer app.Close()
	req := api.RegisterRequest{
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	if err := app.Router.Register(r.Context(), req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, api.ErrTransport) {
			status = http.StatusBadGateway
		}
		h.renderAuth(w, status, render.AuthPage{Register: true, Email: req.Email, Username: req.Username}, app)
		return
	}
	h.renderAuth(w, http.StatusOK, render.AuthPage{Email: req.Email}, app)
}

// Logout ends the browser session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id := web.SessionID(r)
	_, sess, err := h.consoles.Resume(r.Context(), id)
	if err == nil {
		if !web.VerifyCSRF(r, sess.CSRFToken) {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		h.consoles.End(r.Context(), id)
	}
	web.SetSessionCookie(w, "", h.secure)
	redirect(w, r, "/login")
}

// signOut ends a session whose backend token was rejected.
func (h *AuthHandler) signOut(w http.ResponseWriter, r *http.Request) {
	h.consoles.End(r.Context(), web.SessionID(r))
	web.SetSessionCookie(w, "", h.secure)
	redirect(w, r, "/login")
}

// renderAuth shows error notices inline and anything else as toasts. A
// fresh double-submit CSRF token is issued with every form.
func (h *AuthHandler) renderAuth(w http.ResponseWriter, status int, page render.AuthPage, app *console.App) {
	csrf, err := web.RandomToken(32)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	web.SetCSRFCookie(w, csrf, h.secure)

	page.Title = "Login"
	if page.Register {
		page.Title = "Register"
	}
	page.Greeting = "Not signed in"
	page.CSRFToken = csrf
	if app != nil {
		for _, n := range app.Notes.Active(h.now()) {
			if n.Level == notify.Error {
				page.Error = n.Message
				continue
			}
			page.Toasts = append(page.Toasts, render.Toast{Level: string(n.Level), Message: n.Message})
		}
	}
	render.HTML(w, status, "auth.html", page)
}
