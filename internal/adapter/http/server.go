package adapthttp

import (
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"planner/internal/app"
)

// OIDCConfig enables single sign-on through an OpenID Connect provider.
type OIDCConfig struct {
	Enabled      bool
	Provider     *oidc.Provider
	OAuth2Config *oauth2.Config
}

// Options configures a Server.
type Options struct {
	// CookieSecure sets the Secure attribute on every cookie.
	CookieSecure bool
	OIDC         OIDCConfig
	Logger       *slog.Logger
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	auth         *app.AuthService
	tasks        *app.TaskService
	oidcConfig   OIDCConfig
	cookieSecure bool
	logger       *slog.Logger
	views        views
}

// New creates a Server wired to the given application services.
func New(authSvc *app.AuthService, tasks *app.TaskService, opts Options) (*Server, error) {
	v, err := parseViews()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		auth:         authSvc,
		tasks:        tasks,
		oidcConfig:   opts.OIDC,
		cookieSecure: opts.CookieSecure,
		logger:       logger,
		views:        v,
	}, nil
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.notFound)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}).Methods(http.MethodGet)

	pages := r.NewRoute().Subrouter()
	pages.Use(s.identityMiddleware)

	pages.HandleFunc("/", s.handleCover).Methods(http.MethodGet, http.MethodPost)
	pages.HandleFunc("/home", s.handleHome).Methods(http.MethodGet, http.MethodPost)
	pages.HandleFunc("/add", s.handleAdd).Methods(http.MethodPost)
	pages.HandleFunc("/done/{id:[0-9]+}", s.handleDone).Methods(http.MethodGet)
	pages.HandleFunc("/update/{id:[0-9]+}", s.handleToggle).Methods(http.MethodGet)
	pages.HandleFunc("/delete/{id:[0-9]+}", s.handleDelete).Methods(http.MethodGet)

	pages.HandleFunc("/api/config", s.handleConfig).Methods(http.MethodGet)
	pages.HandleFunc("/api/tasks", s.handleTasksJSON).Methods(http.MethodGet)

	pages.HandleFunc("/register", s.handleRegister).Methods(http.MethodGet, http.MethodPost)
	pages.HandleFunc("/login", s.handleLogin).Methods(http.MethodGet, http.MethodPost)
	pages.HandleFunc("/logout", s.handleLogout).Methods(http.MethodGet)
	pages.HandleFunc("/login/sso", s.handleSSOLogin).Methods(http.MethodGet)
	pages.HandleFunc("/login/sso/callback", s.handleSSOCallback).Methods(http.MethodGet)

	return withNoCache(s.loggingMiddleware(r))
}
