package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	adapthttp "planner/internal/adapter/http"
	"planner/internal/adapter/memory"
	"planner/internal/adapter/postgres"
	"planner/internal/adapter/sqlite"
	"planner/internal/app"
	"planner/internal/auth"
	"planner/internal/config"
	"planner/internal/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "planner:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	if cfg.EphemeralSecret {
		logger.Warn("no secret key configured; sessions will not survive a restart")
	}

	st, err := openStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	hasher, err := auth.NewHasher(cfg.PasswordMethod, cfg.PBKDF2Iterations)
	if err != nil {
		return err
	}
	authSvc := app.NewAuthService(st.users, st.sessions, hasher,
		auth.NewTokens([]byte(cfg.SecretKey)), cfg.SessionTTL, logger)
	taskSvc := app.NewTaskService(st.tasks, cfg.OwnerScoped)

	oidcCfg, err := newOIDC(ctx, cfg.OIDC)
	if err != nil {
		return err
	}

	srv, err := adapthttp.New(authSvc, taskSvc, adapthttp.Options{
		CookieSecure: cfg.CookieSecure,
		OIDC:         oidcCfg,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "store", st.kind, "owner_scoped", cfg.OwnerScoped, "sso", oidcCfg.Enabled)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
}

type store struct {
	kind     string
	users    domain.UserRepository
	sessions domain.SessionRepository
	tasks    domain.TaskRepository
	close    func() error
}

// openStore picks a backend by URL: postgres:// or postgresql://, sqlite:<path>
// or memory:.
func openStore(ctx context.Context, databaseURL string, logger *slog.Logger) (*store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		db, err := postgres.Open(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &store{kind: "postgres", users: db, sessions: postgres.NewSessionRepo(db), tasks: db, close: db.Close}, nil

	case strings.HasPrefix(databaseURL, "sqlite:"):
		path := strings.TrimPrefix(databaseURL, "sqlite:")
		db, err := sqlite.Open(path, runtime.NumCPU(), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &store{kind: "sqlite", users: db, sessions: sqlite.NewSessionRepo(db), tasks: db, close: db.Close}, nil

	case databaseURL == "memory:":
		db := memory.New()
		return &store{kind: "memory", users: db, sessions: db.NewSessionRepo(), tasks: db, close: func() error { return nil }}, nil
	}
	return nil, fmt.Errorf("unsupported database url %q", databaseURL)
}

func newOIDC(ctx context.Context, cfg config.OIDCConfig) (adapthttp.OIDCConfig, error) {
	if !cfg.Enabled() {
		return adapthttp.OIDCConfig{}, nil
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return adapthttp.OIDCConfig{}, fmt.Errorf("oidc provider: %w", err)
	}
	return adapthttp.OIDCConfig{
		Enabled:  true,
		Provider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
	}, nil
}
