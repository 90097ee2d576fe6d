// Package config handles configuration for the planner server: defaults,
// an optional .env file, an optional YAML file, environment variables and
// command-line flags, applied in that order.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds runtime settings for the planner server.
//
// Fields:
//   - Addr: HTTP listen address.
//   - DatabaseURL: "sqlite:<path>", "postgres://..." or "memory:".
//   - SecretKey: HMAC key for session tokens. When empty at load time a random
//     key is generated and EphemeralSecret is set; sessions then do not
//     survive a restart.
//   - SessionTTL: lifetime of a login session.
//   - PasswordMethod / PBKDF2Iterations: hashing for new passwords.
//   - OwnerScoped: restrict task listing and mutation to the logged-in owner.
//   - CookieSecure: mark session cookies Secure (serve over HTTPS).
//   - LogLevel / LogFormat: slog handler settings.
//   - OIDC: optional single sign-on provider.
type Config struct {
	Addr             string
	DatabaseURL      string
	SecretKey        string
	EphemeralSecret  bool
	SessionTTL       time.Duration
	PasswordMethod   string
	PBKDF2Iterations int
	OwnerScoped      bool
	CookieSecure     bool
	LogLevel         string
	LogFormat        string
	OIDC             OIDCConfig
}

// OIDCConfig configures the optional OpenID Connect login.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether enough settings are present to use SSO.
func (o OIDCConfig) Enabled() bool {
	return o.Issuer != "" && o.ClientID != "" && o.RedirectURL != ""
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.DatabaseURL = "sqlite:planner.db"
	c.SessionTTL = 30 * 24 * time.Hour
	c.PasswordMethod = "pbkdf2"
	c.PBKDF2Iterations = 600000
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// Load builds a Config from defaults, the .env file, the YAML file named by
// --config or PLANNER_CONFIG, the environment and finally args.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	path := configPath(args)
	if path != "" {
		if err := parseYAML(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	if c.SecretKey == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generate secret key: %w", err)
		}
		c.SecretKey = string(b)
		c.EphemeralSecret = true
	}
	return c.Validate()
}

// Validate checks field values that cannot be fixed up.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database url is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log format must be json or text, got %q", c.LogFormat))
	}
	if c.OIDC.Issuer != "" && !c.OIDC.Enabled() {
		errs = append(errs, errors.New("oidc issuer set without client id or redirect url"))
	}
	return errors.Join(errs...)
}
