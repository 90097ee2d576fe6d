package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML decoding. Keys absent from the file
// leave the corresponding field untouched.
type fileConfig struct {
	Addr             string        `yaml:"addr"`
	DatabaseURL      string        `yaml:"database_url"`
	SecretKey        string        `yaml:"secret_key"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
	PasswordMethod   string        `yaml:"password_method"`
	PBKDF2Iterations int           `yaml:"pbkdf2_iterations"`
	OwnerScoped      bool          `yaml:"owner_scoped"`
	CookieSecure     bool          `yaml:"cookie_secure"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
	OIDCIssuer       string        `yaml:"oidc_issuer"`
	OIDCClientID     string        `yaml:"oidc_client_id"`
	OIDCClientSecret string        `yaml:"oidc_client_secret"`
	OIDCRedirectURL  string        `yaml:"oidc_redirect_url"`
}

func toFileConfig(c *Config) fileConfig {
	return fileConfig{
		Addr:             c.Addr,
		DatabaseURL:      c.DatabaseURL,
		SecretKey:        c.SecretKey,
		SessionTTL:       c.SessionTTL,
		PasswordMethod:   c.PasswordMethod,
		PBKDF2Iterations: c.PBKDF2Iterations,
		OwnerScoped:      c.OwnerScoped,
		CookieSecure:     c.CookieSecure,
		LogLevel:         c.LogLevel,
		LogFormat:        c.LogFormat,
		OIDCIssuer:       c.OIDC.Issuer,
		OIDCClientID:     c.OIDC.ClientID,
		OIDCClientSecret: c.OIDC.ClientSecret,
		OIDCRedirectURL:  c.OIDC.RedirectURL,
	}
}

func (f fileConfig) apply(c *Config) {
	c.Addr = f.Addr
	c.DatabaseURL = f.DatabaseURL
	c.SecretKey = f.SecretKey
	c.SessionTTL = f.SessionTTL
	c.PasswordMethod = f.PasswordMethod
	c.PBKDF2Iterations = f.PBKDF2Iterations
	c.OwnerScoped = f.OwnerScoped
	c.CookieSecure = f.CookieSecure
	c.LogLevel = f.LogLevel
	c.LogFormat = f.LogFormat
	c.OIDC = OIDCConfig{
		Issuer:       f.OIDCIssuer,
		ClientID:     f.OIDCClientID,
		ClientSecret: f.OIDCClientSecret,
		RedirectURL:  f.OIDCRedirectURL,
	}
}

// loadDotEnv exports variables from path into the process environment.
// Variables already set win, and a missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// configPath finds the YAML file named by --config/-c in args, falling back
// to PLANNER_CONFIG.
func configPath(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--config" || a == "-c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		case strings.HasPrefix(a, "-c="):
			return strings.TrimPrefix(a, "-c=")
		}
	}
	return os.Getenv("PLANNER_CONFIG")
}

func parseYAML(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	fc := toFileConfig(c)
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	fc.apply(c)
	return nil
}

// parseEnv overlays environment variables named after the YAML keys in
// upper case, e.g. DATABASE_URL or SESSION_TTL.
func parseEnv(c *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("ADDR", &c.Addr)
	str("DATABASE_URL", &c.DatabaseURL)
	str("SECRET_KEY", &c.SecretKey)
	str("PASSWORD_METHOD", &c.PasswordMethod)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("OIDC_ISSUER", &c.OIDC.Issuer)
	str("OIDC_CLIENT_ID", &c.OIDC.ClientID)
	str("OIDC_CLIENT_SECRET", &c.OIDC.ClientSecret)
	str("OIDC_REDIRECT_URL", &c.OIDC.RedirectURL)

	var errs []error
	if v, ok := os.LookupEnv("SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SESSION_TTL: %w", err))
		}
		c.SessionTTL = d
	}
	if v, ok := os.LookupEnv("PBKDF2_ITERATIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PBKDF2_ITERATIONS: %w", err))
		}
		c.PBKDF2Iterations = n
	}
	for key, dst := range map[string]*bool{
		"OWNER_SCOPED":  &c.OwnerScoped,
		"COOKIE_SECURE": &c.CookieSecure,
	} {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		*dst = b
	}
	return errors.Join(errs...)
}

// parseFlags applies command-line flags on top of c.
//
//	-a, --addr               listen address
//	-d, --database-url       storage backend URL
//	-s, --secret-key         session signing key
//	    --session-ttl        session lifetime (e.g. 720h)
//	    --password-method    pbkdf2, bcrypt or argon2id
//	    --pbkdf2-iterations  pbkdf2 work factor
//	    --owner-scoped       restrict tasks to their owner
//	    --cookie-secure      set the Secure cookie attribute
//	    --log-level          debug, info, warn or error
//	    --log-format         json or text
//	-c, --config             YAML config file (read before other flags)
func parseFlags(c *Config, args []string) error {
	fs := pflag.NewFlagSet("planner", pflag.ContinueOnError)

	fs.StringVarP(&c.Addr, "addr", "a", c.Addr, "HTTP listen address")
	fs.StringVarP(&c.DatabaseURL, "database-url", "d", c.DatabaseURL, "storage backend: sqlite:<path>, postgres://... or memory:")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "session signing key")
	fs.DurationVar(&c.SessionTTL, "session-ttl", c.SessionTTL, "session lifetime")
	fs.StringVar(&c.PasswordMethod, "password-method", c.PasswordMethod, "password hashing method: pbkdf2, bcrypt or argon2id")
	fs.IntVar(&c.PBKDF2Iterations, "pbkdf2-iterations", c.PBKDF2Iterations, "pbkdf2 iteration count")
	fs.BoolVar(&c.OwnerScoped, "owner-scoped", c.OwnerScoped, "restrict tasks to the logged-in owner")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", c.CookieSecure, "mark cookies Secure")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: json or text")
	fs.StringVar(&c.OIDC.Issuer, "oidc-issuer", c.OIDC.Issuer, "OpenID Connect issuer URL")
	fs.StringVar(&c.OIDC.ClientID, "oidc-client-id", c.OIDC.ClientID, "OpenID Connect client ID")
	fs.StringVar(&c.OIDC.ClientSecret, "oidc-client-secret", c.OIDC.ClientSecret, "OpenID Connect client secret")
	fs.StringVar(&c.OIDC.RedirectURL, "oidc-redirect-url", c.OIDC.RedirectURL, "OpenID Connect redirect URL")
	fs.StringP("config", "c", "", "YAML config file")

	return fs.Parse(args)
}
