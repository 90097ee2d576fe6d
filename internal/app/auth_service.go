// Package app holds the application services and business logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"planner/internal/auth"
	"planner/internal/domain"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateEmail indicates that an account with the email already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrUserNotFound indicates that no user has the given email.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnknownAccount is returned by Login for an email with no account.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrCredentialMismatch is returned by Login when the password is wrong.
	ErrCredentialMismatch = errors.New("password incorrect")
	// ErrNoSession means the request carries no usable session and is anonymous.
	ErrNoSession = errors.New("no session")
)

// unusablePassword is stored for accounts provisioned through SSO. It is not
// a valid hash encoding, so it never verifies.
const unusablePassword = "!"

// AuthService manages accounts and login sessions.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	hasher   *auth.Hasher
	tokens   *auth.Tokens
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates a new authentication service. Sessions last for ttl.
func NewAuthService(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	hasher *auth.Hasher,
	tokens *auth.Tokens,
	ttl time.Duration,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// SessionTTL is how long a new session stays valid.
func (s *AuthService) SessionTTL() time.Duration { return s.ttl }

// Register creates an account with a freshly salted password hash.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if _, err := s.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Create(ctx, strings.TrimSpace(name), email, hash)
	if errors.Is(err, domain.ErrDuplicateEmail) {
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail looks up a user by login email.
func (s *AuthService) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Verify reports whether password matches the user's stored hash.
func (s *AuthService) Verify(user *domain.User, password string) bool {
	return s.hasher.Check(user.PasswordHash, password)
}

// Login checks credentials and starts a session, returning its signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", nil, ErrUnknownAccount
	}
	if err != nil {
		return "", nil, err
	}
	if !s.Verify(user, password) {
		return "", nil, ErrCredentialMismatch
	}

	token, err := s.StartSession(ctx, user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// LoginWithEmail starts a session for an identity already verified elsewhere,
// such as an OIDC provider. Unknown emails are provisioned as accounts that
// cannot log in with a password.
func (s *AuthService) LoginWithEmail(ctx context.Context, name, email string) (string, *domain.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		if name == "" {
			name = email
		}
		user, err = s.users.Create(ctx, name, strings.TrimSpace(email), unusablePassword)
		if errors.Is(err, domain.ErrDuplicateEmail) {
			// Lost a race with a concurrent provision.
			user, err = s.FindByEmail(ctx, email)
		}
	}
	if err != nil {
		return "", nil, err
	}

	token, err := s.StartSession(ctx, user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// StartSession stores a new session for user and returns its signed token.
// Expired sessions are purged first; a failed purge is only logged.
func (s *AuthService) StartSession(ctx context.Context, user *domain.User) (string, error) {
	now := s.now()
	if n, err := s.sessions.DeleteExpired(ctx, now); err != nil {
		s.logger.WarnContext(ctx, "purge expired sessions", "error", err)
	} else if n > 0 {
		s.logger.DebugContext(ctx, "purged expired sessions", "count", n)
	}

	session := domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", err
	}
	token, err := s.tokens.Sign(user.ID, session.ID, session.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Logout ends the session named by token. Unknown or invalid tokens are
// ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}
	err = s.sessions.Delete(ctx, claims.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// Resolve maps a session token to its user. Any token that does not lead to a
// live session and an existing user yields ErrNoSession; store failures are
// returned unchanged.
func (s *AuthService) Resolve(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrNoSession
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrNoSession
	}

	session, err := s.sessions.GetByID(ctx, claims.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrNoSession
	}
	if session.Expired(s.now()) {
		if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "delete expired session", "error", err)
		}
		return nil, ErrNoSession
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
