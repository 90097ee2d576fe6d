package sqlite

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"planner/internal/domain"
)

var (
	_ domain.UserRepository    = (*DB)(nil)
	_ domain.TaskRepository    = (*DB)(nil)
	_ domain.SessionRepository = (*SessionRepo)(nil)
)

const userColumns = "id, name, email, password_hash, created_at"

func scanUser(stmt *sqlite.Stmt) *domain.User {
	return &domain.User{
		ID:           stmt.ColumnInt64(0),
		Name:         stmt.ColumnText(1),
		Email:        stmt.ColumnText(2),
		PasswordHash: stmt.ColumnText(3),
		CreatedAt:    fromUnix(stmt.ColumnInt64(4)),
	}
}

func (d *DB) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	var u *domain.User
	err := d.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT "+userColumns+" FROM users WHERE "+where, &sqlitex.ExecOptions{
			Args: []any{arg},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				u = scanUser(stmt)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if u == nil {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

// GetByEmail retrieves a user by email.
func (d *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return d.getUser(ctx, "email = ?", email)
}

// GetByID retrieves a user by ID.
func (d *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return d.getUser(ctx, "id = ?", id)
}

// Create creates a new user. A unique violation on email maps to
// domain.ErrDuplicateEmail.
func (d *DB) Create(ctx context.Context, name, email, passwordHash string) (*domain.User, error) {
	u := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	err := d.with(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			"INSERT INTO users (name, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{name, email, passwordHash, toUnix(u.CreatedAt)}},
		)
		if err != nil {
			return err
		}
		u.ID = conn.LastInsertRowID()
		return nil
	})
	if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
		return nil, domain.ErrDuplicateEmail
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// SessionRepo implements session persistence on DB.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo wraps a DB as a SessionRepository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create stores a session.
func (r *SessionRepo) Create(ctx context.Context, s domain.Session) error {
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{s.ID, s.UserID, toUnix(s.ExpiresAt), toUnix(s.CreatedAt)}},
		)
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var s *domain.Session
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?",
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					s = &domain.Session{
						ID:        stmt.ColumnText(0),
						UserID:    stmt.ColumnInt64(1),
						ExpiresAt: fromUnix(stmt.ColumnInt64(2)),
						CreatedAt: fromUnix(stmt.ColumnInt64(3)),
					}
					return nil
				},
			},
		)
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if s == nil {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

// Delete deletes a session by ID.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	n, err := r.db.exec(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteExpired deletes all sessions expired at now.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.db.exec(ctx, "DELETE FROM sessions WHERE expires_at <= ?", toUnix(now))
}

// exec runs a single statement and returns the number of changed rows.
func (d *DB) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := d.with(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return err
		}
		n = int64(conn.Changes())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
