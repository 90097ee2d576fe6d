// Package sqlite implements the domain repositories on an embedded SQLite
// database through a zombiezen connection pool.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id   INTEGER REFERENCES users(id),
	text       TEXT NOT NULL,
	done       INTEGER NOT NULL DEFAULT 0 CHECK (done IN (0, 1)),
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner_done ON tasks(owner_id, done);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// DefaultPoolSize is used when Open is given a non-positive size.
const DefaultPoolSize = 4

// DB is a SQLite-backed store implementing the user and task repositories.
type DB struct {
	pool   *sqlitex.Pool
	path   string
	logger *slog.Logger
}

// Open creates or opens the database at path and applies the schema. Every
// pooled connection gets the same pragmas.
func Open(path string, poolSize int, logger *slog.Logger) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}
	d := &DB{pool: pool, path: path, logger: logger}

	// Apply the schema once up front so a broken file fails at startup.
	if err := d.with(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, schema, nil)
	}); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	logger.Info("sqlite store opened", "path", path, "pool_size", poolSize)
	return d, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes all pooled connections.
func (d *DB) Close() error {
	if err := d.pool.Close(); err != nil {
		return fmt.Errorf("sqlite: closing %s: %w", d.path, err)
	}
	d.logger.Info("sqlite store closed", "path", d.path)
	return nil
}

// Ping borrows a connection and runs a trivial query.
func (d *DB) Ping(ctx context.Context) error {
	return d.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, "SELECT 1", nil)
	})
}

// with borrows a connection for the duration of fn.
func (d *DB) with(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("take connection: %w", err)
	}
	defer d.pool.Put(conn)
	return fn(conn)
}

func toUnix(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// nullableOwner stores owner zero as NULL.
func nullableOwner(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
