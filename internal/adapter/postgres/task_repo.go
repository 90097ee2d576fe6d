package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planner/internal/domain"
)

const taskColumns = "id, owner_id, text, done, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t     domain.Task
		owner sql.NullInt64
	)
	if err := row.Scan(&t.ID, &owner, &t.Text, &t.Done, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.OwnerID = owner.Int64
	return &t, nil
}

// AddTask inserts a new undone task. Owner zero is stored as NULL.
func (d *DB) AddTask(ctx context.Context, ownerID int64, text string, createdAt time.Time) (*domain.Task, error) {
	owner := sql.NullInt64{Int64: ownerID, Valid: ownerID != 0}
	t, err := scanTask(d.sql.QueryRowContext(ctx,
		"INSERT INTO tasks (owner_id, text, done, created_at) VALUES ($1, $2, FALSE, $3) RETURNING "+taskColumns,
		owner, text, createdAt.UTC(),
	))
	if isCode(err, codeForeignKeyViolation) {
		return nil, fmt.Errorf("db error: task owner %d does not exist: %w", ownerID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// ListTasks returns the tasks with the given done flag, ordered by ID.
func (d *DB) ListTasks(ctx context.Context, ownerID int64, done bool) ([]domain.Task, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE done = $1 AND ($2::bigint = 0 OR owner_id = $2) ORDER BY id",
		done, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// GetTask retrieves a task by ID.
func (d *DB) GetTask(ctx context.Context, ownerID, id int64) (*domain.Task, error) {
	return getTask(ctx, d.sql, ownerID, id, false)
}

// getTask loads one task through q, locking the row when forUpdate is set.
func getTask(ctx context.Context, q dbtx, ownerID, id int64, forUpdate bool) (*domain.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE id = $1 AND ($2::bigint = 0 OR owner_id = $2)"
	if forUpdate {
		query += " FOR UPDATE"
	}
	t, err := scanTask(q.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// SetTaskDone sets the done flag to the given value.
func (d *DB) SetTaskDone(ctx context.Context, ownerID, id int64, done bool) (*domain.Task, error) {
	return d.updateDone(ctx, ownerID, id, func(bool) bool { return done })
}

// ToggleTask flips the done flag.
func (d *DB) ToggleTask(ctx context.Context, ownerID, id int64) (*domain.Task, error) {
	return d.updateDone(ctx, ownerID, id, func(cur bool) bool { return !cur })
}

// updateDone locks the row, computes the new flag from the current one and
// writes it back in a single transaction.
func (d *DB) updateDone(ctx context.Context, ownerID, id int64, next func(bool) bool) (*domain.Task, error) {
	var out *domain.Task
	err := d.withTx(ctx, func(ctx context.Context, tx dbtx) error {
		t, err := getTask(ctx, tx, ownerID, id, true)
		if err != nil {
			return err
		}
		t.Done = next(t.Done)
		if _, err := tx.ExecContext(ctx, "UPDATE tasks SET done = $1 WHERE id = $2", t.Done, t.ID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTask deletes a task by ID.
func (d *DB) DeleteTask(ctx context.Context, ownerID, id int64) error {
	res, err := d.sql.ExecContext(ctx,
		"DELETE FROM tasks WHERE id = $1 AND ($2::bigint = 0 OR owner_id = $2)",
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}
