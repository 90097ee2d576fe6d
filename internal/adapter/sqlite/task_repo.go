package sqlite

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"planner/internal/domain"
)

const (
	taskColumns = "id, owner_id, text, done, created_at"
	// ownerScope restricts to owner ?2 unless it is zero.
	ownerScope = "(?2 = 0 OR owner_id = ?2)"
)

func scanTask(stmt *sqlite.Stmt) domain.Task {
	t := domain.Task{
		ID:        stmt.ColumnInt64(0),
		Text:      stmt.ColumnText(2),
		Done:      stmt.ColumnInt64(3) != 0,
		CreatedAt: fromUnix(stmt.ColumnInt64(4)),
	}
	if !stmt.ColumnIsNull(1) {
		t.OwnerID = stmt.ColumnInt64(1)
	}
	return t
}

// AddTask inserts a new undone task.
func (d *DB) AddTask(ctx context.Context, ownerID int64, text string, createdAt time.Time) (*domain.Task, error) {
	t := &domain.Task{OwnerID: ownerID, Text: text, CreatedAt: createdAt.UTC()}
	err := d.with(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			"INSERT INTO tasks (owner_id, text, done, created_at) VALUES (?, ?, 0, ?)",
			&sqlitex.ExecOptions{Args: []any{nullableOwner(ownerID), text, toUnix(createdAt)}},
		)
		if err != nil {
			return err
		}
		t.ID = conn.LastInsertRowID()
		return nil
	})
	if sqlite.ErrCode(err) == sqlite.ResultConstraintForeignKey {
		return nil, fmt.Errorf("db error: task owner %d does not exist: %w", ownerID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// ListTasks returns the tasks with the given done flag, ordered by ID.
func (d *DB) ListTasks(ctx context.Context, ownerID int64, done bool) ([]domain.Task, error) {
	out := []domain.Task{}
	err := d.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT "+taskColumns+" FROM tasks WHERE done = ?1 AND "+ownerScope+" ORDER BY id",
			&sqlitex.ExecOptions{
				Args: []any{boolInt(done), ownerID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					out = append(out, scanTask(stmt))
					return nil
				},
			},
		)
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// GetTask retrieves a task by ID.
func (d *DB) GetTask(ctx context.Context, ownerID, id int64) (*domain.Task, error) {
	var t *domain.Task
	err := d.with(ctx, func(conn *sqlite.Conn) error {
		var err error
		t, err = getTask(conn, ownerID, id)
		return err
	})
	return t, err
}

func getTask(conn *sqlite.Conn, ownerID, id int64) (*domain.Task, error) {
	var t *domain.Task
	err := sqlitex.Execute(conn,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?1 AND "+ownerScope,
		&sqlitex.ExecOptions{
			Args: []any{id, ownerID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row := scanTask(stmt)
				t = &row
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if t == nil {
		return nil, domain.ErrNotFound
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

// updateDone reads and rewrites the flag inside one IMMEDIATE transaction so
// concurrent writers serialize on the database lock.
func (d *DB) updateDone(ctx context.Context, ownerID, id int64, next func(bool) bool) (*domain.Task, error) {
	var out *domain.Task
	err := d.with(ctx, func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("db error: begin transaction: %w", err)
		}
		defer endTransaction(&err)

		t, err := getTask(conn, ownerID, id)
		if err != nil {
			return err
		}
		t.Done = next(t.Done)
		if err := sqlitex.Execute(conn, "UPDATE tasks SET done = ? WHERE id = ?", &sqlitex.ExecOptions{
			Args: []any{boolInt(t.Done), t.ID},
		}); err != nil {
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
	n, err := d.exec(ctx, "DELETE FROM tasks WHERE id = ?1 AND "+ownerScope, id, ownerID)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
