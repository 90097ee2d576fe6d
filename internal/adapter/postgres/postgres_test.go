package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/internal/domain"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	s, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = s.Close()
	})
	return newDB(s), mock
}

var taskCols = []string{"id", "owner_id", "text", "done", "created_at"}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestMigrate_UsesEmbeddedDir(t *testing.T) {
	s, _, err := sqlmock.New()
	require.NoError(t, err)
	defer s.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, migrate(context.Background(), s))
	assert.Equal(t, "migrations", gotDir)

	gooseUp = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	err = migrate(context.Background(), s)
	assert.ErrorContains(t, err, "boom")
}

func TestCreateUser(t *testing.T) {
	d, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(q("INSERT INTO users (name, email, password_hash, created_at)")).
		WithArgs("Ann", "ann@x.io", "hash", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "created_at"}).
			AddRow(int64(1), "Ann", "ann@x.io", "hash", now))

	u, err := d.Create(context.Background(), "Ann", "ann@x.io", "hash")
	require.NoError(t, err)

	want := &domain.User{ID: 1, Name: "Ann", Email: "ann@x.io", PasswordHash: "hash", CreatedAt: now}
	if diff := cmp.Diff(want, u); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectQuery(q("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: codeUniqueViolation})

	_, err := d.Create(context.Background(), "Bo", "bo@x.io", "hash")
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestGetByEmail(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectQuery(q("FROM users WHERE email = $1")).
		WithArgs("nobody@x.io").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "created_at"}))
	_, err := d.GetByEmail(context.Background(), "nobody@x.io")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	mock.ExpectQuery(q("FROM users WHERE email = $1")).
		WithArgs("ann@x.io").
		WillReturnError(errors.New("conn refused"))
	_, err = d.GetByEmail(context.Background(), "ann@x.io")
	assert.Regexp(t, `db error: .*conn refused`, err.Error())
}

func TestGetByID(t *testing.T) {
	d, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(q("FROM users WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "created_at"}).
			AddRow(int64(5), "Ann", "ann@x.io", "h", now))

	u, err := d.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "ann@x.io", u.Email)
}

func TestSessionRepo(t *testing.T) {
	d, mock := newMockDB(t)
	repo := NewSessionRepo(d)
	ctx := context.Background()
	now := time.Now().UTC()

	s := domain.Session{ID: "3f1c", UserID: 2, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	mock.ExpectExec(q("INSERT INTO sessions (id, user_id, expires_at, created_at)")).
		WithArgs(s.ID, s.UserID, s.ExpiresAt, s.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(ctx, s))

	mock.ExpectQuery(q("FROM sessions WHERE id = $1")).
		WithArgs(s.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}).
			AddRow(s.ID, s.UserID, s.ExpiresAt, s.CreatedAt))
	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(&s, got); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}

	mock.ExpectExec(q("DELETE FROM sessions WHERE id = $1")).
		WithArgs(s.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(ctx, s.ID), domain.ErrNotFound)

	mock.ExpectExec(q("DELETE FROM sessions WHERE expires_at <= $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAddTask(t *testing.T) {
	d, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(q("INSERT INTO tasks (owner_id, text, done, created_at) VALUES ($1, $2, FALSE, $3)")).
		WithArgs(nil, "buy milk", now).
		WillReturnRows(sqlmock.NewRows(taskCols).AddRow(int64(1), nil, "buy milk", false, now))

	task, err := d.AddTask(context.Background(), 0, "buy milk", now)
	require.NoError(t, err)
	assert.Equal(t, domain.Task{ID: 1, Text: "buy milk", CreatedAt: now}, *task)

	mock.ExpectQuery(q("INSERT INTO tasks")).
		WithArgs(int64(7), "x", now).
		WillReturnError(&pq.Error{Code: codeForeignKeyViolation})
	_, err = d.AddTask(context.Background(), 7, "x", now)
	assert.ErrorContains(t, err, "task owner 7 does not exist")
}

func TestListTasks(t *testing.T) {
	d, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(q("FROM tasks WHERE done = $1 AND ($2::bigint = 0 OR owner_id = $2) ORDER BY id")).
		WithArgs(false, int64(0)).
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow(int64(1), nil, "a", false, now).
			AddRow(int64(2), int64(4), "b", false, now))

	tasks, err := d.ListTasks(context.Background(), 0, false)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(0), tasks[0].OwnerID)
	assert.Equal(t, int64(4), tasks[1].OwnerID)
}

func TestToggleTask(t *testing.T) {
	d, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM tasks WHERE id = $1 AND ($2::bigint = 0 OR owner_id = $2) FOR UPDATE")).
		WithArgs(int64(3), int64(0)).
		WillReturnRows(sqlmock.NewRows(taskCols).AddRow(int64(3), nil, "t", true, now))
	mock.ExpectExec(q("UPDATE tasks SET done = $1 WHERE id = $2")).
		WithArgs(false, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	task, err := d.ToggleTask(context.Background(), 0, 3)
	require.NoError(t, err)
	assert.False(t, task.Done)
}

func TestSetTaskDone_NotFoundRollsBack(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(int64(9), int64(0)).
		WillReturnRows(sqlmock.NewRows(taskCols))
	mock.ExpectRollback()

	_, err := d.SetTaskDone(context.Background(), 0, 9, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetTaskDone_UpdateErrorRollsBack(t *testing.T) {
	d, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows(taskCols).AddRow(int64(1), int64(2), "t", false, now))
	mock.ExpectExec(q("UPDATE tasks SET done")).
		WithArgs(true, int64(1)).
		WillReturnError(errors.New("serialization failure"))
	mock.ExpectRollback()

	_, err := d.SetTaskDone(context.Background(), 2, 1, true)
	assert.ErrorContains(t, err, "serialization failure")
}

func TestDeleteTask(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectExec(q("DELETE FROM tasks WHERE id = $1 AND ($2::bigint = 0 OR owner_id = $2)")).
		WithArgs(int64(1), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, d.DeleteTask(context.Background(), 0, 1))

	mock.ExpectExec(q("DELETE FROM tasks")).
		WithArgs(int64(404), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, d.DeleteTask(context.Background(), 0, 404), domain.ErrNotFound)
}
