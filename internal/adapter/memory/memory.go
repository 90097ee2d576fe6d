// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"planner/internal/domain"
)

// DB implements an in-memory database storage. A single mutex guards all
// state, so every read-modify-write is atomic.
type DB struct {
	mu       sync.Mutex
	tasks    map[int64]*domain.Task
	users    []*domain.User
	sessions map[string]*domain.Session

	taskIDCounter int64
	userIDCounter int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		tasks:    make(map[int64]*domain.Task),
		sessions: make(map[string]*domain.Session),
	}
}

// Ensure interfaces are met.
var _ domain.TaskRepository = (*DB)(nil)
var _ domain.UserRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- TaskRepository ---

// AddTask stores a new undone task.
func (db *DB) AddTask(ctx context.Context, ownerID int64, text string, createdAt time.Time) (*domain.Task, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if ownerID != 0 && db.userByID(ownerID) == nil {
		return nil, fmt.Errorf("task owner %d does not exist", ownerID)
	}

	db.taskIDCounter++
	t := &domain.Task{
		ID:        db.taskIDCounter,
		OwnerID:   ownerID,
		Text:      text,
		CreatedAt: createdAt.UTC(),
	}
	db.tasks[t.ID] = t
	ret := *t
	return &ret, nil
}

// ListTasks returns the tasks with the given done flag, ordered by ID.
func (db *DB) ListTasks(ctx context.Context, ownerID int64, done bool) ([]domain.Task, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	result := []domain.Task{}
	for _, t := range db.tasks {
		if t.Done == done && inScope(t, ownerID) {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(ctx context.Context, ownerID, id int64) (*domain.Task, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(ownerID, id)
	if err != nil {
		return nil, err
	}
	ret := *t
	return &ret, nil
}

// SetTaskDone sets the done flag to the given value.
func (db *DB) SetTaskDone(ctx context.Context, ownerID, id int64, done bool) (*domain.Task, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(ownerID, id)
	if err != nil {
		return nil, err
	}
	t.Done = done
	ret := *t
	return &ret, nil
}

// ToggleTask flips the done flag.
func (db *DB) ToggleTask(ctx context.Context, ownerID, id int64) (*domain.Task, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.lookup(ownerID, id)
	if err != nil {
		return nil, err
	}
	t.Done = !t.Done
	ret := *t
	return &ret, nil
}

// DeleteTask deletes a task by ID.
func (db *DB) DeleteTask(ctx context.Context, ownerID, id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.lookup(ownerID, id); err != nil {
		return err
	}
	delete(db.tasks, id)
	return nil
}

// lookup must be called with mu held.
func (db *DB) lookup(ownerID, id int64) (*domain.Task, error) {
	t, ok := db.tasks[id]
	if !ok || !inScope(t, ownerID) {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func inScope(t *domain.Task, ownerID int64) bool {
	return ownerID == 0 || t.OwnerID == ownerID
}

// --- UserRepository ---

// GetByEmail retrieves a user by email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == email {
			ret := *u
			return &ret, nil
		}
	}
	return nil, domain.ErrNotFound
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u := db.userByID(id)
	if u == nil {
		return nil, domain.ErrNotFound
	}
	ret := *u
	return &ret, nil
}

func (db *DB) userByID(id int64) *domain.User {
	for _, u := range db.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, name, email, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == email {
			return nil, domain.ErrDuplicateEmail
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	db.users = append(db.users, u)
	ret := *u
	return &ret, nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create stores a session.
func (r *SessionRepo) Create(ctx context.Context, s domain.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.userByID(s.UserID) == nil {
		return fmt.Errorf("session user %d does not exist", s.UserID)
	}
	if _, ok := r.db.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	r.db.sessions[s.ID] = &s
	return nil
}

// GetByID retrieves a session by ID. Expiry is left to the caller.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	ret := *s
	return &ret, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.db.sessions, id)
	return nil
}

// DeleteExpired deletes all sessions expired at now.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for k, v := range r.db.sessions {
		if v.Expired(now) {
			delete(r.db.sessions, k)
			n++
		}
	}
	return n, nil
}
