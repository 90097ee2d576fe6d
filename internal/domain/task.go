package domain

import (
	"context"
	"time"
)

// Task is a single to-do item. OwnerID is zero for tasks added without a
// logged-in user.
type Task struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"ownerId"`
	Text      string    `json:"text"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskRepository is the port for task persistence.
//
// Every method takes an ownerID scope: zero matches tasks of any owner,
// anything else restricts the operation to that owner's tasks. Lookups that
// match nothing return ErrNotFound.
type TaskRepository interface {
	AddTask(ctx context.Context, ownerID int64, text string, createdAt time.Time) (*Task, error)
	ListTasks(ctx context.Context, ownerID int64, done bool) ([]Task, error)
	GetTask(ctx context.Context, ownerID, id int64) (*Task, error)
	SetTaskDone(ctx context.Context, ownerID, id int64, done bool) (*Task, error)
	ToggleTask(ctx context.Context, ownerID, id int64) (*Task, error)
	DeleteTask(ctx context.Context, ownerID, id int64) error
}
