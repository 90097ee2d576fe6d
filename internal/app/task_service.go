package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"planner/internal/domain"
)

// MaxTaskLength is the longest task text accepted, in characters.
const MaxTaskLength = 200

var (
	// ErrTaskNotFound indicates that no task has the requested id in scope.
	ErrTaskNotFound = errors.New("task not found")
	// ErrLoginRequired is returned in owner-scoped mode for anonymous callers.
	ErrLoginRequired = errors.New("login required")
	// ErrEmptyTask indicates that the task text is blank.
	ErrEmptyTask = errors.New("task text is required")
	// ErrTaskTooLong indicates that the task text exceeds MaxTaskLength.
	ErrTaskTooLong = fmt.Errorf("task text is longer than %d characters", MaxTaskLength)
)

// Board is the home page view of the task list.
type Board struct {
	Pending   []domain.Task
	Completed []domain.Task
	// Owned counts the listed tasks that belong to the current user.
	Owned int
}

// TaskService encapsulates to-do list use cases.
//
// By default all callers share one list and no login is needed. When
// ownerScoped is set every operation is limited to the caller's own tasks and
// anonymous callers get ErrLoginRequired.
type TaskService struct {
	repo        domain.TaskRepository
	ownerScoped bool
	now         func() time.Time
}

// NewTaskService creates a TaskService backed by the given repository.
func NewTaskService(repo domain.TaskRepository, ownerScoped bool) *TaskService {
	return &TaskService{repo: repo, ownerScoped: ownerScoped, now: time.Now}
}

// OwnerScoped reports whether tasks are private to their owner.
func (s *TaskService) OwnerScoped() bool { return s.ownerScoped }

// scope returns the owner filter for user, zero meaning every owner.
func (s *TaskService) scope(user *domain.User) (int64, error) {
	if !s.ownerScoped {
		return 0, nil
	}
	if user == nil {
		return 0, ErrLoginRequired
	}
	return user.ID, nil
}

// Add validates and stores a new undone task. The task is attributed to user
// when one is given.
func (s *TaskService) Add(ctx context.Context, user *domain.User, text string) (*domain.Task, error) {
	if _, err := s.scope(user); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTask
	}
	if utf8.RuneCountInString(text) > MaxTaskLength {
		return nil, ErrTaskTooLong
	}
	var owner int64
	if user != nil {
		owner = user.ID
	}
	return s.repo.AddTask(ctx, owner, text, s.now())
}

// ListPending returns the tasks not yet done, oldest first.
func (s *TaskService) ListPending(ctx context.Context, user *domain.User) ([]domain.Task, error) {
	return s.list(ctx, user, false)
}

// ListCompleted returns the finished tasks, oldest first.
func (s *TaskService) ListCompleted(ctx context.Context, user *domain.User) ([]domain.Task, error) {
	return s.list(ctx, user, true)
}

func (s *TaskService) list(ctx context.Context, user *domain.User, done bool) ([]domain.Task, error) {
	owner, err := s.scope(user)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTasks(ctx, owner, done)
}

// Board returns both lists plus the number of listed tasks the user owns.
func (s *TaskService) Board(ctx context.Context, user *domain.User) (*Board, error) {
	pending, err := s.ListPending(ctx, user)
	if err != nil {
		return nil, err
	}
	completed, err := s.ListCompleted(ctx, user)
	if err != nil {
		return nil, err
	}
	b := &Board{Pending: pending, Completed: completed}
	if user != nil {
		for _, list := range [][]domain.Task{pending, completed} {
			for _, t := range list {
				if t.OwnerID == user.ID {
					b.Owned++
				}
			}
		}
	}
	return b, nil
}

// MarkDone sets the task's done flag. Repeating it is harmless.
func (s *TaskService) MarkDone(ctx context.Context, user *domain.User, id int64) (*domain.Task, error) {
	owner, err := s.scope(user)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.SetTaskDone(ctx, owner, id, true)
	return t, taskErr(err)
}

// Toggle flips the task's done flag.
func (s *TaskService) Toggle(ctx context.Context, user *domain.User, id int64) (*domain.Task, error) {
	owner, err := s.scope(user)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.ToggleTask(ctx, owner, id)
	return t, taskErr(err)
}

// Delete removes the task permanently.
func (s *TaskService) Delete(ctx context.Context, user *domain.User, id int64) error {
	owner, err := s.scope(user)
	if err != nil {
		return err
	}
	return taskErr(s.repo.DeleteTask(ctx, owner, id))
}

func taskErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return ErrTaskNotFound
	}
	return err
}
