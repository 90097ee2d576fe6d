package adapthttp

import (
	"context"
	"errors"
	"net/http"

	"planner/internal/app"
	"planner/internal/domain"
)

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "cover", pageData{})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	board, err := s.tasks.Board(r.Context(), userFromContext(r.Context()))
	if err != nil {
		s.taskError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "home", pageData{
		Title:         "Tasks",
		Board:         board,
		MaxTaskLength: app.MaxTaskLength,
	})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}
	_, err := s.tasks.Add(r.Context(), userFromContext(r.Context()), r.PostFormValue("todoitem"))
	switch {
	case errors.Is(err, app.ErrEmptyTask), errors.Is(err, app.ErrTaskTooLong):
		s.flash(w, r, capitalize(err.Error())+".")
	case err != nil:
		s.taskError(w, r, err)
		return
	}
	s.redirect(w, r, "/home")
}

func (s *Server) handleDone(w http.ResponseWriter, r *http.Request) {
	s.mutateTask(w, r, func(ctx context.Context, user *domain.User, id int64) error {
		_, err := s.tasks.MarkDone(ctx, user, id)
		return err
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.mutateTask(w, r, func(ctx context.Context, user *domain.User, id int64) error {
		_, err := s.tasks.Toggle(ctx, user, id)
		return err
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mutateTask(w, r, s.tasks.Delete)
}

// mutateTask runs op on the task named in the path and returns to the list.
func (s *Server) mutateTask(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, user *domain.User, id int64) error) {
	id, ok := taskID(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	if err := op(r.Context(), userFromContext(r.Context()), id); err != nil {
		s.taskError(w, r, err)
		return
	}
	s.redirect(w, r, "/home")
}

// taskError maps task service errors to responses.
func (s *Server) taskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrTaskNotFound):
		s.notFound(w, r)
	case errors.Is(err, app.ErrLoginRequired):
		s.flash(w, r, "Please log in to manage your tasks.")
		s.redirect(w, r, "/login")
	default:
		s.serverError(w, r, err)
	}
}

func capitalize(msg string) string {
	if msg == "" {
		return msg
	}
	b := []byte(msg)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
