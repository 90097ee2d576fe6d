package adapthttp

import (
	"errors"
	"net/http"

	"planner/internal/app"
	"planner/internal/domain"
)

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sso_enabled":     s.oidcConfig.Enabled,
		"owner_scoped":    s.tasks.OwnerScoped(),
		"max_task_length": app.MaxTaskLength,
	})
}

// handleTasksJSON lists tasks as JSON. ?status=pending or ?status=completed
// narrows the result to one list.
func (s *Server) handleTasksJSON(w http.ResponseWriter, r *http.Request) {
	board, err := s.tasks.Board(r.Context(), userFromContext(r.Context()))
	if errors.Is(err, app.ErrLoginRequired) {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	pending, completed := nonNil(board.Pending), nonNil(board.Completed)
	switch r.URL.Query().Get("status") {
	case "":
	case "pending":
		completed = nil
	case "completed":
		pending = nil
	default:
		writeError(w, http.StatusBadRequest, errors.New("status must be pending or completed"))
		return
	}

	body := map[string]any{"owned": board.Owned}
	if pending != nil {
		body["pending"] = pending
	}
	if completed != nil {
		body["completed"] = completed
	}
	writeJSON(w, http.StatusOK, body)
}

func nonNil(tasks []domain.Task) []domain.Task {
	if tasks == nil {
		return []domain.Task{}
	}
	return tasks
}
