package adapthttp

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"planner/internal/app"
	"planner/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"cover", "home", "login", "register", "error"}

// views holds one template set per page, each layered on base.html.
type views map[string]*template.Template

func parseViews() (views, error) {
	v := views{}
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		v[name] = t
	}
	return v, nil
}

// formData echoes submitted fields back into a re-rendered form. Passwords
// are never echoed.
type formData struct {
	Name  string
	Email string
}

type pageData struct {
	Title   string
	User    *domain.User
	Flashes []string
	SSO     bool

	Board         *app.Board
	MaxTaskLength int

	Form   formData
	Errors map[string]string

	Status  int
	Message string
}

// render executes the named page into a buffer first so a template failure
// still produces a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	data.User = userFromContext(r.Context())
	data.Flashes = s.takeFlashes(w, r)
	data.SSO = s.oidcConfig.Enabled

	var buf bytes.Buffer
	if err := s.views[name].ExecuteTemplate(&buf, "base", data); err != nil {
		s.logger.ErrorContext(r.Context(), "render template", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.render(w, r, status, "error", pageData{
		Title:   http.StatusText(status),
		Status:  status,
		Message: message,
	})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusNotFound, "That page or task does not exist.")
}

// serverError logs err and renders the generic failure page.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	s.renderError(w, r, http.StatusInternalServerError, "Something went wrong. Please try again.")
}
