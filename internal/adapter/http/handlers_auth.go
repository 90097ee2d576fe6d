// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"planner/internal/app"
)

const (
	msgDuplicateEmail = "You've already signed up with that email, log in instead!"
	msgUnknownEmail   = "That email does not exist, please try again."
	msgBadPassword    = "Password incorrect, please try again."
	msgSSOFailed      = "Single sign-on failed, please try again."
	msgRequired       = "This field is required."
)

// required returns a field error for each blank value.
func required(fields map[string]string) map[string]string {
	errs := map[string]string{}
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			errs[name] = msgRequired
		}
	}
	return errs
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if userFromContext(r.Context()) != nil {
		s.redirect(w, r, "/home")
		return
	}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "register", pageData{Title: "Register"})
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}

	form := formData{
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Email: strings.TrimSpace(r.PostFormValue("email")),
	}
	password := r.PostFormValue("password")
	if errs := required(map[string]string{"name": form.Name, "email": form.Email, "password": password}); len(errs) > 0 {
		s.render(w, r, http.StatusOK, "register", pageData{Title: "Register", Form: form, Errors: errs})
		return
	}

	user, err := s.auth.Register(r.Context(), form.Name, form.Email, password)
	if errors.Is(err, app.ErrDuplicateEmail) {
		s.flash(w, r, msgDuplicateEmail)
		s.redirect(w, r, "/login")
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	token, err := s.auth.StartSession(r.Context(), user)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	s.setSessionCookie(w, token)
	s.redirect(w, r, "/home")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if userFromContext(r.Context()) != nil {
		s.redirect(w, r, "/home")
		return
	}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "login", pageData{Title: "Log in"})
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}

	form := formData{Email: strings.TrimSpace(r.PostFormValue("email"))}
	password := r.PostFormValue("password")
	if errs := required(map[string]string{"email": form.Email, "password": password}); len(errs) > 0 {
		s.render(w, r, http.StatusOK, "login", pageData{Title: "Log in", Form: form, Errors: errs})
		return
	}

	token, user, err := s.auth.Login(r.Context(), form.Email, password)
	switch {
	case errors.Is(err, app.ErrUnknownAccount):
		s.flash(w, r, msgUnknownEmail)
		s.redirect(w, r, "/login")
		return
	case errors.Is(err, app.ErrCredentialMismatch):
		s.flash(w, r, msgBadPassword)
		s.redirect(w, r, "/login")
		return
	case err != nil:
		s.serverError(w, r, err)
		return
	}

	s.logger.InfoContext(r.Context(), "user logged in", "user_id", user.ID)
	s.setSessionCookie(w, token)
	s.redirect(w, r, "/home")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if err := s.auth.Logout(r.Context(), cookie.Value); err != nil {
			s.logger.WarnContext(r.Context(), "end session", "error", err)
		}
	}
	s.clearCookie(w, sessionCookie)
	s.redirect(w, r, "/")
}

func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if !s.oidcConfig.Enabled {
		s.notFound(w, r)
		return
	}
	state := generateState()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})
	http.Redirect(w, r, s.oidcConfig.OAuth2Config.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if !s.oidcConfig.Enabled {
		s.notFound(w, r)
		return
	}

	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || r.URL.Query().Get("state") != state.Value {
		s.renderError(w, r, http.StatusBadRequest, "The sign-on request is invalid or has expired.")
		return
	}
	s.clearCookie(w, stateCookie)

	token, err := s.oidcConfig.OAuth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		s.ssoFailed(w, r, "exchange code", err)
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		s.ssoFailed(w, r, "read id token", errors.New("token response has no id_token"))
		return
	}
	verifier := s.oidcConfig.Provider.Verifier(&oidc.Config{ClientID: s.oidcConfig.OAuth2Config.ClientID})
	idToken, err := verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		s.ssoFailed(w, r, "verify id token", err)
		return
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		s.ssoFailed(w, r, "parse claims", err)
		return
	}
	if claims.Email == "" || (claims.EmailVerified != nil && !*claims.EmailVerified) {
		s.ssoFailed(w, r, "check email claim", errors.New("no verified email"))
		return
	}

	sessionToken, user, err := s.auth.LoginWithEmail(r.Context(), claims.Name, claims.Email)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "user logged in", "user_id", user.ID, "method", "sso")
	s.setSessionCookie(w, sessionToken)
	s.redirect(w, r, "/home")
}

func (s *Server) ssoFailed(w http.ResponseWriter, r *http.Request, step string, err error) {
	s.logger.WarnContext(r.Context(), "sso login failed", "step", step, "error", err)
	s.flash(w, r, msgSSOFailed)
	s.redirect(w, r, "/login")
}
