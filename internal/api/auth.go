/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/friendsincode/confplanner/internal/auth"
	"github.com/friendsincode/confplanner/internal/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := a.auth.Signup(r.Context(), req)
	if err != nil {
		var verr *auth.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation_failed", "fields": verr.Fields})
		case errors.Is(err, auth.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email_taken")
		default:
			a.logger.Error().Err(err).Msg("signup failed")
			writeError(w, http.StatusInternalServerError, "signup_failed")
		}
		return
	}

	a.startSession(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email_and_password_required")
		return
	}

	user, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "login_failed")
		return
	}

	a.startSession(w, http.StatusOK, user)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, a.opts.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.UserByID(r.Context(), auth.UserIDFromContext(r.Context()))
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("load current user failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// startSession sets the session cookie and returns the token for clients
// that prefer bearer auth.
func (a *API) startSession(w http.ResponseWriter, status int, user *models.User) {
	token, err := auth.IssueSession(a.opts.JWTSecret, user, a.opts.SessionTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("issue session token failed")
		writeError(w, http.StatusInternalServerError, "token_issue_failed")
		return
	}
	auth.SetSessionCookie(w, token, a.opts.SessionTTL, a.opts.CookieSecure)
	writeJSON(w, status, sessionResponse{User: user, Token: token})
}
