/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/confplanner/internal/auth"
	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/models"
)

type apiKeyCreateRequest struct {
	Name           string `json:"name"`
	ExpirationDays int    `json:"expiration_days"`
}

type apiKeyCreateResponse struct {
	Key    string         `json:"key"`
	APIKey *models.APIKey `json:"api_key"`
}

func (a *API) handleAPIKeysList(w http.ResponseWriter, r *http.Request) {
	keys, err := auth.ListAPIKeys(a.db.WithContext(r.Context()), auth.UserIDFromContext(r.Context()))
	if err != nil {
		a.logger.Error().Err(err).Msg("list api keys failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (a *API) handleAPIKeyCreate(w http.ResponseWriter, r *http.Request) {
	var req apiKeyCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "API Key"
	}
	days := req.ExpirationDays
	if days == 0 {
		days = auth.DefaultAPIKeyExpirationDays
	}
	if !auth.ValidAPIKeyExpiration(days) {
		writeError(w, http.StatusBadRequest, "invalid_expiration")
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	plaintext, key, err := auth.GenerateAPIKey(userID, name, time.Duration(days)*24*time.Hour)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to generate api key")
		writeError(w, http.StatusInternalServerError, "key_generation_failed")
		return
	}
	if err := a.db.WithContext(r.Context()).Create(key).Error; err != nil {
		a.logger.Error().Err(err).Msg("failed to save api key")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.publishAuditEvent(r, events.EventAuditAPIKeyCreate, events.Payload{
		"resource_type": "apikey",
		"resource_id":   key.ID,
		"key_name":      key.Name,
	})

	writeJSON(w, http.StatusCreated, apiKeyCreateResponse{Key: plaintext, APIKey: key})
}

func (a *API) handleAPIKeyRevoke(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")
	err := auth.RevokeAPIKey(a.db.WithContext(r.Context()), keyID, auth.UserIDFromContext(r.Context()))
	if errors.Is(err, auth.ErrAPIKeyNotFound) {
		writeError(w, http.StatusNotFound, "api_key_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("key_id", keyID).Msg("revoke api key failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.publishAuditEvent(r, events.EventAuditAPIKeyRevoke, events.Payload{
		"resource_type": "apikey",
		"resource_id":   keyID,
	})
	w.WriteHeader(http.StatusNoContent)
}
