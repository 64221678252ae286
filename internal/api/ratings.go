/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/confplanner/internal/auth"
	"github.com/friendsincode/confplanner/internal/planner"
)

type rateRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

func (a *API) handleRateTalk(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	talkID := chi.URLParam(r, "talkID")
	rating, err := a.planner.Rate(r.Context(), auth.UserIDFromContext(r.Context()), talkID, req.Score, req.Comment)
	switch {
	case errors.Is(err, planner.ErrInvalidScore):
		writeError(w, http.StatusBadRequest, "invalid_score")
		return
	case errors.Is(err, planner.ErrTalkNotFound):
		writeError(w, http.StatusNotFound, "talk_not_found")
		return
	case err != nil:
		a.logger.Error().Err(err).Str("talk_id", talkID).Msg("rate talk failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (a *API) handleMyRating(w http.ResponseWriter, r *http.Request) {
	talkID := chi.URLParam(r, "talkID")
	rating, err := a.planner.UserRating(r.Context(), auth.UserIDFromContext(r.Context()), talkID)
	if err != nil {
		a.logger.Error().Err(err).Str("talk_id", talkID).Msg("load rating failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rating": rating})
}

func (a *API) handleTalkRatings(w http.ResponseWriter, r *http.Request) {
	summary, err := a.planner.Ratings(r.Context(), chi.URLParam(r, "talkID"))
	if err != nil {
		a.logger.Error().Err(err).Msg("load ratings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
