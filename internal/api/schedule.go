/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/confplanner/internal/auth"
	"github.com/friendsincode/confplanner/internal/export"
	"github.com/friendsincode/confplanner/internal/models"
	"github.com/friendsincode/confplanner/internal/planner"
)

// maxConflictCheckTalks bounds one ad-hoc conflict check.
const maxConflictCheckTalks = 200

type scheduleAddResponse struct {
	TalkID       string        `json:"talk_id"`
	Conflicts    []models.Talk `json:"conflicts"`
	HasConflicts bool          `json:"has_conflicts"`
}

type conflictCheckRequest struct {
	TalkIDs []string `json:"talk_ids"`
}

func (a *API) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	sched, err := a.planner.GetUserSchedule(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		a.logger.Error().Err(err).Msg("load schedule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (a *API) handleScheduleAdd(w http.ResponseWriter, r *http.Request) {
	talkID := chi.URLParam(r, "talkID")
	overlapping, err := a.planner.Add(r.Context(), auth.UserIDFromContext(r.Context()), talkID)
	switch {
	case errors.Is(err, planner.ErrTalkNotFound):
		writeError(w, http.StatusNotFound, "talk_not_found")
		return
	case errors.Is(err, planner.ErrAlreadyScheduled):
		writeError(w, http.StatusConflict, "already_scheduled")
		return
	case err != nil:
		a.logger.Error().Err(err).Str("talk_id", talkID).Msg("add to schedule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusCreated, scheduleAddResponse{
		TalkID:       talkID,
		Conflicts:    overlapping,
		HasConflicts: len(overlapping) > 0,
	})
}

func (a *API) handleScheduleRemove(w http.ResponseWriter, r *http.Request) {
	talkID := chi.URLParam(r, "talkID")
	if err := a.planner.Remove(r.Context(), auth.UserIDFromContext(r.Context()), talkID); err != nil {
		a.logger.Error().Err(err).Str("talk_id", talkID).Msg("remove from schedule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleScheduleContains(w http.ResponseWriter, r *http.Request) {
	talkID := chi.URLParam(r, "talkID")
	in, err := a.planner.IsInSchedule(r.Context(), auth.UserIDFromContext(r.Context()), talkID)
	if err != nil {
		a.logger.Error().Err(err).Str("talk_id", talkID).Msg("schedule lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"talk_id": talkID, "in_schedule": in})
}

func (a *API) handleConflictCheck(w http.ResponseWriter, r *http.Request) {
	var req conflictCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.TalkIDs) > maxConflictCheckTalks {
		writeError(w, http.StatusBadRequest, "too_many_talks")
		return
	}

	report, err := a.planner.CheckConflicts(r.Context(), req.TalkIDs)
	if err != nil {
		a.logger.Error().Err(err).Msg("conflict check failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleScheduleExport(w http.ResponseWriter, r *http.Request) {
	sched, err := a.planner.GetUserSchedule(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		a.logger.Error().Err(err).Msg("load schedule for export failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	result := export.Schedule(sched, export.Options{
		ConferenceName: a.opts.ConferenceName,
		Timezone:       a.opts.Timezone,
		BaseURL:        a.opts.BaseURL,
		Now:            time.Now(),
	})

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
