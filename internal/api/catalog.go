/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/confplanner/internal/catalog"
	"github.com/friendsincode/confplanner/internal/models"
)

func (a *API) handleTalksList(w http.ResponseWriter, r *http.Request) {
	talks, err := a.catalog.ListTalks(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list talks failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, talks)
}

func (a *API) handleTalksSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.Filter{
		Query:   strings.TrimSpace(q.Get("q")),
		TrackID: q.Get("track"),
		Level:   models.TalkLevel(q.Get("level")),
		Format:  models.TalkFormat(q.Get("format")),
	}

	talks, err := a.catalog.SearchTalks(r.Context(), filter)
	if errors.Is(err, catalog.ErrInvalidFilter) {
		writeError(w, http.StatusBadRequest, "invalid_filter")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("search talks failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, talks)
}

func (a *API) handleTalkGet(w http.ResponseWriter, r *http.Request) {
	talk, err := a.catalog.GetTalk(r.Context(), chi.URLParam(r, "talkID"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "talk_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get talk failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, talk)
}

func (a *API) handleTracksList(w http.ResponseWriter, r *http.Request) {
	tracks, err := a.catalog.ListTracks(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list tracks failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (a *API) handleSpeakersList(w http.ResponseWriter, r *http.Request) {
	speakers, err := a.catalog.ListSpeakers(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list speakers failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, speakers)
}

func (a *API) handleSpeakerGet(w http.ResponseWriter, r *http.Request) {
	speaker, err := a.catalog.GetSpeaker(r.Context(), chi.URLParam(r, "speakerID"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "speaker_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get speaker failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, speaker)
}
