/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/confplanner/internal/catalog"
	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/storage"
)

// sniffLen is how much of an upload is inspected for its image type.
const sniffLen = 512

// handleSpeakerAvatarUpload stores a speaker photo and points the speaker at it.
func (a *API) handleSpeakerAvatarUpload(w http.ResponseWriter, r *http.Request) {
	if a.avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "avatar_storage_disabled")
		return
	}

	speakerID := chi.URLParam(r, "speakerID")
	if _, err := a.catalog.GetSpeaker(r.Context(), speakerID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "speaker_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("load speaker failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxAvatarBytes+(1<<20))
	if err := r.ParseMultipartForm(a.opts.MaxAvatarBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	if header.Size > a.opts.MaxAvatarBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
		return
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "file_unreadable")
		return
	}
	head = head[:n]

	contentType, ext, err := storage.DetectImage(head)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_image_type")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		a.logger.Error().Err(err).Msg("rewind upload failed")
		writeError(w, http.StatusInternalServerError, "upload_failed")
		return
	}

	key := storage.AvatarKey(speakerID, ext)
	if err := a.avatars.Put(r.Context(), key, contentType, file); err != nil {
		a.logger.Error().Err(err).Str("speaker_id", speakerID).Msg("store avatar failed")
		writeError(w, http.StatusInternalServerError, "upload_failed")
		return
	}

	avatarURL := a.avatars.URL(key)
	if err := a.catalog.SetSpeakerAvatar(r.Context(), speakerID, avatarURL); err != nil {
		a.logger.Error().Err(err).Str("speaker_id", speakerID).Msg("update speaker avatar failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if a.bus != nil {
		a.bus.Publish(events.EventSpeakerUpdated, events.Payload{"speaker_id": speakerID})
	}
	a.publishAuditEvent(r, events.EventAuditSpeakerAvatar, events.Payload{
		"resource_type": "speaker",
		"resource_id":   speakerID,
		"content_type":  contentType,
		"size":          header.Size,
	})

	writeJSON(w, http.StatusCreated, map[string]string{
		"speaker_id": speakerID,
		"avatar":     avatarURL,
	})
}
