/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/friendsincode/confplanner/internal/assistant"
	"github.com/friendsincode/confplanner/internal/auth"
)

// maxChatMessages bounds the history accepted per chat request.
const maxChatMessages = 50

type chatRequest struct {
	Messages []assistant.ChatMessage `json:"messages"`
}

func (a *API) handleAssistantChat(w http.ResponseWriter, r *http.Request) {
	if a.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant_disabled")
		return
	}

	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Messages) > maxChatMessages {
		req.Messages = req.Messages[len(req.Messages)-maxChatMessages:]
	}

	reply, err := a.assistant.Chat(r.Context(), auth.UserIDFromContext(r.Context()), req.Messages)
	switch {
	case errors.Is(err, assistant.ErrNoUserMessage):
		writeError(w, http.StatusBadRequest, "no_user_message")
		return
	case errors.Is(err, assistant.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, "assistant_unavailable")
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("assistant chat failed")
		writeError(w, http.StatusBadGateway, "assistant_failed")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
