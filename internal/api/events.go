/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/confplanner/internal/auth"
	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/telemetry"
)

const (
	eventsPingInterval = 15 * time.Second
	eventsWriteTimeout = 5 * time.Second
)

type streamEvent struct {
	eventType events.EventType
	payload   events.Payload
}

// handleEvents streams the caller's own schedule and rating changes over a
// websocket.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "events_disabled")
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	// Clients never send data; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	stream := make(chan streamEvent, 16)
	for _, eventType := range events.ScheduleEventTypes {
		sub := a.bus.Subscribe(eventType)
		defer a.bus.Unsubscribe(eventType, sub)
		go forwardEvents(ctx, eventType, sub, stream)
	}

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	for {
		var ev streamEvent
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := a.writeFrame(ctx, conn, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
			continue
		case ev = <-stream:
		}

		if !ownedBy(ev.payload, userID) {
			continue
		}
		if err := a.writeEvent(ctx, conn, ev.eventType, ev.payload); err != nil {
			a.logger.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

// forwardEvents copies sub into stream until sub is closed or ctx ends.
func forwardEvents(ctx context.Context, eventType events.EventType, sub events.Subscriber, stream chan<- streamEvent) {
	for payload := range sub {
		select {
		case stream <- streamEvent{eventType: eventType, payload: payload}:
		case <-ctx.Done():
			return
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return a.writeFrame(ctx, conn, bytes)
}

func (a *API) writeFrame(ctx context.Context, conn *ws.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, eventsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}

func ownedBy(payload events.Payload, userID string) bool {
	id, _ := payload["user_id"].(string)
	return id != "" && id == userID
}
