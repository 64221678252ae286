/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the JSON HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/confplanner/internal/assistant"
	"github.com/friendsincode/confplanner/internal/audit"
	"github.com/friendsincode/confplanner/internal/auth"
	"github.com/friendsincode/confplanner/internal/catalog"
	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/logbuffer"
	"github.com/friendsincode/confplanner/internal/models"
	"github.com/friendsincode/confplanner/internal/planner"
	"github.com/friendsincode/confplanner/internal/storage"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// Options carries HTTP-level settings.
type Options struct {
	JWTSecret    []byte
	SessionTTL   time.Duration
	CookieSecure bool

	ConferenceName string
	Timezone       string
	BaseURL        string

	MaxAvatarBytes int64
}

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	opts      Options
	auth      *auth.Service
	catalog   *catalog.Service
	planner   *planner.Service
	auditSvc  *audit.Service
	assistant *assistant.Service
	avatars   storage.ObjectStore
	logBuf    *logbuffer.Buffer
	bus       *events.Bus
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, opts Options, authSvc *auth.Service, cat *catalog.Service, plan *planner.Service, auditSvc *audit.Service, bus *events.Bus, logger zerolog.Logger) *API {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.MaxAvatarBytes <= 0 {
		opts.MaxAvatarBytes = 5 << 20
	}
	return &API{
		db:       db,
		opts:     opts,
		auth:     authSvc,
		catalog:  cat,
		planner:  plan,
		auditSvc: auditSvc,
		bus:      bus,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// SetAssistant enables the chat endpoint.
func (a *API) SetAssistant(svc *assistant.Service) {
	a.assistant = svc
}

// SetLogBuffer exposes recent process logs to organizers.
func (a *API) SetLogBuffer(buf *logbuffer.Buffer) {
	a.logBuf = buf
}

// SetAvatarStore enables avatar uploads.
func (a *API) SetAvatarStore(store storage.ObjectStore) {
	a.avatars = store
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Public endpoints (no auth required)
		r.Get("/talks", a.handleTalksList)
		r.Get("/talks/search", a.handleTalksSearch)
		r.Get("/talks/{talkID}", a.handleTalkGet)
		r.Get("/talks/{talkID}/ratings", a.handleTalkRatings)
		r.Get("/tracks", a.handleTracksList)
		r.Get("/speakers", a.handleSpeakersList)
		r.Get("/speakers/{speakerID}", a.handleSpeakerGet)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", a.handleSignup)
			r.Post("/login", a.handleLogin)
			r.Post("/logout", a.handleLogout)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Required(a.db, a.opts.JWTSecret))

			pr.Get("/me", a.handleMe)
			pr.Get("/events", a.handleEvents)

			pr.Route("/schedule", func(r chi.Router) {
				r.Get("/", a.handleScheduleGet)
				r.Get("/export.ics", a.handleScheduleExport)
				r.Post("/conflicts", a.handleConflictCheck)
				r.Get("/{talkID}", a.handleScheduleContains)
				r.Post("/{talkID}", a.handleScheduleAdd)
				r.Delete("/{talkID}", a.handleScheduleRemove)
			})

			pr.Put("/talks/{talkID}/rating", a.handleRateTalk)
			pr.Get("/talks/{talkID}/rating", a.handleMyRating)

			pr.Post("/assistant/chat", a.handleAssistantChat)

			pr.Route("/api-keys", func(r chi.Router) {
				r.Get("/", a.handleAPIKeysList)
				r.Post("/", a.handleAPIKeyCreate)
				r.Delete("/{keyID}", a.handleAPIKeyRevoke)
			})

			pr.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(string(models.RoleOrganizer)))
				r.Post("/speakers/{speakerID}/avatar", a.handleSpeakerAvatarUpload)
				r.Get("/audit", a.handleAuditList)
				r.Route("/logs", func(r chi.Router) {
					r.Get("/", a.handleSystemLogs)
					r.Get("/components", a.handleLogComponents)
					r.Get("/stats", a.handleLogStats)
					r.Delete("/", a.handleClearLogs)
				})
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("health check: database unreachable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// decodeJSON reads a bounded JSON body. It writes the error response itself
// and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "empty_body")
		default:
			writeError(w, http.StatusBadRequest, "invalid_json")
		}
		return false
	}
	return true
}

// auditContext extracts user and request info for audit logging.
func (a *API) auditContext(r *http.Request) events.Payload {
	payload := events.Payload{
		"ip_address": r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil {
		payload["user_id"] = claims.UserID
		if claims.Email != "" {
			payload["user_email"] = claims.Email
		}
	}
	return payload
}

// publishAuditEvent publishes an audit event with user and request context.
func (a *API) publishAuditEvent(r *http.Request, eventType events.EventType, data events.Payload) {
	if a.bus == nil {
		return
	}
	payload := a.auditContext(r)
	for k, v := range data {
		payload[k] = v
	}
	a.bus.Publish(eventType, payload)
}
