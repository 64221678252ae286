/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/models"
)

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
		now:    time.Now,
	}
}

// Start subscribes to audit events and stores them until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	signup := s.bus.Subscribe(events.EventAuditSignup)
	login := s.bus.Subscribe(events.EventAuditLogin)
	loginFailed := s.bus.Subscribe(events.EventAuditLoginFailed)
	apiKeyCreate := s.bus.Subscribe(events.EventAuditAPIKeyCreate)
	apiKeyRevoke := s.bus.Subscribe(events.EventAuditAPIKeyRevoke)
	speakerAvatar := s.bus.Subscribe(events.EventAuditSpeakerAvatar)
	seed := s.bus.Subscribe(events.EventAuditSeed)

	defer func() {
		s.bus.Unsubscribe(events.EventAuditSignup, signup)
		s.bus.Unsubscribe(events.EventAuditLogin, login)
		s.bus.Unsubscribe(events.EventAuditLoginFailed, loginFailed)
		s.bus.Unsubscribe(events.EventAuditAPIKeyCreate, apiKeyCreate)
		s.bus.Unsubscribe(events.EventAuditAPIKeyRevoke, apiKeyRevoke)
		s.bus.Unsubscribe(events.EventAuditSpeakerAvatar, speakerAvatar)
		s.bus.Unsubscribe(events.EventAuditSeed, seed)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-signup:
			s.logAuditEntry(ctx, models.AuditActionUserSignup, payload)

		case payload := <-login:
			s.logAuditEntry(ctx, models.AuditActionUserLogin, payload)

		case payload := <-loginFailed:
			s.logAuditEntry(ctx, models.AuditActionLoginFailed, payload)

		case payload := <-apiKeyCreate:
			s.logAuditEntry(ctx, models.AuditActionAPIKeyCreate, payload)

		case payload := <-apiKeyRevoke:
			s.logAuditEntry(ctx, models.AuditActionAPIKeyRevoke, payload)

		case payload := <-speakerAvatar:
			s.logAuditEntry(ctx, models.AuditActionSpeakerAvatar, payload)

		case payload := <-seed:
			s.logAuditEntry(ctx, models.AuditActionSeed, payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := EntryFromPayload(action, payload)
	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// EntryFromPayload maps the well-known payload keys onto entry columns and
// keeps the rest as details.
func EntryFromPayload(action models.AuditAction, payload events.Payload) *models.AuditLog {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}

	if userID, ok := payload["user_id"].(string); ok && userID != "" {
		entry.UserID = &userID
	}
	if userEmail, ok := payload["user_email"].(string); ok {
		entry.UserEmail = userEmail
	}
	if resourceType, ok := payload["resource_type"].(string); ok {
		entry.ResourceType = resourceType
	}
	if resourceID, ok := payload["resource_id"].(string); ok {
		entry.ResourceID = resourceID
	}
	if ipAddress, ok := payload["ip_address"].(string); ok {
		entry.IPAddress = ipAddress
	}

	for k, v := range payload {
		switch k {
		case "user_id", "user_email", "resource_type", "resource_id", "ip_address":
		default:
			entry.Details[k] = v
		}
	}
	return entry
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	now := s.now()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	UserID       *string
	Action       *models.AuditAction
	ResourceType string
	StartTime    *time.Time
	EndTime      *time.Time
	Limit        int
	Offset       int
}

// MaxQueryLimit caps a single page of audit logs.
const MaxQueryLimit = 500

// Query retrieves audit logs with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.ResourceType != "" {
		query = query.Where("resource_type = ?", filters.ResourceType)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch {
	case filters.Limit <= 0:
		query = query.Limit(100)
	case filters.Limit > MaxQueryLimit:
		query = query.Limit(MaxQueryLimit)
	default:
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
