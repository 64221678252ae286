/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for sensitive operations.
const (
	AuditActionUserSignup    AuditAction = "user.signup"
	AuditActionUserLogin     AuditAction = "user.login"
	AuditActionLoginFailed   AuditAction = "user.login_failed"
	AuditActionAPIKeyCreate  AuditAction = "apikey.create"
	AuditActionAPIKeyRevoke  AuditAction = "apikey.revoke"
	AuditActionSpeakerAvatar AuditAction = "speaker.avatar"
	AuditActionSeed          AuditAction = "conference.seed"
)

// AuditLog records sensitive operations.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey" json:"id"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	UserID       *string        `gorm:"type:uuid;index:idx_audit_user" json:"user_id,omitempty"` // NULL for system actions
	UserEmail    string         `gorm:"type:varchar(255)" json:"user_email,omitempty"`
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	ResourceType string         `gorm:"type:varchar(64)" json:"resource_type"`
	ResourceID   string         `gorm:"type:varchar(64)" json:"resource_id"`
	Details      map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	IPAddress    string         `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
