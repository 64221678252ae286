/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"
)

// RoleName enumerates the account roles.
type RoleName string

const (
	RoleAttendee  RoleName = "attendee"
	RoleOrganizer RoleName = "organizer"
)

// NormalizeRole maps free-form role input to a known role. Unknown values
// fall back to attendee.
func NormalizeRole(role string) RoleName {
	switch RoleName(strings.ToLower(strings.TrimSpace(role))) {
	case RoleOrganizer, "admin":
		return RoleOrganizer
	default:
		return RoleAttendee
	}
}

// User represents an authenticated account.
type User struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"not null" json:"name"`
	Password  string    `gorm:"not null" json:"-"`
	Role      RoleName  `gorm:"type:varchar(16)" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOrganizer reports whether the user may manage conference data.
func (u *User) IsOrganizer() bool {
	return u != nil && u.Role == RoleOrganizer
}

// UserSchedule links a user to a talk they plan to attend.
type UserSchedule struct {
	UserID  string    `gorm:"type:uuid;primaryKey" json:"user_id"`
	TalkID  string    `gorm:"type:varchar(64);primaryKey;index" json:"talk_id"`
	Talk    Talk      `gorm:"foreignKey:TalkID" json:"-"`
	AddedAt time.Time `gorm:"not null" json:"added_at"`
}

// Rating is one user's score for a talk.
type Rating struct {
	UserID    string    `gorm:"type:uuid;primaryKey" json:"user_id"`
	TalkID    string    `gorm:"type:varchar(64);primaryKey;index" json:"talk_id"`
	Score     int       `gorm:"not null" json:"score"`
	Comment   string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rating bounds.
const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

// ValidScore reports whether score is within the accepted rating range.
func ValidScore(score int) bool {
	return score >= MinRatingScore && score <= MaxRatingScore
}
