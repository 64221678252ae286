/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/friendsincode/confplanner/internal/conflict"
)

// TalkLevel is the expected audience experience.
type TalkLevel string

const (
	LevelBeginner     TalkLevel = "beginner"
	LevelIntermediate TalkLevel = "intermediate"
	LevelAdvanced     TalkLevel = "advanced"
)

// Valid reports whether l is a known level.
func (l TalkLevel) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// TalkFormat is the session type.
type TalkFormat string

const (
	FormatTalk     TalkFormat = "talk"
	FormatWorkshop TalkFormat = "workshop"
	FormatKeynote  TalkFormat = "keynote"
	FormatPanel    TalkFormat = "panel"
)

// Valid reports whether f is a known format.
func (f TalkFormat) Valid() bool {
	switch f {
	case FormatTalk, FormatWorkshop, FormatKeynote, FormatPanel:
		return true
	}
	return false
}

// Speaker presents one or more talks.
type Speaker struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name      string    `gorm:"not null;index" json:"name"`
	Bio       string    `gorm:"type:text" json:"bio"`
	Avatar    string    `json:"avatar"`
	Company   string    `json:"company"`
	Role      string    `json:"role"`
	Twitter   *string   `json:"twitter,omitempty"`
	Talks     []Talk    `gorm:"foreignKey:SpeakerID" json:"talks,omitempty"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Track groups talks by topic.
type Track struct {
	ID          string `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	Color       string `gorm:"type:varchar(16)" json:"color"`
	Description string `gorm:"type:text" json:"description"`
}

// Room is a physical venue.
type Room struct {
	ID       string `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name     string `gorm:"not null" json:"name"`
	Capacity int    `json:"capacity"`
}

// Talk is one scheduled session.
type Talk struct {
	ID          string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	Title       string     `gorm:"not null;index" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	SpeakerID   string     `gorm:"type:varchar(64);index;not null" json:"speaker_id"`
	Speaker     *Speaker   `gorm:"foreignKey:SpeakerID" json:"speaker,omitempty"`
	TrackID     string     `gorm:"type:varchar(64);index;not null" json:"track_id"`
	Track       *Track     `gorm:"foreignKey:TrackID" json:"track,omitempty"`
	RoomID      string     `gorm:"type:varchar(64);index;not null" json:"room_id"`
	Room        *Room      `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	StartsAt    time.Time  `gorm:"index;not null" json:"starts_at"`
	EndsAt      time.Time  `gorm:"not null" json:"ends_at"`
	Level       TalkLevel  `gorm:"type:varchar(16)" json:"level"`
	Format      TalkFormat `gorm:"type:varchar(16)" json:"format"`
	CreatedAt   time.Time  `json:"-"`
	UpdatedAt   time.Time  `json:"-"`
}

// Duration returns the scheduled length of the talk.
func (t *Talk) Duration() time.Duration {
	return t.EndsAt.Sub(t.StartsAt)
}

// ConflictItem converts the talk to the interval used for overlap checks,
// in unix seconds.
func (t *Talk) ConflictItem() conflict.Item {
	return conflict.Item{ID: t.ID, Start: t.StartsAt.Unix(), End: t.EndsAt.Unix()}
}

// ConflictItems converts talks in order.
func ConflictItems(talks []Talk) []conflict.Item {
	items := make([]conflict.Item, len(talks))
	for i := range talks {
		items[i] = talks[i].ConflictItem()
	}
	return items
}
