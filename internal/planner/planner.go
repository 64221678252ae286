/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planner manages personal schedules and reports time conflicts
// between saved or candidate talks.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/confplanner/internal/catalog"
	"github.com/friendsincode/confplanner/internal/conflict"
	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/models"
	"github.com/friendsincode/confplanner/internal/telemetry"
)

var (
	// ErrAlreadyScheduled is returned when the talk is already saved.
	ErrAlreadyScheduled = errors.New("talk already in your schedule")
	// ErrTalkNotFound is returned for unknown talk ids.
	ErrTalkNotFound = errors.New("talk not found")
)

// Conflict check sources, used as metric labels.
const (
	SourceSchedule = "schedule"
	SourceAdd      = "add"
	SourceCheck    = "check"
)

// Entry is one saved talk and the saved talks it overlaps.
type Entry struct {
	Talk          models.Talk `json:"talk"`
	AddedAt       time.Time   `json:"added_at"`
	ConflictsWith []string    `json:"conflicts_with"`
}

// Schedule is a user's saved talks ordered by start time.
type Schedule struct {
	Entries   []Entry         `json:"entries"`
	Conflicts []conflict.Pair `json:"conflicts"`
}

// HasConflicts reports whether any two saved talks overlap.
func (s *Schedule) HasConflicts() bool {
	return len(s.Conflicts) > 0
}

// TalkIDs returns the saved talk ids in schedule order.
func (s *Schedule) TalkIDs() []string {
	ids := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		ids[i] = e.Talk.ID
	}
	return ids
}

// Service manages saved schedules.
type Service struct {
	db      *gorm.DB
	catalog *catalog.Service
	bus     *events.Bus
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates a planner. bus may be nil.
func NewService(db *gorm.DB, cat *catalog.Service, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		catalog: cat,
		bus:     bus,
		logger:  logger.With().Str("component", "planner").Logger(),
		now:     time.Now,
	}
}

// GetUserSchedule returns the user's saved talks with their conflicts.
func (s *Service) GetUserSchedule(ctx context.Context, userID string) (*Schedule, error) {
	talks, addedAt, err := s.savedTalks(ctx, userID)
	if err != nil {
		return nil, err
	}

	rel := s.detect(SourceSchedule, talks)
	sched := &Schedule{
		Entries:   make([]Entry, len(talks)),
		Conflicts: rel.Pairs(),
	}
	for i, t := range talks {
		sched.Entries[i] = Entry{
			Talk:          t,
			AddedAt:       addedAt[t.ID],
			ConflictsWith: rel.ConflictsFor(t.ID),
		}
	}
	return sched, nil
}

// savedTalks loads the user's saved talks ordered by start time, with the
// time each was added.
func (s *Service) savedTalks(ctx context.Context, userID string) ([]models.Talk, map[string]time.Time, error) {
	var rows []models.UserSchedule
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("load schedule: %w", err)
	}

	addedAt := make(map[string]time.Time, len(rows))
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.TalkID
		addedAt[row.TalkID] = row.AddedAt
	}

	talks, err := s.catalog.TalksByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	sortByStart(talks)
	return talks, addedAt, nil
}

// Add saves a talk. The returned talks are already-saved talks that overlap
// the new one; they are a warning, not an error.
func (s *Service) Add(ctx context.Context, userID, talkID string) ([]models.Talk, error) {
	var talk models.Talk
	err := s.db.WithContext(ctx).Select("id").First(&talk, "id = ?", talkID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTalkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load talk: %w", err)
	}

	in, err := s.IsInSchedule(ctx, userID, talkID)
	if err != nil {
		return nil, err
	}
	if in {
		s.logger.Debug().Str("user_id", userID).Str("talk_id", talkID).Msg("schedule add: already saved")
		return nil, ErrAlreadyScheduled
	}

	entry := models.UserSchedule{UserID: userID, TalkID: talkID, AddedAt: s.now().UTC()}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyScheduled
		}
		return nil, fmt.Errorf("save schedule entry: %w", err)
	}

	talks, _, err := s.savedTalks(ctx, userID)
	if err != nil {
		return nil, err
	}

	rel := s.detect(SourceAdd, talks)
	byID := make(map[string]models.Talk, len(talks))
	for _, t := range talks {
		byID[t.ID] = t
	}
	with := rel.ConflictsFor(talkID)
	overlapping := make([]models.Talk, 0, len(with))
	for _, id := range with {
		overlapping = append(overlapping, byID[id])
	}

	telemetry.ScheduleChangesTotal.WithLabelValues("add").Inc()
	s.publish(events.EventScheduleAdded, events.Payload{
		"user_id":   userID,
		"talk_id":   talkID,
		"conflicts": len(overlapping),
	})
	s.logger.Info().
		Str("user_id", userID).
		Str("talk_id", talkID).
		Int("conflicts", len(overlapping)).
		Msg("schedule item added")

	return overlapping, nil
}

// Remove drops a talk from the schedule. Removing a talk that is not saved
// succeeds.
func (s *Service) Remove(ctx context.Context, userID, talkID string) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND talk_id = ?", userID, talkID).
		Delete(&models.UserSchedule{})
	if res.Error != nil {
		return fmt.Errorf("remove schedule entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	telemetry.ScheduleChangesTotal.WithLabelValues("remove").Inc()
	s.publish(events.EventScheduleRemoved, events.Payload{
		"user_id": userID,
		"talk_id": talkID,
	})
	s.logger.Info().Str("user_id", userID).Str("talk_id", talkID).Msg("schedule item removed")
	return nil
}

// IsInSchedule reports whether the user saved the talk.
func (s *Service) IsInSchedule(ctx context.Context, userID, talkID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.UserSchedule{}).
		Where("user_id = ? AND talk_id = ?", userID, talkID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check schedule: %w", err)
	}
	return count > 0, nil
}

func (s *Service) detect(source string, talks []models.Talk) *conflict.Relation {
	rel := conflict.Find(models.ConflictItems(talks))
	telemetry.ConflictChecksTotal.WithLabelValues(source).Inc()
	telemetry.ConflictPairsFound.WithLabelValues(source).Observe(float64(rel.Len()))
	if invalid := rel.Invalid(); len(invalid) > 0 {
		s.logger.Warn().Strs("talk_ids", invalid).Msg("talks with empty or inverted time range skipped in conflict check")
	}
	return rel
}

func (s *Service) publish(eventType events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(eventType, payload)
	}
}

func sortByStart(talks []models.Talk) {
	sort.SliceStable(talks, func(i, j int) bool {
		if !talks[i].StartsAt.Equal(talks[j].StartsAt) {
			return talks[i].StartsAt.Before(talks[j].StartsAt)
		}
		return talks[i].ID < talks[j].ID
	})
}
