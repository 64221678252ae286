/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog serves the read side of the conference: talks, tracks
// and speakers.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/confplanner/internal/cache"
	"github.com/friendsincode/confplanner/internal/models"
)

var (
	// ErrNotFound is returned for unknown talk or speaker ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidFilter is returned for unknown level or format values.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Filter narrows SearchTalks. Zero fields match everything.
type Filter struct {
	Query   string
	TrackID string
	Level   models.TalkLevel
	Format  models.TalkFormat
}

// Validate checks enumerated fields.
func (f Filter) Validate() error {
	if f.Level != "" && !f.Level.Valid() {
		return fmt.Errorf("%w: level %q", ErrInvalidFilter, f.Level)
	}
	if f.Format != "" && !f.Format.Valid() {
		return fmt.Errorf("%w: format %q", ErrInvalidFilter, f.Format)
	}
	return nil
}

// Empty reports whether the filter matches every talk.
func (f Filter) Empty() bool {
	return strings.TrimSpace(f.Query) == "" && f.TrackID == "" && f.Level == "" && f.Format == ""
}

// Service reads conference data. The cache is optional.
type Service struct {
	db     *gorm.DB
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewService creates a catalog service.
func NewService(db *gorm.DB, c *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  c,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

func withTalkAssociations(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Speaker").Preload("Track").Preload("Room")
}

// ListTalks returns every talk with speaker, track and room, ordered by start.
func (s *Service) ListTalks(ctx context.Context) ([]models.Talk, error) {
	if s.cache != nil {
		if talks, ok := s.cache.GetTalkList(ctx); ok {
			return talks, nil
		}
	}

	var talks []models.Talk
	err := withTalkAssociations(s.db.WithContext(ctx)).
		Order("starts_at ASC, id ASC").
		Find(&talks).Error
	if err != nil {
		return nil, fmt.Errorf("list talks: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetTalkList(ctx, talks); err != nil {
			s.logger.Debug().Err(err).Msg("cache talk list")
		}
	}
	return talks, nil
}

// GetTalk returns one talk with its associations.
func (s *Service) GetTalk(ctx context.Context, id string) (*models.Talk, error) {
	if s.cache != nil {
		if talk, ok := s.cache.GetTalk(ctx, id); ok {
			return talk, nil
		}
	}

	var talk models.Talk
	err := withTalkAssociations(s.db.WithContext(ctx)).First(&talk, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get talk: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetTalk(ctx, &talk)
	}
	return &talk, nil
}

// SearchTalks matches Query against title and description, case-insensitively,
// and applies the remaining filter fields exactly.
func (s *Service) SearchTalks(ctx context.Context, f Filter) ([]models.Talk, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Empty() {
		return s.ListTalks(ctx)
	}

	tx := withTalkAssociations(s.db.WithContext(ctx))
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + escapeLike(strings.ToLower(q)) + "%"
		tx = tx.Where("(LOWER(title) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!')", like, like)
	}
	if f.TrackID != "" {
		tx = tx.Where("track_id = ?", f.TrackID)
	}
	if f.Level != "" {
		tx = tx.Where("level = ?", f.Level)
	}
	if f.Format != "" {
		tx = tx.Where("format = ?", f.Format)
	}

	var talks []models.Talk
	if err := tx.Order("starts_at ASC, id ASC").Find(&talks).Error; err != nil {
		return nil, fmt.Errorf("search talks: %w", err)
	}
	return talks, nil
}

// TalksByIDs loads the given talks with associations. Unknown ids are
// skipped; the result follows the order of ids.
func (s *Service) TalksByIDs(ctx context.Context, ids []string) ([]models.Talk, error) {
	if len(ids) == 0 {
		return []models.Talk{}, nil
	}

	var found []models.Talk
	if err := withTalkAssociations(s.db.WithContext(ctx)).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("load talks: %w", err)
	}

	byID := make(map[string]models.Talk, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	talks := make([]models.Talk, 0, len(found))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			talks = append(talks, t)
		}
	}
	return talks, nil
}

// ListTracks returns all tracks ordered by name.
func (s *Service) ListTracks(ctx context.Context) ([]models.Track, error) {
	if s.cache != nil {
		if tracks, ok := s.cache.GetTrackList(ctx); ok {
			return tracks, nil
		}
	}

	var tracks []models.Track
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetTrackList(ctx, tracks)
	}
	return tracks, nil
}

// ListSpeakers returns all speakers ordered by name.
func (s *Service) ListSpeakers(ctx context.Context) ([]models.Speaker, error) {
	if s.cache != nil {
		if speakers, ok := s.cache.GetSpeakerList(ctx); ok {
			return speakers, nil
		}
	}

	var speakers []models.Speaker
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&speakers).Error; err != nil {
		return nil, fmt.Errorf("list speakers: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetSpeakerList(ctx, speakers)
	}
	return speakers, nil
}

// GetSpeaker returns a speaker with their talks ordered by start.
func (s *Service) GetSpeaker(ctx context.Context, id string) (*models.Speaker, error) {
	if s.cache != nil {
		if speaker, ok := s.cache.GetSpeaker(ctx, id); ok {
			return speaker, nil
		}
	}

	var speaker models.Speaker
	err := s.db.WithContext(ctx).
		Preload("Talks", func(tx *gorm.DB) *gorm.DB { return tx.Order("starts_at ASC") }).
		Preload("Talks.Track").
		Preload("Talks.Room").
		First(&speaker, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get speaker: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetSpeaker(ctx, &speaker)
	}
	return &speaker, nil
}

// SetSpeakerAvatar stores a new avatar URL and drops cached copies.
func (s *Service) SetSpeakerAvatar(ctx context.Context, id, avatarURL string) error {
	res := s.db.WithContext(ctx).Model(&models.Speaker{}).Where("id = ?", id).Update("avatar", avatarURL)
	if res.Error != nil {
		return fmt.Errorf("update avatar: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	// Talk lists embed the speaker, so the whole catalog goes.
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Debug().Err(err).Str("speaker_id", id).Msg("invalidate catalog cache")
	}
	return nil
}

// Invalidate drops every cached catalog entry.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateCatalog(ctx)
}

// Warm reloads the cached talk and track lists.
func (s *Service) Warm(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.InvalidateCatalog(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("invalidate before warm-up")
	}
	if _, err := s.ListTalks(ctx); err != nil {
		return err
	}
	if _, err := s.ListTracks(ctx); err != nil {
		return err
	}
	_, err := s.ListSpeakers(ctx)
	return err
}

// escapeLike escapes LIKE wildcards for use with ESCAPE '!'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
