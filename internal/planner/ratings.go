/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/models"
)

// ErrInvalidScore is returned for scores outside the rating range.
var ErrInvalidScore = fmt.Errorf("score must be between %d and %d", models.MinRatingScore, models.MaxRatingScore)

// MaxCommentLength bounds rating comments, in runes.
const MaxCommentLength = 2000

// RatingSummary aggregates the ratings of one talk.
type RatingSummary struct {
	TalkID  string  `json:"talk_id"`
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// Rate records or replaces the user's rating for a talk.
func (s *Service) Rate(ctx context.Context, userID, talkID string, score int, comment string) (*models.Rating, error) {
	if !models.ValidScore(score) {
		return nil, ErrInvalidScore
	}
	comment = strings.TrimSpace(comment)
	if r := []rune(comment); len(r) > MaxCommentLength {
		comment = string(r[:MaxCommentLength])
	}

	var talk models.Talk
	err := s.db.WithContext(ctx).Select("id").First(&talk, "id = ?", talkID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTalkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load talk: %w", err)
	}

	rating := &models.Rating{UserID: userID, TalkID: talkID, Score: score, Comment: comment}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "talk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "comment", "updated_at"}),
	}).Create(rating).Error
	if err != nil {
		return nil, fmt.Errorf("save rating: %w", err)
	}

	s.publish(events.EventRatingSubmitted, events.Payload{
		"user_id": userID,
		"talk_id": talkID,
		"score":   score,
	})
	return rating, nil
}

// Ratings summarizes the ratings of a talk. Unknown talks have no ratings.
func (s *Service) Ratings(ctx context.Context, talkID string) (*RatingSummary, error) {
	var row struct {
		Average float64
		Count   int64
	}
	err := s.db.WithContext(ctx).Model(&models.Rating{}).
		Select("COALESCE(AVG(score), 0) AS average, COUNT(*) AS count").
		Where("talk_id = ?", talkID).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("summarize ratings: %w", err)
	}
	return &RatingSummary{TalkID: talkID, Average: row.Average, Count: row.Count}, nil
}

// UserRating returns the user's own rating, or nil if there is none.
func (s *Service) UserRating(ctx context.Context, userID, talkID string) (*models.Rating, error) {
	var rating models.Rating
	err := s.db.WithContext(ctx).First(&rating, "user_id = ? AND talk_id = ?", userID, talkID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rating, nil
}
