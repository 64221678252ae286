/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"context"

	"github.com/friendsincode/confplanner/internal/models"
)

// GetTalkList retrieves the cached full talk list.
func (c *Cache) GetTalkList(ctx context.Context) ([]models.Talk, bool) {
	var talks []models.Talk
	if !c.get(ctx, "talk_list", KeyTalkList, &talks) {
		return nil, false
	}
	return talks, true
}

// SetTalkList stores the full talk list.
func (c *Cache) SetTalkList(ctx context.Context, talks []models.Talk) error {
	return c.set(ctx, KeyTalkList, talks, c.config.CatalogTTL)
}

// GetTrackList retrieves the cached track list.
func (c *Cache) GetTrackList(ctx context.Context) ([]models.Track, bool) {
	var tracks []models.Track
	if !c.get(ctx, "track_list", KeyTrackList, &tracks) {
		return nil, false
	}
	return tracks, true
}

// SetTrackList stores the track list.
func (c *Cache) SetTrackList(ctx context.Context, tracks []models.Track) error {
	return c.set(ctx, KeyTrackList, tracks, c.config.CatalogTTL)
}

// GetSpeakerList retrieves the cached speaker list.
func (c *Cache) GetSpeakerList(ctx context.Context) ([]models.Speaker, bool) {
	var speakers []models.Speaker
	if !c.get(ctx, "speaker_list", KeySpeakerList, &speakers) {
		return nil, false
	}
	return speakers, true
}

// SetSpeakerList stores the speaker list.
func (c *Cache) SetSpeakerList(ctx context.Context, speakers []models.Speaker) error {
	return c.set(ctx, KeySpeakerList, speakers, c.config.CatalogTTL)
}

// GetTalk retrieves one cached talk with its associations.
func (c *Cache) GetTalk(ctx context.Context, id string) (*models.Talk, bool) {
	var talk models.Talk
	if !c.get(ctx, "talk", KeyTalk+id, &talk) {
		return nil, false
	}
	return &talk, true
}

// SetTalk stores one talk.
func (c *Cache) SetTalk(ctx context.Context, talk *models.Talk) error {
	return c.set(ctx, KeyTalk+talk.ID, talk, c.config.TalkTTL)
}

// GetSpeaker retrieves one cached speaker with talks.
func (c *Cache) GetSpeaker(ctx context.Context, id string) (*models.Speaker, bool) {
	var speaker models.Speaker
	if !c.get(ctx, "speaker", KeySpeaker+id, &speaker) {
		return nil, false
	}
	return &speaker, true
}

// SetSpeaker stores one speaker.
func (c *Cache) SetSpeaker(ctx context.Context, speaker *models.Speaker) error {
	return c.set(ctx, KeySpeaker+speaker.ID, speaker, c.config.TalkTTL)
}

// InvalidateCatalog drops every cached catalog entry.
func (c *Cache) InvalidateCatalog(ctx context.Context) error {
	if err := c.deletePattern(ctx, keyRoot+"*"); err != nil {
		return err
	}
	c.logger.Debug().Msg("catalog cache invalidated")
	return nil
}
