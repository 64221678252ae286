/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package seed loads conference data from YAML and writes it to the database.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/confplanner/internal/conflict"
	"github.com/friendsincode/confplanner/internal/models"
)

//go:embed conference.yaml
var defaultConference []byte

// localTimeLayout is used for times without an explicit offset.
const localTimeLayout = "2006-01-02T15:04:05"

// File is the on-disk layout of a conference data file.
type File struct {
	Conference struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"conference"`
	Tracks   []models.Track `yaml:"tracks"`
	Rooms    []models.Room  `yaml:"rooms"`
	Speakers []SpeakerSpec  `yaml:"speakers"`
	Talks    []TalkSpec     `yaml:"talks"`
}

// SpeakerSpec is one speaker entry.
type SpeakerSpec struct {
	ID      string  `yaml:"id"`
	Name    string  `yaml:"name"`
	Bio     string  `yaml:"bio"`
	Avatar  string  `yaml:"avatar"`
	Company string  `yaml:"company"`
	Role    string  `yaml:"role"`
	Twitter *string `yaml:"twitter"`
}

// TalkSpec is one talk entry. Times are RFC 3339 or local to the
// conference timezone.
type TalkSpec struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Speaker     string `yaml:"speaker"`
	Track       string `yaml:"track"`
	Room        string `yaml:"room"`
	StartsAt    string `yaml:"starts_at"`
	EndsAt      string `yaml:"ends_at"`
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
}

// Data is validated conference data ready to store.
type Data struct {
	Name     string
	Location *time.Location
	Tracks   []models.Track
	Rooms    []models.Room
	Speakers []models.Speaker
	Talks    []models.Talk
}

// Default returns the built-in conference data.
func Default() (*Data, error) {
	return Load(bytes.NewReader(defaultConference))
}

// LoadFile reads conference data from path.
func LoadFile(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates conference data.
func Load(r io.Reader) (*Data, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode conference data: %w", err)
	}
	return file.build()
}

func (f *File) build() (*Data, error) {
	tz := f.Conference.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("conference timezone %q: %w", tz, err)
	}

	data := &Data{Name: f.Conference.Name, Location: loc, Tracks: f.Tracks, Rooms: f.Rooms}

	tracks, err := uniqueIDs("track", len(f.Tracks), func(i int) string { return f.Tracks[i].ID })
	if err != nil {
		return nil, err
	}
	rooms, err := uniqueIDs("room", len(f.Rooms), func(i int) string { return f.Rooms[i].ID })
	if err != nil {
		return nil, err
	}
	speakers, err := uniqueIDs("speaker", len(f.Speakers), func(i int) string { return f.Speakers[i].ID })
	if err != nil {
		return nil, err
	}
	if _, err := uniqueIDs("talk", len(f.Talks), func(i int) string { return f.Talks[i].ID }); err != nil {
		return nil, err
	}

	for _, s := range f.Speakers {
		if s.Name == "" {
			return nil, fmt.Errorf("speaker %q: name is required", s.ID)
		}
		data.Speakers = append(data.Speakers, models.Speaker{
			ID:      s.ID,
			Name:    s.Name,
			Bio:     s.Bio,
			Avatar:  s.Avatar,
			Company: s.Company,
			Role:    s.Role,
			Twitter: s.Twitter,
		})
	}

	for _, t := range f.Talks {
		talk, err := t.build(loc)
		if err != nil {
			return nil, fmt.Errorf("talk %q: %w", t.ID, err)
		}
		if !speakers[talk.SpeakerID] {
			return nil, fmt.Errorf("talk %q: unknown speaker %q", t.ID, talk.SpeakerID)
		}
		if !tracks[talk.TrackID] {
			return nil, fmt.Errorf("talk %q: unknown track %q", t.ID, talk.TrackID)
		}
		if !rooms[talk.RoomID] {
			return nil, fmt.Errorf("talk %q: unknown room %q", t.ID, talk.RoomID)
		}
		data.Talks = append(data.Talks, talk)
	}

	if err := conflict.Validate(models.ConflictItems(data.Talks)); err != nil {
		return nil, err
	}
	return data, nil
}

func (t TalkSpec) build(loc *time.Location) (models.Talk, error) {
	if t.Title == "" {
		return models.Talk{}, errors.New("title is required")
	}
	start, err := parseTime(t.StartsAt, loc)
	if err != nil {
		return models.Talk{}, fmt.Errorf("starts_at: %w", err)
	}
	end, err := parseTime(t.EndsAt, loc)
	if err != nil {
		return models.Talk{}, fmt.Errorf("ends_at: %w", err)
	}

	level := models.TalkLevel(t.Level)
	if !level.Valid() {
		return models.Talk{}, fmt.Errorf("unknown level %q", t.Level)
	}
	format := models.TalkFormat(t.Format)
	if !format.Valid() {
		return models.Talk{}, fmt.Errorf("unknown format %q", t.Format)
	}

	return models.Talk{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		SpeakerID:   t.Speaker,
		TrackID:     t.Track,
		RoomID:      t.Room,
		StartsAt:    start,
		EndsAt:      end,
		Level:       level,
		Format:      format,
	}, nil
}

func parseTime(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("missing time")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(localTimeLayout, value, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func uniqueIDs(kind string, n int, id func(int) string) (map[string]bool, error) {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if v == "" {
			return nil, fmt.Errorf("%s #%d: id is required", kind, i+1)
		}
		if seen[v] {
			return nil, fmt.Errorf("duplicate %s id %q", kind, v)
		}
		seen[v] = true
	}
	return seen, nil
}

// Result summarizes an Apply run.
type Result struct {
	Tracks          int `json:"tracks"`
	Rooms           int `json:"rooms"`
	Speakers        int `json:"speakers"`
	Talks           int `json:"talks"`
	OrphanSchedules int `json:"orphan_schedules"`
	OrphanRatings   int `json:"orphan_ratings"`
}

// Apply upserts the conference data in one transaction and removes rows the
// data no longer names. Saved schedule entries and ratings for removed talks
// go first so foreign keys hold on every backend.
func Apply(ctx context.Context, db *gorm.DB, data *Data) (*Result, error) {
	res := &Result{
		Tracks:   len(data.Tracks),
		Rooms:    len(data.Rooms),
		Speakers: len(data.Speakers),
		Talks:    len(data.Talks),
	}

	talkIDs := make([]string, len(data.Talks))
	for i, t := range data.Talks {
		talkIDs[i] = t.ID
	}
	speakerIDs := make([]string, len(data.Speakers))
	for i, s := range data.Speakers {
		speakerIDs[i] = s.ID
	}
	trackIDs := make([]string, len(data.Tracks))
	for i, t := range data.Tracks {
		trackIDs[i] = t.ID
	}
	roomIDs := make([]string, len(data.Rooms))
	for i, r := range data.Rooms {
		roomIDs[i] = r.ID
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true}).Session(&gorm.Session{})
		if len(data.Tracks) > 0 {
			if err := upsert.Create(&data.Tracks).Error; err != nil {
				return fmt.Errorf("upsert tracks: %w", err)
			}
		}
		if len(data.Rooms) > 0 {
			if err := upsert.Create(&data.Rooms).Error; err != nil {
				return fmt.Errorf("upsert rooms: %w", err)
			}
		}
		if len(data.Speakers) > 0 {
			if err := upsert.Omit("Talks").Create(&data.Speakers).Error; err != nil {
				return fmt.Errorf("upsert speakers: %w", err)
			}
		}
		if len(data.Talks) > 0 {
			if err := upsert.Omit("Speaker", "Track", "Room").Create(&data.Talks).Error; err != nil {
				return fmt.Errorf("upsert talks: %w", err)
			}
		}

		n, err := deleteMissing(tx, &models.UserSchedule{}, "talk_id", talkIDs)
		if err != nil {
			return fmt.Errorf("remove orphan schedule entries: %w", err)
		}
		res.OrphanSchedules = int(n)

		n, err = deleteMissing(tx, &models.Rating{}, "talk_id", talkIDs)
		if err != nil {
			return fmt.Errorf("remove orphan ratings: %w", err)
		}
		res.OrphanRatings = int(n)

		if _, err := deleteMissing(tx, &models.Talk{}, "id", talkIDs); err != nil {
			return fmt.Errorf("remove talks: %w", err)
		}
		if _, err := deleteMissing(tx, &models.Speaker{}, "id", speakerIDs); err != nil {
			return fmt.Errorf("remove speakers: %w", err)
		}
		if _, err := deleteMissing(tx, &models.Track{}, "id", trackIDs); err != nil {
			return fmt.Errorf("remove tracks: %w", err)
		}
		if _, err := deleteMissing(tx, &models.Room{}, "id", roomIDs); err != nil {
			return fmt.Errorf("remove rooms: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// deleteMissing removes rows of model whose column is not in keep. An empty
// keep list removes every row.
func deleteMissing(tx *gorm.DB, model any, column string, keep []string) (int64, error) {
	q := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	if len(keep) > 0 {
		q = q.Where(column+" NOT IN ?", keep)
	}
	res := q.Delete(model)
	return res.RowsAffected, res.Error
}
