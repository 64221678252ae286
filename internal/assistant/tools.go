/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/confplanner/internal/catalog"
	"github.com/friendsincode/confplanner/internal/models"
	"github.com/friendsincode/confplanner/internal/planner"
)

// Tool names exposed to the agents.
const (
	ToolSearchTalks     = "searchTalks"
	ToolGetTalkDetails  = "getTalkDetails"
	ToolCheckConflicts  = "checkConflicts"
	ToolGetTracks       = "getTracks"
	ToolGetUserSchedule = "getUserSchedule"
)

// toolFunc runs a tool and returns its JSON-encodable output plus an item
// count for tracing.
type toolFunc func(ctx context.Context, input json.RawMessage) (any, int, error)

type tool struct {
	spec ToolSpec
	run  toolFunc
}

var emptySchema = map[string]any{"type": "object", "properties": map[string]any{}}

// toolbox builds tool implementations over the catalog and planner.
type toolbox struct {
	catalog *catalog.Service
	planner *planner.Service
	loc     *time.Location
}

func (tb *toolbox) clock(t time.Time) string {
	return t.In(tb.loc).Format("3:04 PM")
}

func (tb *toolbox) searchTalks() tool {
	return tool{
		spec: ToolSpec{
			Name:        ToolSearchTalks,
			Description: "Search for conference talks by topic, speaker name, or keywords. Returns matching talks with details.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":   map[string]any{"type": "string", "description": "Search query (topic, keyword, or speaker name)"},
					"trackId": map[string]any{"type": "string", "description": "Filter by track ID (ai, perf, fullstack, dx, platform)"},
					"level":   map[string]any{"type": "string", "enum": []string{"beginner", "intermediate", "advanced"}, "description": "Filter by difficulty level"},
					"format":  map[string]any{"type": "string", "enum": []string{"talk", "workshop", "keynote", "panel"}, "description": "Filter by talk format"},
				},
				"required": []string{"query"},
			},
		},
		run: func(ctx context.Context, raw json.RawMessage) (any, int, error) {
			var in struct {
				Query   string `json:"query"`
				TrackID string `json:"trackId"`
				Level   string `json:"level"`
				Format  string `json:"format"`
			}
			if err := decodeInput(raw, &in); err != nil {
				return nil, 0, err
			}
			talks, err := tb.catalog.SearchTalks(ctx, catalog.Filter{
				Query:   in.Query,
				TrackID: in.TrackID,
				Level:   models.TalkLevel(in.Level),
				Format:  models.TalkFormat(in.Format),
			})
			if err != nil {
				return nil, 0, err
			}

			type result struct {
				ID             string `json:"id"`
				Title          string `json:"title"`
				Description    string `json:"description"`
				StartTime      string `json:"startTime"`
				EndTime        string `json:"endTime"`
				Level          string `json:"level"`
				Format         string `json:"format"`
				Speaker        string `json:"speaker"`
				SpeakerCompany string `json:"speakerCompany"`
				Track          string `json:"track"`
				TrackID        string `json:"trackId"`
				Room           string `json:"room"`
			}
			out := make([]result, 0, len(talks))
			for _, t := range talks {
				r := result{
					ID:          t.ID,
					Title:       t.Title,
					Description: t.Description,
					StartTime:   tb.clock(t.StartsAt),
					EndTime:     tb.clock(t.EndsAt),
					Level:       string(t.Level),
					Format:      string(t.Format),
					TrackID:     t.TrackID,
				}
				if t.Speaker != nil {
					r.Speaker = t.Speaker.Name
					r.SpeakerCompany = t.Speaker.Company
				}
				if t.Track != nil {
					r.Track = t.Track.Name
				}
				if t.Room != nil {
					r.Room = t.Room.Name
				}
				out = append(out, r)
			}
			return out, len(out), nil
		},
	}
}

func (tb *toolbox) getTalkDetails() tool {
	return tool{
		spec: ToolSpec{
			Name:        ToolGetTalkDetails,
			Description: "Get complete details of a specific talk including speaker bio and track info.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"talkId": map[string]any{"type": "string", "description": "The ID of the talk to get details for"},
				},
				"required": []string{"talkId"},
			},
		},
		run: func(ctx context.Context, raw json.RawMessage) (any, int, error) {
			var in struct {
				TalkID string `json:"talkId"`
			}
			if err := decodeInput(raw, &in); err != nil {
				return nil, 0, err
			}
			t, err := tb.catalog.GetTalk(ctx, in.TalkID)
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, 0, nil
			}
			if err != nil {
				return nil, 0, err
			}

			type speaker struct {
				Name    string `json:"name"`
				Bio     string `json:"bio"`
				Company string `json:"company"`
				Role    string `json:"role"`
			}
			type track struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			out := struct {
				ID          string   `json:"id"`
				Title       string   `json:"title"`
				Description string   `json:"description"`
				StartTime   string   `json:"startTime"`
				EndTime     string   `json:"endTime"`
				Level       string   `json:"level"`
				Format      string   `json:"format"`
				Speaker     *speaker `json:"speaker"`
				Track       *track   `json:"track"`
				Room        string   `json:"room"`
			}{
				ID:          t.ID,
				Title:       t.Title,
				Description: t.Description,
				StartTime:   tb.clock(t.StartsAt),
				EndTime:     tb.clock(t.EndsAt),
				Level:       string(t.Level),
				Format:      string(t.Format),
			}
			if t.Speaker != nil {
				out.Speaker = &speaker{Name: t.Speaker.Name, Bio: t.Speaker.Bio, Company: t.Speaker.Company, Role: t.Speaker.Role}
			}
			if t.Track != nil {
				out.Track = &track{Name: t.Track.Name, Description: t.Track.Description}
			}
			if t.Room != nil {
				out.Room = t.Room.Name
			}
			return out, 1, nil
		},
	}
}

func (tb *toolbox) checkConflicts() tool {
	return tool{
		spec: ToolSpec{
			Name:        ToolCheckConflicts,
			Description: "Check if a list of talks have any time conflicts (overlapping schedules).",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"talkIds": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Array of talk IDs to check for conflicts",
					},
				},
				"required": []string{"talkIds"},
			},
		},
		run: func(ctx context.Context, raw json.RawMessage) (any, int, error) {
			var in struct {
				TalkIDs []string `json:"talkIds"`
			}
			if err := decodeInput(raw, &in); err != nil {
				return nil, 0, err
			}
			report, err := tb.planner.CheckConflicts(ctx, in.TalkIDs)
			if err != nil {
				return nil, 0, err
			}
			return report, len(report.Conflicts), nil
		},
	}
}

func (tb *toolbox) getTracks() tool {
	return tool{
		spec: ToolSpec{
			Name:        ToolGetTracks,
			Description: "Get all available conference tracks with their descriptions.",
			InputSchema: emptySchema,
		},
		run: func(ctx context.Context, _ json.RawMessage) (any, int, error) {
			tracks, err := tb.catalog.ListTracks(ctx)
			if err != nil {
				return nil, 0, err
			}
			return tracks, len(tracks), nil
		},
	}
}

func (tb *toolbox) getUserSchedule(userID string) tool {
	return tool{
		spec: ToolSpec{
			Name:        ToolGetUserSchedule,
			Description: "Get the user's currently saved schedule.",
			InputSchema: emptySchema,
		},
		run: func(ctx context.Context, _ json.RawMessage) (any, int, error) {
			sched, err := tb.planner.GetUserSchedule(ctx, userID)
			if err != nil {
				return nil, 0, err
			}

			type item struct {
				TalkID        string   `json:"talkId"`
				Title         string   `json:"title"`
				StartTime     string   `json:"startTime"`
				EndTime       string   `json:"endTime"`
				Track         string   `json:"track"`
				Room          string   `json:"room"`
				ConflictsWith []string `json:"conflictsWith,omitempty"`
			}
			out := make([]item, 0, len(sched.Entries))
			for _, e := range sched.Entries {
				it := item{
					TalkID:        e.Talk.ID,
					Title:         e.Talk.Title,
					StartTime:     tb.clock(e.Talk.StartsAt),
					EndTime:       tb.clock(e.Talk.EndsAt),
					ConflictsWith: e.ConflictsWith,
				}
				if e.Talk.Track != nil {
					it.Track = e.Talk.Track.Name
				}
				if e.Talk.Room != nil {
					it.Room = e.Talk.Room.Name
				}
				out = append(out, it)
			}
			return out, len(out), nil
		},
	}
}

func decodeInput(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}
