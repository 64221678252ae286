/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package export renders personal schedules as iCalendar files.
package export

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/friendsincode/confplanner/internal/planner"
)

// ContentType is the MIME type of rendered calendars.
const ContentType = "text/calendar; charset=utf-8"

// CategoryConflict marks events that overlap another saved talk.
const CategoryConflict = "Conflict"

// Options describes the calendar being exported.
type Options struct {
	ConferenceName string
	Timezone       string
	// BaseURL links each event back to its talk page when set.
	BaseURL string
	Now     time.Time
}

// ICalResult contains the iCal export data.
type ICalResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Schedule renders the saved talks of one schedule.
func Schedule(sched *planner.Schedule, opts Options) *ICalResult {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	stamp := opts.Now.UTC()

	cal := ics.NewCalendar()
	cal.SetProductId("-//Friends Incode//confplanner//EN")
	cal.SetMethod(ics.MethodPublish)
	cal.SetCalscale("GREGORIAN")
	name := strings.TrimSpace(opts.ConferenceName + " - My Schedule")
	cal.SetName(name)
	cal.SetXWRCalName(name)
	if opts.Timezone != "" {
		cal.SetXWRTimezone(opts.Timezone)
	}

	titles := make(map[string]string, len(sched.Entries))
	for _, e := range sched.Entries {
		titles[e.Talk.ID] = e.Talk.Title
	}

	for _, e := range sched.Entries {
		talk := e.Talk
		event := cal.AddEvent(talk.ID + "@confplanner")
		event.SetDtStampTime(stamp)
		event.SetStartAt(talk.StartsAt.UTC())
		event.SetEndAt(talk.EndsAt.UTC())
		event.SetSummary(talk.Title)
		event.SetStatus(ics.ObjectStatusConfirmed)

		if talk.Room != nil {
			event.SetLocation(talk.Room.Name)
		}

		var desc strings.Builder
		if talk.Speaker != nil {
			fmt.Fprintf(&desc, "Speaker: %s", talk.Speaker.Name)
			if talk.Speaker.Company != "" {
				fmt.Fprintf(&desc, " (%s)", talk.Speaker.Company)
			}
			desc.WriteString("\n\n")
		}
		desc.WriteString(talk.Description)
		if len(e.ConflictsWith) > 0 {
			names := make([]string, len(e.ConflictsWith))
			for i, id := range e.ConflictsWith {
				names[i] = titles[id]
			}
			fmt.Fprintf(&desc, "\n\nOverlaps with: %s", strings.Join(names, "; "))
		}
		event.SetDescription(desc.String())

		categories := make([]string, 0, 2)
		if talk.Track != nil {
			categories = append(categories, talk.Track.Name)
		}
		if len(e.ConflictsWith) > 0 {
			categories = append(categories, CategoryConflict)
		}
		if len(categories) > 0 {
			event.AddProperty(ics.ComponentPropertyCategories, strings.Join(categories, ","))
		}

		if opts.BaseURL != "" {
			event.SetURL(strings.TrimRight(opts.BaseURL, "/") + "/talks/" + talk.ID)
		}
	}

	return &ICalResult{
		Data:        []byte(cal.Serialize()),
		Filename:    slugify(opts.ConferenceName) + "-my-schedule.ics",
		ContentType: ContentType,
	}
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "conference"
	}
	return result.String()
}
