/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/confplanner/internal/models"
)

const routerSystemPrompt = `You are a routing agent for a conference schedule assistant.
Analyze the user's message and determine which specialized agent should handle it.

Choose "search" for:
- Searching for talks by topic, speaker, or keywords
- Getting recommendations based on interests
- Finding workshops, keynotes, or specific talk formats
- Checking for schedule conflicts
- Complex queries requiring reasoning about talks

Choose "info" for:
- Listing available tracks
- Viewing the user's current schedule
- Simple factual questions about the conference

Respond with ONLY the agent name: "search" or "info"`

// Conference describes the event for the agent prompts.
type Conference struct {
	Name     string
	Location string
	Date     time.Time
	Tracks   []models.Track
}

func searchSystemPrompt(c Conference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a search specialist for %s.\n", c.Name)
	b.WriteString("Your job is to find relevant talks and make recommendations.\n\n")
	if !c.Date.IsZero() {
		fmt.Fprintf(&b, "The conference is on %s", c.Date.Format("January 2, 2006"))
		if c.Location != "" {
			fmt.Fprintf(&b, " in %s", c.Location)
		}
		b.WriteString(". It's a single-day event.\n\n")
	}
	writeTracks(&b, c.Tracks, true)
	b.WriteString(`When helping users:
1. Use searchTalks to find relevant sessions
2. Use getTalkDetails for more information on specific talks
3. Use checkConflicts before recommending multiple sessions
4. Explain why you're recommending each talk

Be concise but helpful.`)
	return b.String()
}

func infoSystemPrompt(c Conference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an info assistant for %s.\n", c.Name)
	b.WriteString("Your job is to provide quick information about tracks and the user's schedule.\n\n")
	writeTracks(&b, c.Tracks, false)
	b.WriteString("Use the tools to fetch the requested information and present it clearly.")
	return b.String()
}

func writeTracks(b *strings.Builder, tracks []models.Track, withDescription bool) {
	if len(tracks) == 0 {
		return
	}
	b.WriteString("Available tracks:\n")
	for _, t := range tracks {
		fmt.Fprintf(b, "- %s (id: %s)", t.Name, t.ID)
		if withDescription && t.Description != "" {
			fmt.Fprintf(b, ": %s", t.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
