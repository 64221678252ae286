/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/confplanner/internal/models"
)

// TalkRef identifies a talk in a conflict report.
type TalkRef struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// ConflictPair is two overlapping talks.
type ConflictPair struct {
	Talk1 TalkRef `json:"talk1"`
	Talk2 TalkRef `json:"talk2"`
}

// ConflictReport answers whether a set of talks can all be attended.
type ConflictReport struct {
	Conflicts    []ConflictPair `json:"conflicts"`
	Talks        []TalkRef      `json:"talks"`
	HasConflicts bool           `json:"has_conflicts"`
	Message      string         `json:"message"`
}

// ConflictMessage renders the summary line for n conflicting pairs.
func ConflictMessage(n int) string {
	if n == 0 {
		return "No conflicts found - all talks can be attended."
	}
	return fmt.Sprintf("Found %d conflict(s) between talks.", n)
}

// CheckConflicts reports overlaps among arbitrary candidate talks. Unknown
// and repeated ids are ignored.
func (s *Service) CheckConflicts(ctx context.Context, talkIDs []string) (*ConflictReport, error) {
	report := &ConflictReport{
		Conflicts: []ConflictPair{},
		Talks:     []TalkRef{},
		Message:   ConflictMessage(0),
	}
	if len(talkIDs) == 0 {
		return report, nil
	}

	talks, err := s.catalog.TalksByIDs(ctx, talkIDs)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]TalkRef, len(talks))
	for _, t := range talks {
		ref := refOf(t)
		refs[t.ID] = ref
		report.Talks = append(report.Talks, ref)
	}

	rel := s.detect(SourceCheck, talks)
	for _, p := range rel.Pairs() {
		report.Conflicts = append(report.Conflicts, ConflictPair{Talk1: refs[p.A], Talk2: refs[p.B]})
	}
	report.HasConflicts = len(report.Conflicts) > 0
	report.Message = ConflictMessage(len(report.Conflicts))
	return report, nil
}

func refOf(t models.Talk) TalkRef {
	return TalkRef{ID: t.ID, Title: t.Title, StartsAt: t.StartsAt, EndsAt: t.EndsAt}
}
