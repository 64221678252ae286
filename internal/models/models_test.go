package models

import (
	"testing"
	"time"
)

func TestNormalizeRole(t *testing.T) {
	cases := map[string]RoleName{
		"organizer": RoleOrganizer,
		" Admin ":   RoleOrganizer,
		"attendee":  RoleAttendee,
		"":          RoleAttendee,
		"superuser": RoleAttendee,
	}
	for in, want := range cases {
		if got := NormalizeRole(in); got != want {
			t.Fatalf("NormalizeRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTalkConflictItemUsesUnixSeconds(t *testing.T) {
	start := time.Date(2025, 10, 22, 9, 0, 0, 0, time.UTC)
	talk := Talk{ID: "keynote", StartsAt: start, EndsAt: start.Add(25 * time.Minute)}

	item := talk.ConflictItem()
	if item.ID != "keynote" || item.Start != start.Unix() || item.End-item.Start != 1500 {
		t.Fatalf("unexpected item %+v", item)
	}
	if talk.Duration() != 25*time.Minute {
		t.Fatalf("unexpected duration %s", talk.Duration())
	}
}

func TestLevelAndFormatValidation(t *testing.T) {
	if !LevelAdvanced.Valid() || TalkLevel("expert").Valid() {
		t.Fatal("level validation mismatch")
	}
	if !FormatPanel.Valid() || TalkFormat("lightning").Valid() {
		t.Fatal("format validation mismatch")
	}
	if !ValidScore(1) || !ValidScore(5) || ValidScore(0) || ValidScore(6) {
		t.Fatal("score validation mismatch")
	}
}

func TestAPIKeyValidity(t *testing.T) {
	now := time.Now()
	key := APIKey{ExpiresAt: now.Add(time.Hour)}
	if !key.IsValid() {
		t.Fatal("fresh key should be valid")
	}
	key.RevokedAt = &now
	if key.IsValid() {
		t.Fatal("revoked key should be invalid")
	}
	expired := APIKey{ExpiresAt: now.Add(-time.Minute)}
	if !expired.IsExpired() {
		t.Fatal("expected expired key")
	}
}
