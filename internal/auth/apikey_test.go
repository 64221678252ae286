package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/confplanner/internal/models"
)

func TestGenerateAPIKey_Format(t *testing.T) {
	plaintext, key, err := GenerateAPIKey("u1", "laptop", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(plaintext, APIKeyPrefix) {
		t.Fatalf("expected %q prefix, got %q", APIKeyPrefix, plaintext)
	}
	if len(plaintext) != len(APIKeyPrefix)+2*APIKeyRandomBytes {
		t.Fatalf("unexpected key length %d", len(plaintext))
	}
	if key.KeyHash == plaintext || key.KeyHash != hashAPIKey(plaintext) {
		t.Fatalf("expected stored hash of plaintext key")
	}
	if !strings.HasPrefix(plaintext, key.KeyPrefix) || len(key.KeyPrefix) != 11 {
		t.Fatalf("unexpected display prefix %q", key.KeyPrefix)
	}
}

func TestValidAPIKeyExpiration(t *testing.T) {
	for _, d := range APIKeyExpirationDays {
		if !ValidAPIKeyExpiration(d) {
			t.Fatalf("expected %d days to be valid", d)
		}
	}
	if ValidAPIKeyExpiration(7) {
		t.Fatalf("expected 7 days to be rejected")
	}
	if !ValidAPIKeyExpiration(DefaultAPIKeyExpirationDays) {
		t.Fatalf("default expiration must be accepted")
	}
}

func TestValidateAPIKey_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "22222222-2222-2222-2222-222222222222", "org@example.com", models.RoleOrganizer)

	plaintext, key, err := GenerateAPIKey(user.ID, "ci", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := db.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}

	claims, err := ValidateAPIKey(db, plaintext)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if claims.UserID != user.ID || !claims.HasRole("organizer") {
		t.Fatalf("unexpected claims %+v", claims)
	}

	var stored models.APIKey
	if err := db.First(&stored, "id = ?", key.ID).Error; err != nil {
		t.Fatalf("reload key: %v", err)
	}
	if stored.LastUsedAt == nil {
		t.Fatalf("expected last_used_at to be recorded")
	}

	keys, err := ListAPIKeys(db, user.ID)
	if err != nil || len(keys) != 1 {
		t.Fatalf("ListAPIKeys: %v (%d keys)", err, len(keys))
	}

	if err := RevokeAPIKey(db, key.ID, "someone-else"); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Fatalf("expected ErrAPIKeyNotFound for foreign revoke, got %v", err)
	}
	if err := RevokeAPIKey(db, key.ID, user.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if _, err := ValidateAPIKey(db, plaintext); !errors.Is(err, ErrAPIKeyRevoked) {
		t.Fatalf("expected ErrAPIKeyRevoked, got %v", err)
	}

	if err := DeleteAPIKey(db, key.ID, user.ID); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if _, err := ValidateAPIKey(db, plaintext); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Fatalf("expected ErrAPIKeyNotFound after delete, got %v", err)
	}
}

func TestValidateAPIKey_Expired(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "33333333-3333-3333-3333-333333333333", "old@example.com", models.RoleAttendee)

	plaintext, key, err := GenerateAPIKey(user.ID, "stale", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := db.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}
	if _, err := ValidateAPIKey(db, plaintext); !errors.Is(err, ErrAPIKeyExpired) {
		t.Fatalf("expected ErrAPIKeyExpired, got %v", err)
	}
}

func TestValidateAPIKey_RejectsWrongPrefix(t *testing.T) {
	if _, err := ValidateAPIKey(nil, "gr_deadbeef"); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Fatalf("expected ErrAPIKeyNotFound, got %v", err)
	}
}
