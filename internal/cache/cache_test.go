package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/confplanner/internal/models"
)

func newTestCache(t *testing.T, l1Size int) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultConfig()
	cfg.L1Size = l1Size
	c, err := NewWithClient(client, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	return c, mr
}

func TestTalkListRoundTripThroughRedis(t *testing.T) {
	c, mr := newTestCache(t, 0)
	ctx := context.Background()

	if _, ok := c.GetTalkList(ctx); ok {
		t.Fatal("expected miss on empty cache")
	}

	start := time.Date(2025, 10, 22, 9, 0, 0, 0, time.UTC)
	talks := []models.Talk{{ID: "keynote", Title: "Opening Keynote", StartsAt: start, EndsAt: start.Add(time.Hour)}}
	if err := c.SetTalkList(ctx, talks); err != nil {
		t.Fatalf("SetTalkList: %v", err)
	}
	if !mr.Exists(KeyTalkList) {
		t.Fatal("expected talk list stored in redis")
	}
	if ttl := mr.TTL(KeyTalkList); ttl != DefaultCatalogTTL {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	got, ok := c.GetTalkList(ctx)
	if !ok || len(got) != 1 || got[0].ID != "keynote" || !got[0].StartsAt.Equal(start) {
		t.Fatalf("unexpected cached talks: %+v", got)
	}
}

func TestL1ServesWithoutRedis(t *testing.T) {
	c, mr := newTestCache(t, 16)
	ctx := context.Background()

	if err := c.SetTrackList(ctx, []models.Track{{ID: "ai", Name: "AI & Agents"}}); err != nil {
		t.Fatalf("SetTrackList: %v", err)
	}
	mr.FlushAll()

	tracks, ok := c.GetTrackList(ctx)
	if !ok || len(tracks) != 1 || tracks[0].ID != "ai" {
		t.Fatalf("expected L1 hit, got %v %v", tracks, ok)
	}
}

func TestL1EntriesExpire(t *testing.T) {
	c, mr := newTestCache(t, 16)
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.SetTalk(ctx, &models.Talk{ID: "t1"}); err != nil {
		t.Fatalf("SetTalk: %v", err)
	}
	mr.FlushAll()
	c.now = func() time.Time { return now.Add(DefaultL1TTL + time.Second) }

	if _, ok := c.GetTalk(ctx, "t1"); ok {
		t.Fatal("expected expired L1 entry and empty redis to miss")
	}
}

func TestInvalidateCatalogClearsBothLevels(t *testing.T) {
	c, mr := newTestCache(t, 16)
	ctx := context.Background()

	_ = c.SetTalkList(ctx, []models.Talk{{ID: "a"}})
	_ = c.SetSpeaker(ctx, &models.Speaker{ID: "s1", Name: "Speaker"})
	mr.Set("unrelated", "keep")

	if err := c.InvalidateCatalog(ctx); err != nil {
		t.Fatalf("InvalidateCatalog: %v", err)
	}
	if _, ok := c.GetTalkList(ctx); ok {
		t.Fatal("talk list should be gone")
	}
	if _, ok := c.GetSpeaker(ctx, "s1"); ok {
		t.Fatal("speaker should be gone")
	}
	if !mr.Exists("unrelated") {
		t.Fatal("invalidate must only touch cache keys")
	}
}

func TestRedisErrorDisablesRedisLevel(t *testing.T) {
	c, mr := newTestCache(t, 0)
	ctx := context.Background()
	mr.Close()

	if err := c.SetTrackList(ctx, nil); err == nil {
		t.Fatal("expected error from closed redis")
	}
	if c.IsAvailable() {
		t.Fatal("expected circuit breaker to disable redis")
	}
	if err := c.SetTrackList(ctx, nil); err != nil {
		t.Fatalf("disabled cache should no-op, got %v", err)
	}
}

func TestNewWithoutRedisIsUsable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisEnabled = false
	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.SetSpeakerList(ctx, []models.Speaker{{ID: "s"}}); err != nil {
		t.Fatalf("SetSpeakerList: %v", err)
	}
	if got, ok := c.GetSpeakerList(ctx); !ok || len(got) != 1 {
		t.Fatalf("expected L1-only hit, got %v %v", got, ok)
	}
}
