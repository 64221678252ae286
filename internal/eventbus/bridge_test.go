package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/confplanner/internal/events"
)

// loopback is an in-memory Transport shared by several bridges.
type loopback struct {
	mu       sync.Mutex
	handlers []func([]byte)
	closed   int
}

func (l *loopback) Name() string { return "loopback" }

func (l *loopback) Publish(_ context.Context, _ string, data []byte) error {
	l.mu.Lock()
	hs := append([]func([]byte){}, l.handlers...)
	l.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
	return nil
}

func (l *loopback) Subscribe(_ context.Context, _ string, handler func([]byte)) error {
	l.mu.Lock()
	l.handlers = append(l.handlers, handler)
	l.mu.Unlock()
	return nil
}

func (l *loopback) Close() error {
	l.mu.Lock()
	l.closed++
	l.mu.Unlock()
	return nil
}

func expectEvent(t *testing.T, sub events.Subscriber, key, want string) {
	t.Helper()
	select {
	case p := <-sub:
		if p[key] != want {
			t.Fatalf("payload %v, want %s=%s", p, key, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s=%s", key, want)
	}
}

func expectNoEvent(t *testing.T, sub events.Subscriber) {
	t.Helper()
	select {
	case p := <-sub:
		t.Fatalf("unexpected event %v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBridgeRelaysBetweenNodesWithoutEcho(t *testing.T) {
	shared := &loopback{}
	busA, busB := events.NewBus(), events.NewBus()
	a := NewBridge(busA, shared, "node-a", zerolog.Nop())
	b := NewBridge(busB, shared, "node-b", zerolog.Nop())
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}

	subA := busA.Subscribe(events.EventScheduleAdded)
	subB := busB.Subscribe(events.EventScheduleAdded)

	busA.Publish(events.EventScheduleAdded, events.Payload{"talk_id": "t1"})

	expectEvent(t, subA, "talk_id", "t1")
	expectEvent(t, subB, "talk_id", "t1")
	expectNoEvent(t, subA)

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	busA.Publish(events.EventScheduleAdded, events.Payload{"talk_id": "t2"})
	expectEvent(t, subA, "talk_id", "t2")
	expectNoEvent(t, subB)
}

func TestBridgeKeepsAuditEventsLocal(t *testing.T) {
	shared := &loopback{}
	busA, busB := events.NewBus(), events.NewBus()
	a := NewBridge(busA, shared, "node-a", zerolog.Nop())
	b := NewBridge(busB, shared, "node-b", zerolog.Nop())
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}

	subA := busA.Subscribe(events.EventAuditLogin)
	subB := busB.Subscribe(events.EventAuditLogin)
	busA.Publish(events.EventAuditLogin, events.Payload{"user_id": "u1"})

	expectEvent(t, subA, "user_id", "u1")
	expectNoEvent(t, subB)
}

func TestBridgeDropsMalformedMessages(t *testing.T) {
	shared := &loopback{}
	bus := events.NewBus()
	br := NewBridge(bus, shared, "", zerolog.Nop())
	if br.NodeID() == "" {
		t.Fatal("expected generated node id")
	}
	if err := br.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	sub := bus.Subscribe(events.EventScheduleAdded)

	_ = shared.Publish(context.Background(), Subject, []byte("not json"))
	_ = shared.Publish(context.Background(), Subject, []byte(`{"node_id":"x"}`))
	expectNoEvent(t, sub)
}

func TestRedisTransportRelaysEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newBridge := func(node string) (*events.Bus, *Bridge) {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		bus := events.NewBus()
		br := NewBridge(bus, NewRedisTransportWithClient(client, zerolog.Nop()), node, zerolog.Nop())
		if err := br.Start(ctx); err != nil {
			t.Fatalf("start %s: %v", node, err)
		}
		t.Cleanup(func() { _ = br.Close() })
		return bus, br
	}

	busA, _ := newBridge("a")
	busB, _ := newBridge("b")
	subB := busB.Subscribe(events.EventScheduleRemoved)

	busA.Publish(events.EventScheduleRemoved, events.Payload{"talk_id": "t9", "user_id": "u1"})
	expectEvent(t, subB, "talk_id", "t9")
}

func TestNewRedisTransportFailsFast(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedisTransport(ctx, cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected connection error")
	}
}
