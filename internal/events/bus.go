/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// Personal schedule changes, streamed to the owner's websocket.
	EventScheduleAdded   EventType = "schedule.added"
	EventScheduleRemoved EventType = "schedule.removed"
	EventRatingSubmitted EventType = "rating.submitted"

	// Cache invalidation
	EventCatalogUpdated EventType = "cache.catalog_updated"
	EventSpeakerUpdated EventType = "cache.speaker_updated"

	// Audit events
	EventAuditSignup        EventType = "audit.user.signup"
	EventAuditLogin         EventType = "audit.user.login"
	EventAuditLoginFailed   EventType = "audit.user.login_failed"
	EventAuditAPIKeyCreate  EventType = "audit.apikey.create"
	EventAuditAPIKeyRevoke  EventType = "audit.apikey.revoke"
	EventAuditSpeakerAvatar EventType = "audit.speaker.avatar"
	EventAuditSeed          EventType = "audit.conference.seed"
)

// ScheduleEventTypes are the events a user sees on their event stream. Each
// carries the owning "user_id" in its payload.
var ScheduleEventTypes = []EventType{EventScheduleAdded, EventScheduleRemoved, EventRatingSubmitted}

// Relayed reports whether events of type t are shared with other instances.
// Audit events stay local.
func Relayed(t EventType) bool {
	switch t {
	case EventScheduleAdded, EventScheduleRemoved, EventRatingSubmitted,
		EventCatalogUpdated, EventSpeakerUpdated:
		return true
	}
	return false
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Forwarder receives every locally published event, for relaying to other
// instances.
type Forwarder func(eventType EventType, payload Payload)

// Bus implements a simple in-process pubsub. Delivery never blocks the
// publisher: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu        sync.RWMutex
	subs      map[EventType][]Subscriber
	forwarder Forwarder
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	return b.SubscribeBuffered(eventType, 8)
}

// SubscribeBuffered registers a subscriber with a custom buffer size.
func (b *Bus) SubscribeBuffered(eventType EventType, size int) Subscriber {
	ch := make(Subscriber, size)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// SetForwarder installs f as the relay for local publishes. Pass nil to
// remove it.
func (b *Bus) SetForwarder(f Forwarder) {
	b.mu.Lock()
	b.forwarder = f
	b.mu.Unlock()
}

// Publish delivers payload to local subscribers and hands it to the
// forwarder, if any.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	forward := b.forwarder
	b.mu.RUnlock()

	b.Deliver(eventType, payload)
	if forward != nil {
		forward(eventType, payload)
	}
}

// Deliver sends payload to local subscribers only. Relays use it for events
// that arrived from another instance.
//
// Sends happen under the read lock so Unsubscribe cannot close a channel
// mid-send.
func (b *Bus) Deliver(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}

// HasSubscribers reports whether anyone listens for eventType.
func (b *Bus) HasSubscribers(eventType EventType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType]) > 0
}
