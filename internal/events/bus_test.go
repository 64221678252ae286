package events

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribersOfThatTypeOnly(t *testing.T) {
	bus := NewBus()
	added := bus.Subscribe(EventScheduleAdded)
	removed := bus.Subscribe(EventScheduleRemoved)

	bus.Publish(EventScheduleAdded, Payload{"talk_id": "t1"})

	select {
	case p := <-added:
		if p["talk_id"] != "t1" {
			t.Fatalf("unexpected payload %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
	select {
	case p := <-removed:
		t.Fatalf("unexpected delivery %v", p)
	default:
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.SubscribeBuffered(EventCatalogUpdated, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(EventCatalogUpdated, Payload{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(sub) != 1 {
		t.Fatalf("expected one buffered event, got %d", len(sub))
	}
}

func TestForwarderSeesPublishButNotDeliver(t *testing.T) {
	bus := NewBus()
	var forwarded []EventType
	bus.SetForwarder(func(et EventType, _ Payload) { forwarded = append(forwarded, et) })

	bus.Publish(EventScheduleAdded, Payload{})
	bus.Deliver(EventScheduleRemoved, Payload{})

	if len(forwarded) != 1 || forwarded[0] != EventScheduleAdded {
		t.Fatalf("unexpected forwarded events %v", forwarded)
	}
}

func TestUnsubscribeClosesChannelOnce(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventScheduleAdded)
	bus.Unsubscribe(EventScheduleAdded, sub)
	bus.Unsubscribe(EventScheduleAdded, sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	bus.Publish(EventScheduleAdded, Payload{})
}

func TestPublishRacingUnsubscribe(t *testing.T) {
	bus := NewBus()
	stop := make(chan struct{})
	panicked := make(chan any, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				panicked <- r
			}
		}()
		for {
			select {
			case <-stop:
				return
			default:
			}
			bus.Publish(EventScheduleAdded, Payload{"talk_id": "t1"})
		}
	}()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		sub := bus.SubscribeBuffered(EventScheduleAdded, 1)
		bus.Unsubscribe(EventScheduleAdded, sub)
	}
	close(stop)
	<-done

	select {
	case r := <-panicked:
		t.Fatalf("publish panicked: %v", r)
	default:
	}
}
