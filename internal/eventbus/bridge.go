/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus relays events.Bus traffic between instances so that a
// schedule change made on one node reaches websocket clients on every node.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/telemetry"
)

// Subject is the channel/subject all events are relayed on.
const Subject = "confplanner.events"

// Transport moves opaque messages between instances.
type Transport interface {
	Name() string
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe delivers every message on subject to handler until ctx is
	// cancelled or Close is called.
	Subscribe(ctx context.Context, subject string, handler func([]byte)) error
	Close() error
}

// envelope is the wire format.
type envelope struct {
	NodeID  string           `json:"node_id"`
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
	SentAt  time.Time        `json:"sent_at"`
}

func marshalEnvelope(nodeID string, eventType events.EventType, payload events.Payload) ([]byte, error) {
	return json.Marshal(envelope{NodeID: nodeID, Type: eventType, Payload: payload, SentAt: time.Now().UTC()})
}

func unmarshalEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("decode event envelope: missing type")
	}
	return env, nil
}

// Bridge connects a local bus to a transport.
type Bridge struct {
	bus       *events.Bus
	transport Transport
	nodeID    string
	logger    zerolog.Logger

	publishTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewBridge creates a bridge. An empty nodeID is replaced by a generated one.
func NewBridge(bus *events.Bus, transport Transport, nodeID string, logger zerolog.Logger) *Bridge {
	if nodeID == "" {
		nodeID = GenerateNodeID()
	}
	return &Bridge{
		bus:            bus,
		transport:      transport,
		nodeID:         nodeID,
		logger:         logger.With().Str("component", "eventbus").Str("transport", transport.Name()).Logger(),
		publishTimeout: 2 * time.Second,
	}
}

// NodeID identifies this instance on the wire.
func (b *Bridge) NodeID() string { return b.nodeID }

// Start subscribes to the transport and installs the bus forwarder.
func (b *Bridge) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := b.transport.Subscribe(ctx, Subject, b.receive); err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", b.transport.Name(), err)
	}

	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	b.bus.SetForwarder(b.forward)
	b.logger.Info().Str("node_id", b.nodeID).Msg("event bridge started")
	return nil
}

func (b *Bridge) forward(eventType events.EventType, payload events.Payload) {
	if !events.Relayed(eventType) {
		return
	}
	data, err := marshalEnvelope(b.nodeID, eventType, payload)
	if err != nil {
		b.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.publishTimeout)
	defer cancel()

	if err := b.transport.Publish(ctx, Subject, data); err != nil {
		b.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("failed to relay event")
		return
	}
	telemetry.EventBusMessagesTotal.WithLabelValues(b.transport.Name(), "out").Inc()
}

func (b *Bridge) receive(data []byte) {
	env, err := unmarshalEnvelope(data)
	if err != nil {
		b.logger.Error().Err(err).Msg("dropping malformed event")
		return
	}
	// Skip messages from ourselves (prevent echo)
	if env.NodeID == b.nodeID || !events.Relayed(env.Type) {
		return
	}

	telemetry.EventBusMessagesTotal.WithLabelValues(b.transport.Name(), "in").Inc()
	b.bus.Deliver(env.Type, env.Payload)
	b.logger.Debug().
		Str("event_type", string(env.Type)).
		Str("source_node", env.NodeID).
		Msg("delivered remote event")
}

// Close detaches from the bus and closes the transport.
func (b *Bridge) Close() error {
	b.bus.SetForwarder(nil)

	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.mu.Unlock()

	return b.transport.Close()
}

// GenerateNodeID returns hostname-derived id unique per process.
func GenerateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}
