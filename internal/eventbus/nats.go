/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSTransport relays events over core NATS subjects.
type NATSTransport struct {
	conn   *nats.Conn
	logger zerolog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATSTransport connects to url, retrying with exponential backoff until
// ctx expires. Once connected the client reconnects on its own.
func NewNATSTransport(ctx context.Context, url, clientName string, logger zerolog.Logger) (*NATSTransport, error) {
	logger = logger.With().Str("nats_url", url).Logger()

	opts := []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("server", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	var conn *nats.Conn
	connect := func() error {
		c, err := nats.Connect(url, opts...)
		if err != nil {
			logger.Debug().Err(err).Msg("NATS connect attempt failed")
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(connect, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	logger.Info().Msg("NATS event transport connected")
	return &NATSTransport{conn: conn, logger: logger}, nil
}

// Name implements Transport.
func (t *NATSTransport) Name() string { return "nats" }

// Publish implements Transport.
func (t *NATSTransport) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.conn.Publish(subject, data)
}

// Subscribe implements Transport.
func (t *NATSTransport) Subscribe(ctx context.Context, subject string, handler func([]byte)) error {
	sub, err := t.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return err
	}
	if err := t.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return err
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// Close implements Transport.
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	t.subs = nil
	t.mu.Unlock()

	if err := t.conn.Drain(); err != nil {
		t.conn.Close()
		return err
	}
	return nil
}
