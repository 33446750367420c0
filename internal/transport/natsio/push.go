// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package natsio

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fabricmesh/fabric-agent/internal/cache"
)

// PushSource adapts NATS fan-out subjects to the cache's push-notification
// interface. Every subscriber gets every batch (plain subscriptions, no queue
// groups); delivery is at-least-once from the application's point of view
// since the server may republish, and the engine's staleness rules absorb the
// duplicates.
type PushSource struct {
	conn   *nats.Conn
	logger *zap.Logger
}

var _ cache.PushSource = (*PushSource)(nil)

// NewPushSource wraps an established NATS connection.
func NewPushSource(conn *nats.Conn, logger *zap.Logger) *PushSource {
	return &PushSource{
		conn:   conn,
		logger: logger.With(zap.String("component", "nats_push")),
	}
}

// Subscribe starts delivering the kind's batches to the handler. Undecodable
// payloads are logged and dropped; the push channel has nowhere to return an
// error to.
func (p *PushSource) Subscribe(ctx context.Context, kind cache.Kind, handler cache.BatchHandler) (cache.Subscription, error) {
	subject := PushSubject(kind)

	sub, err := p.conn.Subscribe(subject, func(msg *nats.Msg) {
		batch, err := DecodeBatch(msg.Data)
		if err != nil {
			p.logger.Error("Cannot decode push batch",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		if batch.Kind != kind {
			p.logger.Warn("Batch kind does not match its subject",
				zap.String("subject", msg.Subject),
				zap.String("kind", batch.Kind.String()),
			)
			return
		}
		handler(ctx, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return natsSubscription{sub: sub}, nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
