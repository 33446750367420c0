// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package natsio

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fabricmesh/fabric-agent/internal/cache"
)

// Puller implements the bulk-pull collaborator with a NATS request/reply per
// kind. The reply carries the full current server-side set as one JSON list.
type Puller struct {
	conn   *nats.Conn
	logger *zap.Logger
}

var _ cache.Puller = (*Puller)(nil)

// NewPuller wraps an established NATS connection.
func NewPuller(conn *nats.Conn, logger *zap.Logger) *Puller {
	return &Puller{
		conn:   conn,
		logger: logger.With(zap.String("component", "nats_pull")),
	}
}

// BulkPull requests the full set for the kind. Transport failures (no
// responder, timeout, cancellation) propagate to the caller; the bulk loader
// treats them as recoverable per kind.
func (p *Puller) BulkPull(ctx context.Context, kind cache.Kind) ([]cache.Resource, error) {
	subject := BulkPullSubject(kind)

	msg, err := p.conn.RequestWithContext(ctx, subject, nil)
	if err != nil {
		return nil, fmt.Errorf("bulk pull request on %s: %w", subject, err)
	}

	list, err := DecodeResourceList(kind, msg.Data)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Bulk pull complete",
		zap.String("kind", kind.String()),
		zap.Int("count", len(list)),
	)
	return list, nil
}
