// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

// Package natsio implements the push-notification and bulk-pull collaborators
// over NATS. Push notifications arrive on per-kind fan-out subjects; bulk
// pulls use request/reply. Payloads are JSON envelopes decoded through the
// resources registry.
package natsio

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fabricmesh/fabric-agent/internal/cache"
)

const (
	pushSubjectPrefix     = "fabric.resources."
	bulkPullSubjectPrefix = "fabric.bulkpull."

	defaultConnectTimeout = 10 * time.Second
)

// PushSubject returns the fan-out subject on which mutation batches for the
// kind are published.
func PushSubject(kind cache.Kind) string {
	return pushSubjectPrefix + kind.String()
}

// BulkPullSubject returns the request/reply subject on which the full set for
// the kind is served.
func BulkPullSubject(kind cache.Kind) string {
	return bulkPullSubjectPrefix + kind.String()
}

// Config holds the NATS connection settings.
type Config struct {
	// URL of the NATS server, e.g. "nats://127.0.0.1:4222".
	URL string
	// Name identifies this client on the server.
	Name string
	// Token is an optional authentication token.
	Token string
	// CertFile/KeyFile enable mutual TLS when both are set; CAFile overrides
	// the system roots.
	CertFile string
	KeyFile  string
	CAFile   string
}

// Connect dials the NATS server with infinite reconnects and connection-state
// logging.
func Connect(config Config, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.Timeout(defaultConnectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("Disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS async error", zap.String("subject", subject), zap.Error(err))
		}),
	}

	if config.Token != "" {
		opts = append(opts, nats.Token(config.Token))
	}
	if config.CertFile != "" && config.KeyFile != "" {
		opts = append(opts, nats.ClientCert(config.CertFile, config.KeyFile))
	}
	if config.CAFile != "" {
		opts = append(opts, nats.RootCAs(config.CAFile))
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", config.URL, err)
	}
	return conn, nil
}
