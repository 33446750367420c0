// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

// Package agent wires the resource mirror together: the store, the
// synchronization engine, the bulk loader, the push watcher, and the NATS
// transport underneath them.
package agent

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fabricmesh/fabric-agent/internal/cache"
	"github.com/fabricmesh/fabric-agent/internal/pubsub"
	"github.com/fabricmesh/fabric-agent/internal/transport/natsio"
)

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 1 * time.Minute
	// A session that survived this long counts as a success for backoff
	// accounting even if it eventually failed.
	sessionSuccessAfter  = 1 * time.Minute
	severeErrorThreshold = 10
	maxJitterPct         = 0.2

	// How often the tombstone janitor sweeps when a TTL is configured.
	tombstoneSweepInterval = 1 * time.Minute

	// Pushed batches dispatched per second; bursts absorb redelivery storms.
	batchRateLimit = 100
	batchRateBurst = 500
)

// Config holds the configuration for creating a new Agent.
type Config struct {
	// Kinds to track. Fixed for the lifetime of the agent.
	Kinds []cache.Kind
	// Nats is the transport configuration.
	Nats natsio.Config
	// TombstoneTTL bounds tombstone growth when positive; zero retains
	// tombstones for the lifetime of the process (the baseline behavior).
	TombstoneTTL time.Duration
	BaseLogger   *zap.Logger
}

// Agent owns the local resource mirror. Readers use Store for synchronous
// local queries and Registry to subscribe to change notifications; Run keeps
// the mirror synchronized until the context is canceled.
type Agent struct {
	config   Config
	logger   *zap.Logger
	store    *cache.Store
	registry *pubsub.Registry
	engine   *cache.Engine

	loaded    atomic.Bool
	connected atomic.Bool
}

// New creates an Agent tracking the configured kinds.
func New(config Config) *Agent {
	logger := config.BaseLogger.With(zap.String("component", "agent"))
	store := cache.NewStore(config.BaseLogger, config.Kinds)
	registry := pubsub.NewRegistry(config.BaseLogger)
	engine := cache.EngineConfig{
		Store:      store,
		Notifier:   registry,
		Source:     "fabric-agent",
		BaseLogger: config.BaseLogger,
	}.New()

	return &Agent{
		config:   config,
		logger:   logger,
		store:    store,
		registry: registry,
		engine:   engine,
	}
}

// Store exposes the resource mirror for synchronous local reads.
func (a *Agent) Store() *cache.Store {
	return a.store
}

// Registry exposes the local notification fan-out.
func (a *Agent) Registry() *pubsub.Registry {
	return a.registry
}

// Healthy reports whether the initial bulk load has completed and the
// transport connection is up.
func (a *Agent) Healthy() bool {
	return a.loaded.Load() && a.connected.Load()
}

// Run synchronizes the mirror until ctx is canceled, reconnecting with
// exponential backoff on transport failure. The cache itself survives a
// reconnect: resumed traffic is re-applied through the same staleness rules,
// so duplicates, stale records and gaps resolve without a resubscribe
// handshake.
func (a *Agent) Run(ctx context.Context) error {
	opts := retryOpts{
		InitialBackoff:               defaultInitialBackoff,
		MaxBackoff:                   defaultMaxBackoff,
		MaxJitterPct:                 maxJitterPct,
		SevereErrorThreshold:         severeErrorThreshold,
		ExponentialFactor:            2.0,
		Logger:                       a.logger,
		SessionTimeToConsiderSuccess: sessionSuccessAfter,
	}
	return withBackoff(ctx, opts, a.session)
}

// session runs one connect-subscribe-load cycle and blocks until the context
// is canceled or the connection is lost.
func (a *Agent) session(ctx context.Context) error {
	conn, err := natsio.Connect(a.config.Nats, a.config.BaseLogger)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer a.connected.Store(false)
	a.connected.Store(true)

	watcher := cache.WatcherConfig{
		Engine:     a.engine,
		Source:     natsio.NewPushSource(conn, a.config.BaseLogger),
		BaseLogger: a.config.BaseLogger,
		Limiter:    rate.NewLimiter(rate.Limit(batchRateLimit), batchRateBurst),
	}.New()

	// Subscribe before loading so no push traffic is missed; a bulk insert
	// racing a fresher pushed record is corrected by the next push.
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop() //nolint:errcheck

	loader := cache.LoaderConfig{
		Store:      a.store,
		Puller:     natsio.NewPuller(conn, a.config.BaseLogger),
		BaseLogger: a.config.BaseLogger,
	}.New()
	if err := loader.LoadAll(ctx); err != nil {
		// Kinds that loaded stay seeded; retry the failed ones on the next
		// session.
		return err
	}
	a.loaded.Store(true)

	a.logger.Info("Resource mirror synchronized",
		zap.Int("kinds", len(a.config.Kinds)),
	)

	return a.hold(ctx)
}

// hold blocks until ctx is done, running the tombstone janitor if configured.
// Transient disconnects are handled by the NATS client's own reconnect loop.
func (a *Agent) hold(ctx context.Context) error {
	var sweep <-chan time.Time
	if a.config.TombstoneTTL > 0 {
		ticker := time.NewTicker(tombstoneSweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep:
			a.store.EvictExpiredTombstones(time.Now().UTC(), a.config.TombstoneTTL)
		}
	}
}
