// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package cache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BatchEvent is the wire-level event kind carried by a push batch.
type BatchEvent string

const (
	BatchCreated BatchEvent = "created"
	BatchUpdated BatchEvent = "updated"
	BatchDeleted BatchEvent = "deleted"
)

// Batch is one push notification: a set of resources of a single kind that
// were all created, updated, or deleted. Batches are delivered at-least-once
// with no ordering guarantee; duplicates are possible.
type Batch struct {
	Kind      Kind
	Event     BatchEvent
	Resources []Resource
}

// BatchHandler consumes one inbound batch.
type BatchHandler func(ctx context.Context, batch Batch)

// Subscription is a handle to an active push subscription.
type Subscription interface {
	Unsubscribe() error
}

// PushSource is the push-notification collaborator: a per-kind fan-out
// subscription yielding batches. Implementations may deliver batches for
// different kinds, and successive batches for the same kind, concurrently and
// out of order; the watcher performs no reordering.
type PushSource interface {
	Subscribe(ctx context.Context, kind Kind, handler BatchHandler) (Subscription, error)
}

// WatcherConfig holds the configuration for creating a new Watcher.
type WatcherConfig struct {
	Engine *Engine
	Source PushSource
	// Kinds to subscribe; defaults to every kind tracked by the engine's
	// store.
	Kinds      []Kind
	BaseLogger *zap.Logger
	// Limiter bounds batch dispatch so a burst of redelivered notifications
	// cannot starve readers. Nil means unlimited.
	Limiter *rate.Limiter
}

// Watcher subscribes to the push-notification channel for every tracked kind
// and translates inbound batches into individual engine calls. All ordering
// correctness is delegated to the engine's revision check.
type Watcher struct {
	engine  *Engine
	source  PushSource
	kinds   []Kind
	logger  *zap.Logger
	limiter *rate.Limiter

	mu   sync.Mutex
	subs []Subscription
}

// New creates a Watcher from the config.
func (c WatcherConfig) New() *Watcher {
	kinds := c.Kinds
	if kinds == nil {
		kinds = c.Engine.Store().Kinds()
	}
	limiter := c.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Watcher{
		engine:  c.Engine,
		source:  c.Source,
		kinds:   kinds,
		logger:  c.BaseLogger.With(zap.String("component", "push_watcher")),
		limiter: limiter,
	}
}

// Start subscribes every tracked kind. On failure it tears down the
// subscriptions already made and returns the error.
func (w *Watcher) Start(ctx context.Context) error {
	for _, kind := range w.kinds {
		sub, err := w.source.Subscribe(ctx, kind, w.dispatch)
		if err != nil {
			w.unsubscribeAll()
			return fmt.Errorf("subscribe %s: %w", kind, err)
		}

		w.mu.Lock()
		w.subs = append(w.subs, sub)
		w.mu.Unlock()

		w.logger.Debug("Subscribed to push notifications", zap.String("kind", kind.String()))
	}
	return nil
}

// Stop cancels every active subscription.
func (w *Watcher) Stop() error {
	return w.unsubscribeAll()
}

func (w *Watcher) unsubscribeAll() error {
	w.mu.Lock()
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()

	var errs error
	for _, sub := range subs {
		errs = multierr.Append(errs, sub.Unsubscribe())
	}
	return errs
}

// dispatch applies one inbound batch. Creates and updates are treated
// identically; only the engine's kind validation can fail here, and that is
// logged rather than propagated since the transport has nowhere to return it.
func (w *Watcher) dispatch(ctx context.Context, batch Batch) {
	if err := w.limiter.Wait(ctx); err != nil {
		w.logger.Debug("Dropping batch, context done while rate limited", zap.Error(err))
		return
	}

	for _, resource := range batch.Resources {
		var err error
		if batch.Event == BatchDeleted {
			_, err = w.engine.ApplyDelete(ctx, batch.Kind, resource.ResourceID())
		} else {
			_, err = w.engine.ApplyUpdate(ctx, batch.Kind, resource)
		}
		if err != nil {
			w.logger.Error("Cannot apply pushed resource event",
				zap.String("kind", batch.Kind.String()),
				zap.String("event", string(batch.Event)),
				zap.String("resource_id", resource.ResourceID()),
				zap.Error(err),
			)
		}
	}
}
