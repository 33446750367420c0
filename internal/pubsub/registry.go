// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

// Package pubsub fans cache change notifications out to in-process
// subscribers. It is an explicit, injected component rather than a
// process-wide registry so tests can substitute a recording sink.
package pubsub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fabricmesh/fabric-agent/internal/cache"
)

// Handler consumes one cache event. Handlers run synchronously on the
// notifying goroutine and must not block for long; a handler that re-enters
// the cache mutation path is responsible for its own re-entrancy reasoning.
type Handler func(ctx context.Context, event cache.Event)

// Registry dispatches cache events to the handlers subscribed to the event's
// kind.
type Registry struct {
	logger *zap.Logger

	mu     sync.RWMutex
	byKind map[cache.Kind]map[string]Handler
}

var _ cache.Notifier = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.With(zap.String("component", "pubsub")),
		byKind: make(map[cache.Kind]map[string]Handler),
	}
}

// Subscribe registers a handler for events of the given kind and returns a
// token for Unsubscribe.
func (r *Registry) Subscribe(kind cache.Kind, handler Handler) string {
	token := uuid.New().String()

	r.mu.Lock()
	defer r.mu.Unlock()

	handlers, ok := r.byKind[kind]
	if !ok {
		handlers = make(map[string]Handler)
		r.byKind[kind] = handlers
	}
	handlers[token] = handler
	return token
}

// Unsubscribe removes the subscription for the token. Unknown tokens are
// ignored.
func (r *Registry) Unsubscribe(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, handlers := range r.byKind {
		delete(handlers, token)
	}
}

// Notify dispatches the event to every handler subscribed to its kind. The
// handler set is snapshotted first so handlers may subscribe or unsubscribe
// from within their callback. A panicking handler is recovered and logged so
// it cannot poison the cache mutation path.
func (r *Registry) Notify(ctx context.Context, event cache.Event) {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.byKind[event.Kind]))
	for _, handler := range r.byKind[event.Kind] {
		handlers = append(handlers, handler)
	}
	r.mu.RUnlock()

	for _, handler := range handlers {
		r.invoke(ctx, handler, event)
	}
}

func (r *Registry) invoke(ctx context.Context, handler Handler, event cache.Event) {
	defer func() {
		if cause := recover(); cause != nil {
			r.logger.Error("Subscriber panicked handling cache event",
				zap.String("kind", event.Kind.String()),
				zap.String("event", string(event.Type)),
				zap.String("resource_id", event.ResourceID),
				zap.Any("panic", cause),
			)
		}
	}()
	handler(ctx, event)
}
