// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package cache

import (
	"context"
	"reflect"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Outcome reports how the engine handled a synchronization event. Only
// OutcomeApplied produces a local notification; the other outcomes are
// expected consequences of at-least-once, unordered delivery and are never
// surfaced as errors.
type Outcome int

const (
	// OutcomeUnspecified is the zero value, returned alongside a non-nil
	// error.
	OutcomeUnspecified Outcome = iota
	// OutcomeApplied means the event mutated the cache and a notification
	// was emitted.
	OutcomeApplied
	// OutcomeStaleDeleted means the update was discarded because the id is
	// tombstoned.
	OutcomeStaleDeleted
	// OutcomeStaleRevision means the update was discarded because the cache
	// holds a copy with a higher revision number.
	OutcomeStaleRevision
	// OutcomeNoChange means the update was accepted (the stored copy was
	// replaced) but no semantic field changed, so no notification was
	// emitted.
	OutcomeNoChange
)

// String returns the string representation of the Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeStaleDeleted:
		return "stale_deleted"
	case OutcomeStaleRevision:
		return "stale_revision"
	case OutcomeNoChange:
		return "no_change"
	default:
		return "unknown"
	}
}

// Applied reports whether the event mutated the cache in a way subscribers
// were told about.
func (o Outcome) Applied() bool {
	return o == OutcomeApplied
}

// EngineConfig holds the configuration for creating a new Engine.
type EngineConfig struct {
	Store *Store
	// Notifier receives local change notifications. May be nil when no
	// in-process subscribers exist.
	Notifier Notifier
	// Source tags every emitted event; defaults to "cache".
	Source     string
	BaseLogger *zap.Logger
}

// Engine applies create/update/delete synchronization events to the Store,
// deciding staleness via revision numbers, diffing changed fields, and
// emitting local notifications for materially-changed records. It tolerates
// at-least-once delivery and reordering without external deduplication:
// duplicates and stale messages resolve to ignored outcomes.
type Engine struct {
	store    *Store
	notifier Notifier
	source   string
	logger   *zap.Logger
}

// New creates an Engine from the config.
func (c EngineConfig) New() *Engine {
	source := c.Source
	if source == "" {
		source = "cache"
	}
	return &Engine{
		store:    c.Store,
		notifier: c.Notifier,
		source:   source,
		logger:   c.BaseLogger.With(zap.String("component", "sync_engine")),
	}
}

// Store returns the store this engine mutates.
func (e *Engine) Store() *Store {
	return e.store
}

// ApplyUpdate applies an incoming create or update snapshot. Creates and
// updates are handled identically. The returned error is non-nil only for
// programmer errors (unknown kind); stale and no-op events are reported
// through the Outcome.
func (e *Engine) ApplyUpdate(ctx context.Context, kind Kind, resource Resource) (Outcome, error) {
	sh, err := e.store.shardFor(kind)
	if err != nil {
		return OutcomeUnspecified, err
	}

	previous, changed, outcome := sh.applyUpdate(resource)

	logger := e.logger.With(
		zap.String("kind", kind.String()),
		zap.String("resource_id", resource.ResourceID()),
		zap.Int64("revision", resource.RevisionNumber()),
	)

	switch outcome {
	case OutcomeStaleDeleted:
		logger.Debug("Ignoring update for tombstoned resource")
		return outcome, nil
	case OutcomeStaleRevision:
		logger.Debug("Ignoring update with stale revision")
		return outcome, nil
	case OutcomeNoChange:
		logger.Debug("Update carried no semantic change")
		return outcome, nil
	case OutcomeApplied:
	}

	if previous == nil {
		logger.Debug("Accepted new resource", zap.Strings("fields", changed))
	} else {
		logger.Debug("Accepted resource update", zap.Strings("changed_fields", changed))
	}

	e.notify(ctx, Event{
		Kind:          kind,
		Type:          AfterUpdate,
		Source:        e.source,
		ResourceID:    resource.ResourceID(),
		ChangedFields: changed,
		Previous:      previous,
		Current:       resource,
	})
	return OutcomeApplied, nil
}

// ApplyDelete records the deletion of id. Deletions are final: the id is
// tombstoned so no later update can resurrect it, and the call is idempotent.
// Always returns OutcomeApplied for a tracked kind.
func (e *Engine) ApplyDelete(ctx context.Context, kind Kind, id string) (Outcome, error) {
	sh, err := e.store.shardFor(kind)
	if err != nil {
		return OutcomeUnspecified, err
	}

	previous, existed := sh.applyDelete(id, time.Now().UTC())

	e.logger.Debug("Resource deleted",
		zap.String("kind", kind.String()),
		zap.String("resource_id", id),
		zap.Bool("was_live", existed),
	)

	e.notify(ctx, Event{
		Kind:       kind,
		Type:       AfterDelete,
		Source:     e.source,
		ResourceID: id,
		Previous:   previous,
	})
	return OutcomeApplied, nil
}

// notify dispatches the event synchronously. No shard lock is held here, so a
// subscriber may read from the store within its handler.
func (e *Engine) notify(ctx context.Context, event Event) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, event)
}

// changedFields returns the names of the fields whose values differ between
// old and updated, sorted. A nil old means everything in updated changed.
// Revision number and update timestamp never appear: they are excluded from
// Fields by contract.
func changedFields(old, updated Resource) []string {
	updatedFields := updated.Fields()

	changed := make([]string, 0, len(updatedFields))
	if old == nil {
		for name := range updatedFields {
			changed = append(changed, name)
		}
	} else {
		oldFields := old.Fields()
		for name, value := range updatedFields {
			if !reflect.DeepEqual(oldFields[name], value) {
				changed = append(changed, name)
			}
		}
	}

	sort.Strings(changed)
	return changed
}
