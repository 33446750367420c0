// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package cache

import (
	"context"
	"time"
)

// Kind identifies a class of tracked resource (e.g. "ports", "networks").
// The set of tracked kinds is fixed when the Store is constructed.
type Kind string

// String returns the string representation of the Kind.
func (k Kind) String() string {
	return string(k)
}

// Resource is a server-owned snapshot held by the cache. Snapshots are
// immutable once stored: the cache replaces whole values and never mutates a
// resource in place, so a Resource handed out by Get or Find is safe to read
// concurrently.
//
// RevisionNumber is the monotonic counter assigned by the control plane and is
// the sole ordering signal used for conflict resolution. Fields returns the
// canonical field-name-to-value map used for diffing and predicate matching;
// it must not contain the revision number or the update timestamp, since those
// change on every legitimate update and carry no semantic signal by
// themselves.
type Resource interface {
	ResourceID() string
	RevisionNumber() int64
	UpdatedAt() time.Time
	Fields() map[string]any
}

// EventType identifies the kind of local change notification.
type EventType string

const (
	AfterUpdate EventType = "after_update"
	AfterDelete EventType = "after_delete"
)

// Event is a local change notification emitted after the cache accepted a
// materially-changed update or a deletion.
type Event struct {
	Kind Kind
	Type EventType
	// Source tags the component that produced the event.
	Source     string
	ResourceID string
	// ChangedFields lists the semantic fields whose values differ between
	// Previous and Current, sorted. Empty for deletions.
	ChangedFields []string
	// Previous is nil for first-seen creates and for deletions of ids that
	// were never live.
	Previous Resource
	// Current is nil for deletions.
	Current Resource
}

// Notifier receives local change notifications. Dispatch is synchronous but
// fire-and-forget: the engine does not act on anything a subscriber does.
// Handlers that call back into the cache mutation path must reason about
// re-entrancy themselves; no cache lock is held during Notify.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}
