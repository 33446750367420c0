// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownKind is returned by store operations addressed to a resource kind
// outside the tracked set. This is a programmer error, not a retryable
// condition.
var ErrUnknownKind = errors.New("resource kind not tracked by cache")

// Store holds the latest accepted snapshot per (kind, id) plus the set of
// tombstoned ids per kind. All mutation goes through the bulk loader's Put or
// the synchronization engine; there is no general write path.
type Store struct {
	logger *zap.Logger
	shards map[Kind]*shard
}

// shard is the per-kind live map and tombstone set, guarded by its own lock.
// Tombstones record the deletion time so they can optionally be aged out.
type shard struct {
	mu         sync.RWMutex
	live       map[string]Resource
	tombstones map[string]time.Time
}

// NewStore creates a Store tracking exactly the given kinds.
func NewStore(logger *zap.Logger, kinds []Kind) *Store {
	shards := make(map[Kind]*shard, len(kinds))
	for _, kind := range kinds {
		shards[kind] = &shard{
			live:       make(map[string]Resource),
			tombstones: make(map[string]time.Time),
		}
	}
	return &Store{
		logger: logger,
		shards: shards,
	}
}

// Kinds returns the tracked kinds in a stable order.
func (s *Store) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s.shards))
	for kind := range s.shards {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (s *Store) shardFor(kind Kind) (*shard, error) {
	sh, ok := s.shards[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return sh, nil
}

// Get returns the latest accepted snapshot for id, or found=false if the id is
// not live (never seen, or deleted).
func (s *Store) Get(kind Kind, id string) (Resource, bool, error) {
	sh, err := s.shardFor(kind)
	if err != nil {
		return nil, false, err
	}

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	resource, ok := sh.live[id]
	return resource, ok, nil
}

// Find returns every live resource of the kind for which match returns true.
// This is a linear scan over the kind's live set; callers needing frequent
// structured lookups should build their own index from the result.
func (s *Store) Find(kind Kind, match func(Resource) bool) ([]Resource, error) {
	sh, err := s.shardFor(kind)
	if err != nil {
		return nil, err
	}

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	var matched []Resource
	for _, resource := range sh.live {
		if match(resource) {
			matched = append(matched, resource)
		}
	}
	return matched, nil
}

// Put unconditionally inserts or replaces the live entry for the resource's
// id. It bypasses the staleness rules and does not consult tombstones; it is
// meant for the bulk loader's initial seed only. A Put racing a fresher pushed
// record may briefly regress the entry; the next push supersedes it via the
// normal revision comparison.
func (s *Store) Put(kind Kind, resource Resource) error {
	sh, err := s.shardFor(kind)
	if err != nil {
		return err
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.live[resource.ResourceID()] = resource
	return nil
}

// TombstoneCount reports how many deleted ids are currently recorded for the
// kind.
func (s *Store) TombstoneCount(kind Kind) (int, error) {
	sh, err := s.shardFor(kind)
	if err != nil {
		return 0, err
	}

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	return len(sh.tombstones), nil
}

// EvictExpiredTombstones drops tombstones recorded before now-ttl and returns
// the number removed. With ttl <= 0 it is a no-op: the baseline behavior is to
// retain tombstones for the lifetime of the process. Evicting a tombstone
// re-opens a window in which a re-sent stale update for that id would be
// accepted again.
func (s *Store) EvictExpiredTombstones(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	cutoff := now.Add(-ttl)
	evicted := 0

	for kind, sh := range s.shards {
		kindEvicted := 0

		sh.mu.Lock()
		for id, deletedAt := range sh.tombstones {
			if deletedAt.Before(cutoff) {
				delete(sh.tombstones, id)
				kindEvicted++
			}
		}
		sh.mu.Unlock()

		if kindEvicted > 0 {
			s.logger.Debug("Evicted expired tombstones",
				zap.String("kind", kind.String()),
				zap.Int("evicted", kindEvicted),
			)
		}
		evicted += kindEvicted
	}
	return evicted
}

// applyUpdate is the engine's conditional replace-if-not-stale primitive. The
// staleness check, the replace, and the field diff happen atomically under the
// shard's write lock. It returns the previous snapshot (nil for first-seen
// creates), the changed-field set, and the outcome.
func (sh *shard) applyUpdate(resource Resource) (Resource, []string, Outcome) {
	id := resource.ResourceID()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, deleted := sh.tombstones[id]; deleted {
		return nil, nil, OutcomeStaleDeleted
	}

	existing := sh.live[id]
	// Strictly greater, not >=: tolerating equal revisions keeps us working
	// against servers that forget to bump the revision on a true resend.
	if existing != nil && existing.RevisionNumber() > resource.RevisionNumber() {
		return nil, nil, OutcomeStaleRevision
	}

	sh.live[id] = resource

	changed := changedFields(existing, resource)
	// First-seen inserts always apply, even when the record carries no
	// semantic fields.
	if existing != nil && len(changed) == 0 {
		// The replace above still counts: the incoming copy may carry a
		// fresher revision or timestamp worth retaining.
		return existing, nil, OutcomeNoChange
	}
	return existing, changed, OutcomeApplied
}

// applyDelete is the engine's delete-with-tombstone primitive. It records the
// tombstone, removes any live entry, and returns the previous snapshot if one
// existed.
func (sh *shard) applyDelete(id string, deletedAt time.Time) (Resource, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.tombstones[id] = deletedAt

	existing, ok := sh.live[id]
	if ok {
		delete(sh.live, id)
	}
	return existing, ok
}
