package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testResource is a minimal Resource for exercising the engine without
// pulling in the concrete record types.
type testResource struct {
	id       string
	revision int64
	updated  time.Time
	fields   map[string]any
}

func (r *testResource) ResourceID() string    { return r.id }
func (r *testResource) RevisionNumber() int64 { return r.revision }
func (r *testResource) UpdatedAt() time.Time  { return r.updated }
func (r *testResource) Fields() map[string]any {
	return r.fields
}

func res(id string, revision int64, fields map[string]any) *testResource {
	if fields == nil {
		fields = map[string]any{}
	}
	return &testResource{
		id:       id,
		revision: revision,
		updated:  time.Unix(1700000000+revision, 0).UTC(),
		fields:   fields,
	}
}

// recordingNotifier captures emitted events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

const testKind = Kind("widgets")

func newTestEngine(t *testing.T) (*Engine, *recordingNotifier) {
	t.Helper()
	sink := &recordingNotifier{}
	engine := EngineConfig{
		Store:      NewStore(zap.NewNop(), []Kind{testKind, Kind("gadgets")}),
		Notifier:   sink,
		BaseLogger: zap.NewNop(),
	}.New()
	return engine, sink
}

func TestApplyUpdateFirstSeenEmitsCreate(t *testing.T) {
	engine, sink := newTestEngine(t)
	ctx := context.Background()

	outcome, err := engine.ApplyUpdate(ctx, testKind, res("a", 1, map[string]any{"name": "x", "status": "up"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, AfterUpdate, events[0].Type)
	assert.Equal(t, testKind, events[0].Kind)
	assert.Equal(t, "a", events[0].ResourceID)
	assert.Nil(t, events[0].Previous)
	assert.NotNil(t, events[0].Current)
	assert.ElementsMatch(t, []string{"name", "status"}, events[0].ChangedFields)
}

func TestApplyUpdateRevisionMonotonicity(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	revisions := []int64{3, 1, 7, 7, 2, 9}
	highest := int64(0)

	for _, revision := range revisions {
		_, err := engine.ApplyUpdate(ctx, testKind, res("a", revision, map[string]any{"n": revision}))
		require.NoError(t, err)

		if revision > highest {
			highest = revision
		}
		stored, found, err := engine.Store().Get(testKind, "a")
		require.NoError(t, err)
		require.True(t, found)
		assert.GreaterOrEqual(t, stored.RevisionNumber(), highest)
	}
}

func TestApplyUpdateUnorderedDelivery(t *testing.T) {
	engine, sink := newTestEngine(t)
	ctx := context.Background()

	outcome, err := engine.ApplyUpdate(ctx, testKind, res("a", 5, map[string]any{"n": 5}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = engine.ApplyUpdate(ctx, testKind, res("a", 3, map[string]any{"n": 3}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStaleRevision, outcome)

	outcome, err = engine.ApplyUpdate(ctx, testKind, res("a", 7, map[string]any{"n": 7}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	stored, found, err := engine.Store().Get(testKind, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(7), stored.RevisionNumber())

	// Only the revision 5 create and the revision 7 update notified.
	assert.Len(t, sink.Events(), 2)
}

func TestApplyUpdateEqualRevisionAccepted(t *testing.T) {
	engine, sink := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.ApplyUpdate(ctx, testKind, res("a", 2, map[string]any{"status": "up"}))
	require.NoError(t, err)

	// Same revision, changed field: servers sometimes forget to bump the
	// revision; the field diff still catches the change.
	outcome, err := engine.ApplyUpdate(ctx, testKind, res("a", 2, map[string]any{"status": "down"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, []string{"status"}, events[1].ChangedFields)
}

func TestApplyUpdateNoSemanticChangeSuppressed(t *testing.T) {
	engine, sink := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.ApplyUpdate(ctx, testKind, res("a", 1, map[string]any{"name": "x"}))
	require.NoError(t, err)

	// Only revision and timestamp moved.
	outcome, err := engine.ApplyUpdate(ctx, testKind, res("a", 2, map[string]any{"name": "x"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChange, outcome)

	// The fresher copy was still retained.
	stored, found, err := engine.Store().Get(testKind, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), stored.RevisionNumber())

	assert.Len(t, sink.Events(), 1)
}

func TestApplyUpdateChangedFieldsExact(t *testing.T) {
	engine, sink := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.ApplyUpdate(ctx, testKind, res("a", 1, map[string]any{"name": "x", "status": "up"}))
	require.NoError(t, err)

	outcome, err := engine.ApplyUpdate(ctx, testKind, res("a", 2, map[string]any{"name": "x", "status": "down"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, []string{"status"}, events[1].ChangedFields)
	assert.Equal(t, "up", events[1].Previous.Fields()["status"])
	assert.Equal(t, "down", events[1].Current.Fields()["status"])
}

func TestApplyDeleteTombstoneFinality(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.ApplyUpdate(ctx, testKind, res("a", 1, map[string]any{"name": "x"}))
	require.NoError(t, err)

	outcome, err := engine.ApplyDelete(ctx, testKind, "a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	// No revision, however high, resurrects a deleted id.
	for _, revision := range []int64{1, 2, 1000} {
		outcome, err = engine.ApplyUpdate(ctx, testKind, res("a", revision, map[string]any{"name": "y"}))
		require.NoError(t, err)
		assert.Equal(t, OutcomeStaleDeleted, outcome)

		_, found, err := engine.Store().Get(testKind, "a")
		require.NoError(t, err)
		assert.False(t, found)
	}
}

func TestApplyDeleteIdempotent(t *testing.T) {
	engine, sink := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.ApplyUpdate(ctx, testKind, res("a", 1, map[string]any{"name": "x"}))
	require.NoError(t, err)

	outcome, err := engine.ApplyDelete(ctx, testKind, "a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = engine.ApplyDelete(ctx, testKind, "a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	events := sink.Events()
	require.Len(t, events, 3)
	assert.NotNil(t, events[1].Previous, "first delete captures the live entry")
	assert.Nil(t, events[2].Previous, "second delete has no previous")

	count, err := engine.Store().TombstoneCount(testKind)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApplyDeleteNeverSeenResource(t *testing.T) {
	engine, sink := newTestEngine(t)
	ctx := context.Background()

	outcome, err := engine.ApplyDelete(ctx, testKind, "ghost")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, AfterDelete, events[0].Type)
	assert.Nil(t, events[0].Previous)

	// A late create for the ghost id is rejected.
	outcome, err = engine.ApplyUpdate(ctx, testKind, res("ghost", 1, map[string]any{"name": "x"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStaleDeleted, outcome)
}

func TestApplyUnknownKind(t *testing.T) {
	engine, sink := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.ApplyUpdate(ctx, Kind("bogus"), res("a", 1, nil))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = engine.ApplyDelete(ctx, Kind("bogus"), "a")
	assert.ErrorIs(t, err, ErrUnknownKind)

	assert.Empty(t, sink.Events())
}

func TestNotifierMayReadStoreFromHandler(t *testing.T) {
	store := NewStore(zap.NewNop(), []Kind{testKind})

	var sawCurrent bool
	engine := EngineConfig{
		Store:      store,
		BaseLogger: zap.NewNop(),
		Notifier: notifierFunc(func(_ context.Context, event Event) {
			stored, found, err := store.Get(event.Kind, event.ResourceID)
			if err == nil && found && stored.RevisionNumber() == event.Current.RevisionNumber() {
				sawCurrent = true
			}
		}),
	}.New()

	_, err := engine.ApplyUpdate(context.Background(), testKind, res("a", 1, map[string]any{"name": "x"}))
	require.NoError(t, err)
	assert.True(t, sawCurrent, "handler must observe the committed state")
}

type notifierFunc func(ctx context.Context, event Event)

func (f notifierFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }

func TestChangedFieldsNilOld(t *testing.T) {
	changed := changedFields(nil, res("a", 1, map[string]any{"b": 1, "a": 2}))
	assert.Equal(t, []string{"a", "b"}, changed)
}

func TestChangedFieldsSliceValues(t *testing.T) {
	old := res("a", 1, map[string]any{"ips": []string{"10.0.0.1"}})
	same := res("a", 2, map[string]any{"ips": []string{"10.0.0.1"}})
	different := res("a", 3, map[string]any{"ips": []string{"10.0.0.2"}})

	assert.Empty(t, changedFields(old, same))
	assert.Equal(t, []string{"ips"}, changedFields(old, different))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "applied", OutcomeApplied.String())
	assert.Equal(t, "stale_deleted", OutcomeStaleDeleted.String())
	assert.Equal(t, "stale_revision", OutcomeStaleRevision.String())
	assert.Equal(t, "no_change", OutcomeNoChange.String())
	assert.True(t, OutcomeApplied.Applied())
	assert.False(t, OutcomeNoChange.Applied())
}
