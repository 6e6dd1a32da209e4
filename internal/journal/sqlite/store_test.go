package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/kith/internal/journal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_AddList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	id1, err := store.Add(ctx, journal.Entry{
		Timestamp: base,
		Relation:  "liked",
		EntityID:  "p1",
		Action:    "on",
		Outcome:   journal.OutcomeRolledBack,
		Error:     "connection refused",
		Duration:  120,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	_, err = store.Add(ctx, journal.Entry{
		Timestamp: base.Add(time.Second),
		Relation:  "connected",
		EntityID:  "bob",
		Action:    "on",
		Outcome:   journal.OutcomeReclassified,
		Result:    "pending",
	})
	require.NoError(t, err)

	entries, err := store.List(ctx, journal.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first
	assert.Equal(t, "bob", entries[0].EntityID)
	assert.Equal(t, journal.OutcomeReclassified, entries[0].Outcome)
	assert.Equal(t, "pending", entries[0].Result)

	assert.Equal(t, id1, entries[1].ID)
	assert.Equal(t, "connection refused", entries[1].Error)
	assert.Equal(t, int64(120), entries[1].Duration)
	assert.Equal(t, base.UnixMilli(), entries[1].Timestamp.UnixMilli())
}

func TestStore_ListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, e := range []journal.Entry{
		{Relation: "liked", EntityID: "p1", Action: "on", Outcome: journal.OutcomeConfirmed},
		{Relation: "liked", EntityID: "p2", Action: "on", Outcome: journal.OutcomeRolledBack},
		{Relation: "connected", EntityID: "bob", Action: "off", Outcome: journal.OutcomeConfirmed},
	} {
		e.Timestamp = time.Now().Add(time.Duration(i) * time.Millisecond)
		_, err := store.Add(ctx, e)
		require.NoError(t, err)
	}

	entries, err := store.List(ctx, journal.QueryOptions{Relation: "liked"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.List(ctx, journal.QueryOptions{Outcome: journal.OutcomeConfirmed})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.List(ctx, journal.QueryOptions{EntityID: "bob"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "off", entries[0].Action)

	entries, err = store.List(ctx, journal.QueryOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "p2", entries[0].EntityID)

	count, err := store.Count(ctx, journal.QueryOptions{Relation: "connected"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_Prune(t *testing.T) {
	t.Run("keep last", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_, err := store.Add(ctx, journal.Entry{
				Timestamp: time.Now().Add(time.Duration(i) * time.Second),
				Relation:  "liked",
				EntityID:  string(rune('a' + i)),
				Action:    "on",
				Outcome:   journal.OutcomeConfirmed,
			})
			require.NoError(t, err)
		}

		deleted, err := store.Prune(ctx, journal.PruneOptions{KeepLast: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted)

		entries, err := store.List(ctx, journal.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "e", entries[0].EntityID)
		assert.Equal(t, "d", entries[1].EntityID)
	})

	t.Run("older than", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		_, err := store.Add(ctx, journal.Entry{
			Timestamp: time.Now().Add(-48 * time.Hour),
			Relation:  "liked", EntityID: "old", Action: "on", Outcome: journal.OutcomeConfirmed,
		})
		require.NoError(t, err)
		_, err = store.Add(ctx, journal.Entry{
			Relation: "liked", EntityID: "new", Action: "on", Outcome: journal.OutcomeConfirmed,
		})
		require.NoError(t, err)

		deleted, err := store.Prune(ctx, journal.PruneOptions{OlderThan: 24 * time.Hour})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		count, err := store.Count(ctx, journal.QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("no options is a no-op", func(t *testing.T) {
		store := newTestStore(t)
		deleted, err := store.Prune(context.Background(), journal.PruneOptions{})
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}

func TestStore_ClearAndClose(t *testing.T) {
	store, err := NewInMemory()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Add(ctx, journal.Entry{Relation: "liked", EntityID: "p", Action: "on", Outcome: journal.OutcomeConfirmed})
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx))
	count, err := store.Count(ctx, journal.QueryOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.Add(ctx, journal.Entry{})
	assert.ErrorIs(t, err, journal.ErrStoreClosed)
	_, err = store.List(ctx, journal.QueryOptions{})
	assert.ErrorIs(t, err, journal.ErrStoreClosed)
}

func TestStore_FilePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kith.db")
	ctx := context.Background()

	store, err := New(path)
	require.NoError(t, err)
	_, err = store.Add(ctx, journal.Entry{Relation: "liked", EntityID: "p", Action: "on", Outcome: journal.OutcomeConfirmed})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = New(path)
	require.NoError(t, err)
	defer store.Close()

	count, err := store.Count(ctx, journal.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
