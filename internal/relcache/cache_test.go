package relcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/artpar/kith/internal/kv"
	"github.com/artpar/kith/internal/kv/sqlite"
)

const origin = "social.example.com"

func newStore(t *testing.T) kv.Store {
	t.Helper()
	store, err := sqlite.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCache_AddRemove(t *testing.T) {
	store := newStore(t)
	c := New(store, origin, "kith.relations.liked")

	assert.False(t, c.Has("p1"))

	require.NoError(t, c.Add("p1"))
	assert.True(t, c.Has("p1"))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Remove("p1"))
	assert.False(t, c.Has("p1"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_SurvivesReload(t *testing.T) {
	store := newStore(t)
	c := New(store, origin, "kith.relations.liked")
	require.NoError(t, c.Add("p1"))
	require.NoError(t, c.Add("p2"))
	require.NoError(t, c.Remove("p1"))

	fresh := New(store, origin, "kith.relations.liked")
	assert.False(t, fresh.Has("p1"))
	assert.True(t, fresh.Has("p2"))

	raw, err := store.Get(context.Background(), Key(origin, "kith.relations.liked"))
	require.NoError(t, err)
	assert.JSONEq(t, `["p2"]`, raw)
}

func TestCache_ScopedByOriginAndNamespace(t *testing.T) {
	store := newStore(t)
	liked := New(store, origin, "kith.relations.liked")
	require.NoError(t, liked.Add("x"))

	assert.False(t, New(store, origin, "kith.relations.connected").Has("x"))
	assert.False(t, New(store, "other.example.org", "kith.relations.liked").Has("x"))
}

func TestCache_MalformedDataYieldsEmpty(t *testing.T) {
	cases := map[string]string{
		"not json":      "{{{",
		"wrong shape":   `{"ids":["a"]}`,
		"wrong element": `[1,2,3]`,
		"empty string":  "",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			key := Key(origin, "kith.relations.liked")
			require.NoError(t, store.Set(context.Background(), key, raw))

			c := New(store, origin, "kith.relations.liked", WithLogger(zaptest.NewLogger(t)))
			assert.Equal(t, 0, c.Len())

			// First write replaces the corrupted value
			require.NoError(t, c.Add("p1"))
			got, err := store.Get(context.Background(), key)
			require.NoError(t, err)
			assert.JSONEq(t, `["p1"]`, got)
		})
	}
}

func TestCache_DropsDuplicatesAndBlanks(t *testing.T) {
	store := newStore(t)
	key := Key(origin, "ns")
	require.NoError(t, store.Set(context.Background(), key, `["a","","a","b"]`))

	c := New(store, origin, "ns")
	assert.Equal(t, []string{"a", "b"}, c.IDs())
}

func TestCache_ClosedStoreDegrades(t *testing.T) {
	store, err := sqlite.NewInMemory()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	c := New(store, origin, "ns")
	assert.Equal(t, 0, c.Len())

	err = c.Add("p1")
	assert.ErrorIs(t, err, kv.ErrStoreClosed)
	// The in-memory view still reflects the write
	assert.True(t, c.Has("p1"))
}

func TestCache_TrimsOldest(t *testing.T) {
	store := newStore(t)
	c := New(store, origin, "ns", WithMaxEntries(3))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, c.Add(id))
	}
	// Re-confirming "a" makes it the most recent
	require.NoError(t, c.Add("a"))
	require.NoError(t, c.Add("d"))

	assert.Equal(t, []string{"c", "a", "d"}, c.IDs())
	assert.False(t, c.Has("b"))

	fresh := New(store, origin, "ns", WithMaxEntries(3))
	assert.Equal(t, []string{"c", "a", "d"}, fresh.IDs())
}

func TestCache_TrimOnLoad(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Set(context.Background(), Key(origin, "ns"), `["a","b","c","d"]`))

	c := New(store, origin, "ns", WithMaxEntries(2))
	assert.Equal(t, []string{"c", "d"}, c.IDs())
}

func TestCache_Clear(t *testing.T) {
	store := newStore(t)
	c := New(store, origin, "ns")
	require.NoError(t, c.Add("a"))

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())

	_, err := store.Get(context.Background(), Key(origin, "ns"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestCache_Reload(t *testing.T) {
	store := newStore(t)
	a := New(store, origin, "ns")
	b := New(store, origin, "ns")

	require.NoError(t, a.Add("x"))
	assert.False(t, b.Has("x"))

	b.Reload()
	assert.True(t, b.Has("x"))
}
