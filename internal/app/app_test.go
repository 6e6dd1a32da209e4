package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/artpar/kith/internal/authority"
	"github.com/artpar/kith/internal/authority/authoritytest"
	"github.com/artpar/kith/internal/config"
	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/journal"
)

func newTestApp(t *testing.T, backend string) (*App, *authoritytest.Server) {
	t.Helper()
	srv := authoritytest.New()
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Authority.BaseURL = srv.URL
	cfg.Storage.Backend = backend
	cfg.Storage.DataDir = t.TempDir()

	a, err := New(WithConfig(cfg), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, srv
}

func TestNew_Defaults(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			a, srv := newTestApp(t, backend)

			assert.Equal(t, authority.Origin(srv.URL), a.Origin())
			assert.NotNil(t, a.Likes())
			assert.NotNil(t, a.Peers())
			assert.NotNil(t, a.Search())
			assert.Same(t, a.Peers(), a.Search().Peers())
			assert.NotNil(t, a.Journal())

			likes, err := a.Coordinator(core.RelationLiked)
			require.NoError(t, err)
			assert.Same(t, a.Likes(), likes)

			_, err = a.Coordinator("blocked")
			assert.Error(t, err)
			_, err = a.Cache("blocked")
			assert.Error(t, err)
		})
	}
}

func TestApp_LikeFlowPersists(t *testing.T) {
	srv := authoritytest.New()
	defer srv.Close()
	srv.AddPost("p1", "ana", "hello", 3)

	cfg := config.Default()
	cfg.Authority.BaseURL = srv.URL
	cfg.Storage.DataDir = t.TempDir()

	a, err := New(WithConfig(cfg))
	require.NoError(t, err)

	posts, err := a.LoadFeed(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)

	st, err := a.Likes().Toggle(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, st.Displayed)
	assert.Equal(t, 4, st.Count)
	assert.Equal(t, 4, srv.Likes("p1"))

	entries, err := a.Journal().List(context.Background(), journal.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.OutcomeConfirmed, entries[0].Outcome)
	require.NoError(t, a.Close())

	// Reopen over the same data directory with no server value
	reopened, err := New(WithConfig(cfg))
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.Likes().State("p1").Displayed)

	cache, err := reopened.Cache(core.RelationLiked)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, cache.IDs())
}

func TestApp_FailedLikeRollsBack(t *testing.T) {
	a, srv := newTestApp(t, config.BackendSQLite)
	srv.AddPost("p1", "ana", "hello", 3)

	_, err := a.LoadFeed(context.Background())
	require.NoError(t, err)

	srv.FailNext(authoritytest.Failure{Status: 503, Message: "unavailable"})
	st, err := a.Likes().Toggle(context.Background(), "p1")
	require.Error(t, err)
	assert.False(t, st.Displayed)
	assert.Equal(t, 3, st.Count)

	cache, err := a.Cache(core.RelationLiked)
	require.NoError(t, err)
	assert.False(t, cache.Has("p1"))
}

func TestApp_SearchAndConnect(t *testing.T) {
	a, srv := newTestApp(t, config.BackendBadger)
	srv.AddUser("1", "bob", "Bob", core.StatusNone)
	srv.AddUser("2", "bobby", "Bobby", core.StatusPending)

	require.NoError(t, a.Search().Search(context.Background(), "bob"))
	rows := a.Search().Rows()
	require.Len(t, rows, 2)

	st, err := a.Search().Toggle(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, st.Status)

	// Toggling an outstanding request withdraws it
	st, err = a.Search().Toggle(context.Background(), "bobby")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNone, st.Status)
	assert.Equal(t, core.StatusNone, srv.Status("bobby"))
}

func TestApp_LoadFeedForgetsRemovedPosts(t *testing.T) {
	a, srv := newTestApp(t, config.BackendSQLite)
	srv.AddPost("p1", "ana", "first", 1)
	srv.AddPost("p2", "ben", "second", 2)

	_, err := a.LoadFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, a.Likes().Tracked())

	ticket, err := a.Likes().Begin("p1")
	require.NoError(t, err)

	srv.RemovePost("p1")
	srv.RemovePost("p2")
	srv.AddPost("p3", "cy", "third", 0)

	posts, err := a.LoadFeed(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	// p1 has a like in flight, p2 is gone
	assert.Equal(t, 2, a.Likes().Tracked())

	a.Likes().Settle(ticket, a.Likes().Execute(context.Background(), ticket))
	_, err = a.LoadFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, a.Likes().Tracked())
	assert.Equal(t, 0, a.Likes().State("p3").Count)
}

func TestApp_InjectedDependencies(t *testing.T) {
	srv := authoritytest.New()
	defer srv.Close()

	cfg := config.Default()
	cfg.Authority.BaseURL = srv.URL
	cfg.Storage.DataDir = t.TempDir()

	base, err := New(WithConfig(cfg))
	require.NoError(t, err)
	defer base.Close()

	a, err := New(
		WithConfig(cfg),
		WithAuthority(base.Authority(), "custom.origin"),
		WithJournal(base.Journal()),
		WithStore(base.store),
	)
	require.NoError(t, err)
	assert.Equal(t, "custom.origin", a.Origin())
	// Nothing was opened, so nothing is closed
	assert.NoError(t, a.Close())
	assert.NotNil(t, base.Journal())
}
