package views

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/kith/internal/app"
	"github.com/artpar/kith/internal/authority/authoritytest"
	"github.com/artpar/kith/internal/config"
	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/tui/components"
)

func newTestView(t *testing.T) (*MainView, *app.App, *authoritytest.Server) {
	t.Helper()
	srv := authoritytest.New()
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Authority.BaseURL = srv.URL
	cfg.Search.Debounce = "5ms"
	cfg.Storage.DataDir = t.TempDir()

	a, err := app.New(app.WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	v := NewMainView(a.Likes(), a.Search(), a.LoadFeed)
	v.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return v, a, srv
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// run executes cmd, feeds its message back into the view and returns the
// follow-up command.
func run(v *MainView, cmd tea.Cmd) tea.Cmd {
	if cmd == nil {
		return nil
	}
	_, next := v.Update(cmd())
	return next
}

func loadFeed(t *testing.T, v *MainView) {
	t.Helper()
	assert.Nil(t, run(v, v.Init()))
}

func TestMainView_StartsOnFeed(t *testing.T) {
	v, _, _ := newTestView(t)
	assert.Equal(t, PaneFeed, v.FocusedPane())
	assert.True(t, v.FeedPanel().Focused())
	assert.False(t, v.SearchPanel().Focused())
	assert.Equal(t, "kith", v.Title())
}

func TestMainView_LoadsFeed(t *testing.T) {
	v, _, srv := newTestView(t)
	srv.AddPost("p1", "ana", "hello world", 2)

	loadFeed(t, v)
	require.Len(t, v.FeedPanel().Posts(), 1)
	assert.Contains(t, v.View(), "hello world")
	assert.Contains(t, v.View(), "1 posts")
}

func TestMainView_LikeIsOptimistic(t *testing.T) {
	v, a, srv := newTestView(t)
	srv.AddPost("p1", "ana", "hello", 2)
	loadFeed(t, v)

	_, cmd := v.Update(runes("l"))
	require.NotNil(t, cmd)
	_, execute := v.Update(cmd())
	require.NotNil(t, execute)

	st := a.Likes().State("p1")
	assert.True(t, st.Displayed, "shown before the authority answers")
	assert.True(t, st.Busy)
	assert.Equal(t, 3, st.Count)

	// A second tap while in flight is dropped
	_, again := v.Update(components.ToggleLikeMsg{ID: "p1"})
	assert.Nil(t, again)

	assert.Nil(t, run(v, execute))
	st = a.Likes().State("p1")
	assert.True(t, st.Displayed)
	assert.False(t, st.Busy)
	assert.Equal(t, 3, srv.Likes("p1"))
	assert.Equal(t, 1, srv.RequestCount("POST", "/api/posts/p1/like"))
}

func TestMainView_FailedLikeNotifies(t *testing.T) {
	v, a, srv := newTestView(t)
	srv.AddPost("p1", "ana", "hello", 2)
	loadFeed(t, v)

	srv.FailNext(authoritytest.Failure{Status: 500, Message: "database down"})
	_, execute := v.Update(components.ToggleLikeMsg{ID: "p1"})
	require.NotNil(t, execute)

	tick := run(v, execute)
	assert.NotNil(t, tick)
	assert.Contains(t, v.Notification(), "✗")
	assert.Contains(t, v.Notification(), "database down")

	st := a.Likes().State("p1")
	assert.False(t, st.Displayed)
	assert.Equal(t, 2, st.Count)
}

func TestMainView_SearchAndConnect(t *testing.T) {
	v, a, srv := newTestView(t)
	srv.AddUser("1", "bob", "Bob", core.StatusNone)
	srv.AddUser("2", "carol", "Carol", core.StatusIncoming)

	v.Update(runes("/"))
	require.Equal(t, PanePeople, v.FocusedPane())
	require.True(t, v.SearchPanel().IsEditing())

	_, cmd := v.Update(components.QueryChangedMsg{Query: "o"})
	require.NotNil(t, cmd)

	// Timer fires, then the request resolves
	due := cmd()
	_, search := v.Update(due)
	require.NotNil(t, search)
	assert.True(t, a.Search().Loading())

	_, _ = v.Update(searchResultMsgFrom(t, search))
	assert.False(t, a.Search().Loading())
	require.Len(t, a.Search().Rows(), 2)

	v.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.False(t, v.SearchPanel().IsEditing())

	_, toggle := v.Update(runes("c"))
	require.NotNil(t, toggle)
	_, execute := v.Update(toggle())
	require.NotNil(t, execute)
	assert.Equal(t, core.StatusPending, a.Peers().State("bob").Status)
	run(v, execute)
	assert.Equal(t, core.StatusPending, srv.Status("bob"))

	v.Update(runes("j"))
	_, accept := v.Update(runes("a"))
	require.NotNil(t, accept)
	_, execute = v.Update(accept())
	require.NotNil(t, execute)
	assert.Equal(t, core.StatusConnected, a.Peers().State("carol").Status)
	run(v, execute)
	assert.Equal(t, core.StatusConnected, srv.Status("carol"))
}

func TestMainView_SupersededSearchIsIgnored(t *testing.T) {
	v, a, srv := newTestView(t)
	srv.AddUser("1", "bob", "Bob", core.StatusNone)

	_, first := v.Update(components.QueryChangedMsg{Query: "bo"})
	require.NotNil(t, first)
	_, second := v.Update(components.QueryChangedMsg{Query: "bob"})
	require.NotNil(t, second)

	_, stale := v.Update(first())
	assert.Nil(t, stale, "superseded timer issues no request")

	_, fresh := v.Update(second())
	require.NotNil(t, fresh)
	_, _ = v.Update(searchResultMsgFrom(t, fresh))
	assert.Equal(t, "bob", a.Search().Query())
	assert.Len(t, a.Search().Rows(), 1)

	// Clearing the query empties the list at once
	_, cmd := v.Update(components.QueryChangedMsg{Query: ""})
	assert.Nil(t, cmd)
	assert.Empty(t, a.Search().Rows())
}

func TestMainView_AcceptWithoutRequestNotifies(t *testing.T) {
	v, _, srv := newTestView(t)
	srv.AddUser("1", "bob", "Bob", core.StatusNone)

	_, cmd := v.Update(components.AcceptMsg{ID: "bob"})
	assert.NotNil(t, cmd)
	assert.Contains(t, v.Notification(), "no incoming request")
}

func TestMainView_KeyHandling(t *testing.T) {
	v, _, _ := newTestView(t)

	v.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PanePeople, v.FocusedPane())
	v.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PaneFeed, v.FocusedPane())

	v.Update(runes("2"))
	assert.Equal(t, PanePeople, v.FocusedPane())
	v.Update(runes("1"))
	assert.Equal(t, PaneFeed, v.FocusedPane())

	v.Update(runes("?"))
	assert.True(t, v.ShowingHelp())
	assert.Contains(t, v.View(), "kith help")
	v.Update(runes("j"))
	assert.True(t, v.ShowingHelp())
	v.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, v.ShowingHelp())

	_, cmd := v.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestMainView_EditingCapturesKeys(t *testing.T) {
	v, _, _ := newTestView(t)
	v.Update(runes("/"))

	_, cmd := v.Update(runes("q"))
	assert.NotNil(t, cmd, "q is typed into the search box")
	assert.Equal(t, "q", v.SearchPanel().Query())
	assert.Contains(t, v.View(), "INSERT")

	_, cmd = v.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestMainView_NotificationClears(t *testing.T) {
	v, _, _ := newTestView(t)
	v.notify("✓ done")
	v.Update(clearNotificationMsg{})
	assert.Equal(t, "✓ done", v.Notification(), "kept until its time is up")

	v.notifyUntil = v.notifyUntil.Add(-notifyDuration)
	v.Update(clearNotificationMsg{})
	assert.Empty(t, v.Notification())
}

// searchResultMsgFrom runs the batched search command and returns the
// search result, skipping the spinner tick.
func searchResultMsgFrom(t *testing.T, cmd tea.Cmd) searchResultMsg {
	t.Helper()
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			if res, ok := c().(searchResultMsg); ok {
				return res
			}
		}
	}
	res, ok := msg.(searchResultMsg)
	require.True(t, ok, "expected a search result, got %T", msg)
	return res
}
