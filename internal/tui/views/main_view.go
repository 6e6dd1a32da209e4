package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/engine"
	"github.com/artpar/kith/internal/tui"
	"github.com/artpar/kith/internal/tui/components"
)

// Pane represents which pane is focused.
type Pane int

const (
	PaneFeed Pane = iota
	PanePeople
)

const notifyDuration = 2 * time.Second

// FeedLoader fetches the posts shown in the feed pane.
type FeedLoader func(ctx context.Context) ([]core.Post, error)

// MainView is the two-pane view: the feed next to people search.
type MainView struct {
	width        int
	height       int
	focusedPane  Pane
	feed         *components.FeedPanel
	search       *components.SearchPanel
	likes        *engine.Coordinator
	peers        *engine.Coordinator
	reconciler   *engine.Reconciler
	loadFeed     FeedLoader
	showHelp     bool
	notification string    // Temporary notification message
	notifyUntil  time.Time // When to clear notification
}

// clearNotificationMsg is sent to clear the notification.
type clearNotificationMsg struct{}

type feedLoadedMsg struct {
	posts []core.Post
	err   error
}

// settledMsg carries an authority answer back onto the event loop.
type settledMsg struct {
	coord      *engine.Coordinator
	ticket     *engine.Ticket
	settlement engine.Settlement
}

type searchDueMsg struct {
	token uint64
}

type searchResultMsg struct {
	token uint64
	query string
	rows  []core.SearchResult
	err   error
}

// NewMainView creates a new main view.
func NewMainView(likes *engine.Coordinator, reconciler *engine.Reconciler, loadFeed FeedLoader) *MainView {
	view := &MainView{
		likes:       likes,
		peers:       reconciler.Peers(),
		reconciler:  reconciler,
		loadFeed:    loadFeed,
		focusedPane: PaneFeed,
	}
	view.feed = components.NewFeedPanel(likes.State)
	view.search = components.NewSearchPanel(reconciler)
	view.feed.Focus()
	return view
}

// Init loads the feed.
func (v *MainView) Init() tea.Cmd {
	return v.refreshFeed()
}

// Update handles messages.
func (v *MainView) Update(msg tea.Msg) (tui.Component, tea.Cmd) {
	// Handle help overlay first
	if v.showHelp {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			if keyMsg.Type == tea.KeyEsc || string(keyMsg.Runes) == "?" {
				v.showHelp = false
			}
			return v, nil
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.updatePaneSizes()
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case components.RefreshFeedMsg:
		return v, v.refreshFeed()

	case feedLoadedMsg:
		if msg.err != nil {
			v.feed.SetError(msg.err)
			return v, v.notify("✗ Feed: " + msg.err.Error())
		}
		v.feed.SetPosts(msg.posts)
		return v, nil

	case components.ToggleLikeMsg:
		return v, v.begin(v.likes, msg.ID, false)

	case components.ToggleConnectionMsg:
		return v, v.begin(v.peers, msg.ID, false)

	case components.AcceptMsg:
		return v, v.begin(v.peers, msg.ID, true)

	case settledMsg:
		st := msg.coord.Settle(msg.ticket, msg.settlement)
		v.search.Refresh()
		if st.Err != nil {
			return v, v.notify("✗ " + st.Err.Error())
		}
		return v, nil

	case components.QueryChangedMsg:
		token, schedule := v.reconciler.SetQuery(msg.Query)
		v.search.Refresh()
		if !schedule {
			return v, nil
		}
		return v, tea.Tick(v.reconciler.Delay(), func(time.Time) tea.Msg {
			return searchDueMsg{token: token}
		})

	case searchDueMsg:
		query, ok := v.reconciler.Due(msg.token)
		if !ok {
			return v, nil
		}
		return v, tea.Batch(v.runSearch(msg.token, query), v.search.StartSpinner())

	case searchResultMsg:
		v.reconciler.Resolve(msg.token, msg.query, msg.rows, msg.err)
		v.search.Refresh()
		return v, nil

	case spinner.TickMsg:
		_, cmd := v.search.Update(msg)
		return v, cmd

	case components.CopyMsg:
		return v.handleCopy(msg.Content)

	case clearNotificationMsg:
		if !time.Now().Before(v.notifyUntil) {
			v.notification = ""
		}
		return v, nil
	}

	// Forward messages to focused pane
	return v.forwardToFocusedPane(msg)
}

// begin applies the optimistic change now and sends the request off the
// event loop. Repeated taps while a request is outstanding are dropped.
func (v *MainView) begin(coord *engine.Coordinator, id string, accept bool) tea.Cmd {
	var (
		ticket *engine.Ticket
		err    error
	)
	if accept {
		ticket, err = coord.BeginAccept(id)
	} else {
		ticket, err = coord.Begin(id)
	}
	v.search.Refresh()

	switch {
	case errors.Is(err, engine.ErrBusy):
		return nil
	case err != nil:
		return v.notify("✗ " + err.Error())
	}

	return func() tea.Msg {
		s := coord.Execute(context.Background(), ticket)
		return settledMsg{coord: coord, ticket: ticket, settlement: s}
	}
}

func (v *MainView) runSearch(token uint64, query string) tea.Cmd {
	return func() tea.Msg {
		rows, err := v.reconciler.Execute(context.Background(), query)
		return searchResultMsg{token: token, query: query, rows: rows, err: err}
	}
}

func (v *MainView) refreshFeed() tea.Cmd {
	if v.loadFeed == nil {
		return nil
	}
	v.feed.SetLoading(true)
	load := v.loadFeed
	return func() tea.Msg {
		posts, err := load(context.Background())
		return feedLoadedMsg{posts: posts, err: err}
	}
}

func (v *MainView) notify(text string) tea.Cmd {
	v.notification = text
	v.notifyUntil = time.Now().Add(notifyDuration)

	// Schedule clearing the notification
	return tea.Tick(notifyDuration, func(t time.Time) tea.Msg {
		return clearNotificationMsg{}
	})
}

func (v *MainView) handleCopy(content string) (tui.Component, tea.Cmd) {
	if err := clipboard.WriteAll(content); err != nil {
		return v, v.notify("✗ Copy failed")
	}
	return v, v.notify(fmt.Sprintf("✓ Copied %s", tui.Truncate(content, 32)))
}

func (v *MainView) handleKeyMsg(msg tea.KeyMsg) (tui.Component, tea.Cmd) {
	// Ctrl+C always quits
	if msg.Type == tea.KeyCtrlC {
		return v, tea.Quit
	}

	// While typing a query every key belongs to the search box.
	if v.search.IsEditing() {
		return v.forwardToFocusedPane(msg)
	}

	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab:
		v.cycleFocus()
		return v, nil

	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "q":
			return v, tea.Quit
		case "?":
			v.showHelp = true
			return v, nil
		case "1":
			v.focusPane(PaneFeed)
			return v, nil
		case "2":
			v.focusPane(PanePeople)
			return v, nil
		case "/":
			v.focusPane(PanePeople)
			return v, v.search.StartEditing()
		}
	}

	// Forward to focused pane for other keys
	return v.forwardToFocusedPane(msg)
}

func (v *MainView) forwardToFocusedPane(msg tea.Msg) (tui.Component, tea.Cmd) {
	var cmd tea.Cmd

	switch v.focusedPane {
	case PaneFeed:
		_, cmd = v.feed.Update(msg)
	case PanePeople:
		_, cmd = v.search.Update(msg)
	}

	return v, cmd
}

func (v *MainView) cycleFocus() {
	v.focusPane(Pane((int(v.focusedPane) + 1) % 2))
}

func (v *MainView) focusPane(pane Pane) {
	v.feed.Blur()
	v.search.Blur()

	v.focusedPane = pane
	switch pane {
	case PaneFeed:
		v.feed.Focus()
	case PanePeople:
		v.search.Focus()
	}
}

func (v *MainView) updatePaneSizes() {
	if v.width == 0 || v.height == 0 {
		return
	}

	// [Feed 55%] | [People 45%]
	feedWidth := v.width * 55 / 100
	if feedWidth < 30 {
		feedWidth = 30
	}
	peopleWidth := v.width - feedWidth

	// Reserve 2 lines for help bar + status bar
	totalHeight := v.height - 2
	if totalHeight < 2 {
		totalHeight = 2
	}

	v.feed.SetSize(feedWidth, totalHeight)
	v.search.SetSize(peopleWidth, totalHeight)
}

// View renders the view.
func (v *MainView) View() string {
	if v.width == 0 || v.height == 0 {
		return ""
	}

	if v.showHelp {
		return v.renderHelp()
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top, v.feed.View(), v.search.View())
	return lipgloss.JoinVertical(lipgloss.Left, panes, v.renderHelpBar(), v.renderStatusBar())
}

// renderHelpBar renders context-sensitive keyboard shortcuts.
func (v *MainView) renderHelpBar() string {
	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Bold(true)
	descStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))
	sepStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	sep := sepStyle.Render(" │ ")
	hint := func(k, desc string) string {
		return keyStyle.Render(k) + descStyle.Render(" "+desc)
	}

	var hints []string
	switch {
	case v.search.IsEditing():
		hints = []string{hint("Esc", "Done"), hint("Ctrl+U", "Clear")}
	case v.focusedPane == PaneFeed:
		hints = []string{
			hint("j/k", "Navigate"),
			hint("l", "Like"),
			hint("y", "Copy"),
			hint("r", "Refresh"),
		}
	default:
		hints = []string{
			hint("/", "Search"),
			hint("c", "Connect"),
			hint("a", "Accept"),
			hint("y", "Copy"),
		}
	}

	hints = append(hints,
		hint("Tab", "Pane"),
		hint("?", "Help"),
		hint("q", "Quit"),
	)

	barStyle := lipgloss.NewStyle().
		Width(v.width).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	return barStyle.Render(strings.Join(hints, sep))
}

// renderStatusBar renders the bottom status bar.
func (v *MainView) renderStatusBar() string {
	var items []string

	modeStyle := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1)
	if v.search.IsEditing() {
		modeStyle = modeStyle.
			Background(lipgloss.Color("214")).
			Foreground(lipgloss.Color("0"))
		items = append(items, modeStyle.Render("INSERT"))
	} else {
		modeStyle = modeStyle.
			Background(lipgloss.Color("34")).
			Foreground(lipgloss.Color("255"))
		items = append(items, modeStyle.Render("NORMAL"))
	}

	paneStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252")).
		Padding(0, 1)
	paneName := "Feed"
	if v.focusedPane == PanePeople {
		paneName = "People"
	}
	items = append(items, paneStyle.Render(paneName))

	countStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Padding(0, 1)
	items = append(items, countStyle.Render(fmt.Sprintf("%d posts, %d people",
		v.likes.Tracked(), v.peers.Tracked())))

	if v.notification != "" {
		notifyStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true).
			Padding(0, 1)
		if strings.HasPrefix(v.notification, "✗") {
			notifyStyle = notifyStyle.Foreground(lipgloss.Color("160"))
		}
		items = append(items, notifyStyle.Render(v.notification))
	}

	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Padding(0, 1)
	helpHint := helpStyle.Render("? help  q quit")

	leftContent := strings.Join(items, " ")
	spacerWidth := v.width - lipgloss.Width(leftContent) - lipgloss.Width(helpHint) - 2
	if spacerWidth < 0 {
		spacerWidth = 0
	}

	barStyle := lipgloss.NewStyle().
		Width(v.width).
		Background(lipgloss.Color("236"))

	return barStyle.Render(leftContent + strings.Repeat(" ", spacerWidth) + helpHint)
}

func (v *MainView) renderHelp() string {
	helpContent := []string{
		"╭──────────────────── kith help ────────────────────╮",
		"│                                                    │",
		"│  Navigation                                        │",
		"│    Tab                Switch pane                  │",
		"│    1 / 2              Jump to feed / people        │",
		"│    j / k              Move down/up                 │",
		"│                                                    │",
		"│  Feed                                              │",
		"│    l / Enter          Like or unlike               │",
		"│    y                  Copy post                    │",
		"│    r                  Refresh                      │",
		"│                                                    │",
		"│  People                                            │",
		"│    /                  Search                       │",
		"│    c / Enter          Connect or disconnect        │",
		"│    a                  Accept request               │",
		"│    y                  Copy username                │",
		"│    Esc                Clear search                 │",
		"│                                                    │",
		"│  General                                           │",
		"│    ?                  Toggle this help             │",
		"│    q / Ctrl+C         Quit                         │",
		"│                                                    │",
		"│           Press ? or Esc to close                  │",
		"╰────────────────────────────────────────────────────╯",
	}

	helpStyle := lipgloss.NewStyle().
		Width(v.width).
		Height(v.height).
		Align(lipgloss.Center, lipgloss.Center)

	return helpStyle.Render(strings.Join(helpContent, "\n"))
}

// Title returns the view title.
func (v *MainView) Title() string {
	return "kith"
}

// Focused returns true.
func (v *MainView) Focused() bool {
	return true
}

// Focus is a no-op for the main view.
func (v *MainView) Focus() {}

// Blur is a no-op for the main view.
func (v *MainView) Blur() {}

// SetSize sets the view dimensions.
func (v *MainView) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.updatePaneSizes()
}

// Width returns the view width.
func (v *MainView) Width() int {
	return v.width
}

// Height returns the view height.
func (v *MainView) Height() int {
	return v.height
}

// FocusedPane returns the currently focused pane.
func (v *MainView) FocusedPane() Pane {
	return v.focusedPane
}

// FocusPane focuses a specific pane.
func (v *MainView) FocusPane(pane Pane) {
	v.focusPane(pane)
}

// FeedPanel returns the feed pane.
func (v *MainView) FeedPanel() *components.FeedPanel {
	return v.feed
}

// SearchPanel returns the people pane.
func (v *MainView) SearchPanel() *components.SearchPanel {
	return v.search
}

// ShowingHelp returns true if the help overlay is visible.
func (v *MainView) ShowingHelp() bool {
	return v.showHelp
}

// Notification returns the current notification text.
func (v *MainView) Notification() string {
	return v.notification
}
