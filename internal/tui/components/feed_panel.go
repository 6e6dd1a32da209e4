package components

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/tui"
)

// StateFunc returns the projected relation state for an entity.
type StateFunc func(id string) core.RelationState

// FeedPanel lists posts with their like state.
type FeedPanel struct {
	title   string
	focused bool
	width   int
	height  int
	posts   []core.Post
	state   StateFunc
	cursor  int
	offset  int
	loading bool
	err     error
}

// NewFeedPanel creates a feed panel that renders like state through state.
func NewFeedPanel(state StateFunc) *FeedPanel {
	return &FeedPanel{
		title: "Feed",
		state: state,
	}
}

// Init initializes the component.
func (p *FeedPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (p *FeedPanel) Update(msg tea.Msg) (tui.Component, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height

	case tui.FocusMsg:
		p.focused = true

	case tui.BlurMsg:
		p.focused = false

	case tea.KeyMsg:
		if p.focused {
			return p.handleKeyMsg(msg)
		}
	}

	return p, nil
}

func (p *FeedPanel) handleKeyMsg(msg tea.KeyMsg) (tui.Component, tea.Cmd) {
	switch msg.Type {
	case tea.KeyDown:
		p.moveCursor(1)
	case tea.KeyUp:
		p.moveCursor(-1)
	case tea.KeyEnter:
		return p, p.toggleSelected()
	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "j":
			p.moveCursor(1)
		case "k":
			p.moveCursor(-1)
		case "g":
			p.cursor = 0
			p.offset = 0
		case "G":
			p.moveCursor(len(p.posts))
		case "l", " ":
			return p, p.toggleSelected()
		case "r":
			return p, func() tea.Msg { return RefreshFeedMsg{} }
		case "y":
			if post, ok := p.Selected(); ok {
				content := post.Body
				return p, func() tea.Msg { return CopyMsg{Content: content} }
			}
		}
	}

	return p, nil
}

func (p *FeedPanel) toggleSelected() tea.Cmd {
	post, ok := p.Selected()
	if !ok {
		return nil
	}
	id := post.ID
	return func() tea.Msg {
		return ToggleLikeMsg{ID: id}
	}
}

func (p *FeedPanel) moveCursor(delta int) {
	p.cursor += delta
	if p.cursor >= len(p.posts) {
		p.cursor = len(p.posts) - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}

	visible := p.visibleRows()
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if visible > 0 && p.cursor >= p.offset+visible {
		p.offset = p.cursor - visible + 1
	}
}

// Each post takes two lines.
func (p *FeedPanel) visibleRows() int {
	n := (p.height - 3) / 2
	if n < 1 {
		return 1
	}
	return n
}

// View renders the component.
func (p *FeedPanel) View() string {
	if p.width == 0 || p.height == 0 {
		return ""
	}

	styles := tui.DefaultStyles()
	innerWidth := p.width - 2
	title := tui.RenderTitle(p.title, innerWidth, p.focused)

	var lines []string
	switch {
	case p.loading && len(p.posts) == 0:
		lines = append(lines, styles.Dim.Render("Loading feed..."))
	case p.err != nil:
		lines = append(lines, styles.Error.Render(tui.Truncate("✗ "+p.err.Error(), innerWidth)))
	case len(p.posts) == 0:
		lines = append(lines, styles.Dim.Render("No posts"))
	}

	end := p.offset + p.visibleRows()
	if end > len(p.posts) {
		end = len(p.posts)
	}
	for i := p.offset; i < end; i++ {
		lines = append(lines, p.renderPost(p.posts[i], i == p.cursor, innerWidth)...)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"))
	return tui.RenderBorder(content, p.width, p.height, p.focused)
}

func (p *FeedPanel) renderPost(post core.Post, selected bool, width int) []string {
	styles := tui.DefaultStyles()
	st := p.stateOf(post)

	marker := "  "
	if selected {
		marker = "▸ "
	}
	like := tui.RenderLike(st)
	author := styles.Title.Render("@" + post.Author)
	header := marker + author + "  " + like
	if st.Err != nil {
		header += "  " + styles.Error.Render("✗ "+st.Err.Error())
	}

	body := "  " + tui.Truncate(strings.ReplaceAll(post.Body, "\n", " "), width-2)
	if selected {
		body = styles.Selected.Render(tui.PadRight(body, width))
	} else {
		body = styles.Dim.Render(body)
	}
	return []string{header, body}
}

func (p *FeedPanel) stateOf(post core.Post) core.RelationState {
	if p.state != nil {
		return p.state(post.ID)
	}
	st := core.RelationState{ID: post.ID, Count: post.Likes, HasCount: true}
	if post.Liked != nil {
		st.Displayed = *post.Liked
	}
	return st
}

// SetPosts replaces the listed posts, keeping the cursor in range.
func (p *FeedPanel) SetPosts(posts []core.Post) {
	p.posts = posts
	p.loading = false
	p.err = nil
	p.moveCursor(0)
}

// SetLoading marks the feed as being fetched.
func (p *FeedPanel) SetLoading(loading bool) {
	p.loading = loading
}

// SetError shows a feed load failure.
func (p *FeedPanel) SetError(err error) {
	p.loading = false
	p.err = err
}

// Posts returns the listed posts.
func (p *FeedPanel) Posts() []core.Post {
	return p.posts
}

// Selected returns the post under the cursor.
func (p *FeedPanel) Selected() (core.Post, bool) {
	if p.cursor < 0 || p.cursor >= len(p.posts) {
		return core.Post{}, false
	}
	return p.posts[p.cursor], true
}

// Cursor returns the cursor position.
func (p *FeedPanel) Cursor() int {
	return p.cursor
}

// Title returns the component title.
func (p *FeedPanel) Title() string {
	return p.title
}

// Focused returns true if the component is focused.
func (p *FeedPanel) Focused() bool {
	return p.focused
}

// Focus sets the component as focused.
func (p *FeedPanel) Focus() {
	p.focused = true
}

// Blur removes focus from the component.
func (p *FeedPanel) Blur() {
	p.focused = false
}

// SetSize sets the component dimensions.
func (p *FeedPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	p.moveCursor(0)
}

// Width returns the component width.
func (p *FeedPanel) Width() int {
	return p.width
}

// Height returns the component height.
func (p *FeedPanel) Height() int {
	return p.height
}
