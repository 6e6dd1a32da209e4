package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/engine"
	"github.com/artpar/kith/internal/tui"
)

// SearchSource supplies the rows the search panel renders.
type SearchSource interface {
	Rows() []engine.Row
	Loading() bool
	Err() error
}

type searchKeyMap struct {
	Edit    key.Binding
	Done    key.Binding
	Clear   key.Binding
	Down    key.Binding
	Up      key.Binding
	Connect key.Binding
	Accept  key.Binding
	Copy    key.Binding
}

func defaultSearchKeys() searchKeyMap {
	return searchKeyMap{
		Edit:    key.NewBinding(key.WithKeys("/", "i"), key.WithHelp("/", "search")),
		Done:    key.NewBinding(key.WithKeys("esc", "enter"), key.WithHelp("esc", "done")),
		Clear:   key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "clear")),
		Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Connect: key.NewBinding(key.WithKeys("enter", "c"), key.WithHelp("c", "connect")),
		Accept:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "accept")),
		Copy:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy username")),
	}
}

// SearchPanel is the peer search box with its result list.
type SearchPanel struct {
	title   string
	focused bool
	width   int
	height  int
	input   textinput.Model
	spinner spinner.Model
	source  SearchSource
	keys    searchKeyMap
	cursor  int
	offset  int
}

// NewSearchPanel creates a search panel that renders rows from source.
func NewSearchPanel(source SearchSource) *SearchPanel {
	input := textinput.New()
	input.Placeholder = "Search people..."
	input.Prompt = "/ "
	input.CharLimit = 64

	return &SearchPanel{
		title:   "People",
		input:   input,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		source:  source,
		keys:    defaultSearchKeys(),
	}
}

// Init initializes the component.
func (p *SearchPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (p *SearchPanel) Update(msg tea.Msg) (tui.Component, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.SetSize(msg.Width, msg.Height)

	case tui.FocusMsg:
		p.focused = true

	case tui.BlurMsg:
		p.Blur()

	case spinner.TickMsg:
		// Stop ticking once the search settles.
		if p.source == nil || !p.source.Loading() {
			return p, nil
		}
		var cmd tea.Cmd
		p.spinner, cmd = p.spinner.Update(msg)
		return p, cmd

	case tea.KeyMsg:
		if !p.focused {
			return p, nil
		}
		if p.input.Focused() {
			return p.handleEditKey(msg)
		}
		return p.handleKeyMsg(msg)

	default:
		if p.input.Focused() {
			var cmd tea.Cmd
			p.input, cmd = p.input.Update(msg)
			return p, cmd
		}
	}

	return p, nil
}

func (p *SearchPanel) handleEditKey(msg tea.KeyMsg) (tui.Component, tea.Cmd) {
	switch {
	case key.Matches(msg, p.keys.Done):
		p.input.Blur()
		return p, nil
	case key.Matches(msg, p.keys.Clear):
		return p, p.setQuery("")
	}

	before := p.input.Value()
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	if p.input.Value() == before {
		return p, cmd
	}
	return p, tea.Batch(cmd, p.queryChanged())
}

func (p *SearchPanel) handleKeyMsg(msg tea.KeyMsg) (tui.Component, tea.Cmd) {
	switch {
	case key.Matches(msg, p.keys.Edit):
		return p, p.input.Focus()
	case key.Matches(msg, p.keys.Down):
		p.moveCursor(1)
	case key.Matches(msg, p.keys.Up):
		p.moveCursor(-1)
	case key.Matches(msg, p.keys.Connect):
		if row, ok := p.Selected(); ok {
			id := row.Key()
			return p, func() tea.Msg { return ToggleConnectionMsg{ID: id} }
		}
	case key.Matches(msg, p.keys.Accept):
		if row, ok := p.Selected(); ok {
			id := row.Key()
			return p, func() tea.Msg { return AcceptMsg{ID: id} }
		}
	case key.Matches(msg, p.keys.Copy):
		if row, ok := p.Selected(); ok && row.Username != "" {
			content := row.Username
			return p, func() tea.Msg { return CopyMsg{Content: content} }
		}
	case msg.Type == tea.KeyEsc:
		if p.input.Value() != "" {
			return p, p.setQuery("")
		}
	}
	return p, nil
}

func (p *SearchPanel) setQuery(q string) tea.Cmd {
	if p.input.Value() == q {
		return nil
	}
	p.input.SetValue(q)
	return p.queryChanged()
}

func (p *SearchPanel) queryChanged() tea.Cmd {
	q := p.input.Value()
	p.cursor = 0
	p.offset = 0
	return func() tea.Msg {
		return QueryChangedMsg{Query: q}
	}
}

// StartSpinner starts the loading indicator.
func (p *SearchPanel) StartSpinner() tea.Cmd {
	return p.spinner.Tick
}

func (p *SearchPanel) rows() []engine.Row {
	if p.source == nil {
		return nil
	}
	return p.source.Rows()
}

func (p *SearchPanel) moveCursor(delta int) {
	n := len(p.rows())
	p.cursor += delta
	if p.cursor >= n {
		p.cursor = n - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}

	visible := p.visibleRows()
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+visible {
		p.offset = p.cursor - visible + 1
	}
}

func (p *SearchPanel) visibleRows() int {
	// Title, input, separator and the border.
	n := p.height - 5
	if n < 1 {
		return 1
	}
	return n
}

// View renders the component.
func (p *SearchPanel) View() string {
	if p.width == 0 || p.height == 0 {
		return ""
	}

	styles := tui.DefaultStyles()
	innerWidth := p.width - 2
	p.input.Width = innerWidth - lipgloss.Width(p.input.Prompt) - 1

	title := tui.RenderTitle(p.title, innerWidth, p.focused)
	lines := []string{p.input.View(), styles.Dim.Render(strings.Repeat("─", innerWidth))}

	rows := p.rows()
	switch {
	case p.source != nil && p.source.Loading():
		lines = append(lines, p.spinner.View()+styles.Dim.Render(" Searching..."))
	case p.source != nil && p.source.Err() != nil:
		lines = append(lines, styles.Error.Render(tui.Truncate("✗ "+p.source.Err().Error(), innerWidth)))
	case len(rows) == 0 && strings.TrimSpace(p.input.Value()) != "":
		lines = append(lines, styles.Dim.Render("No matches"))
	case len(rows) == 0:
		lines = append(lines, styles.Dim.Render("Press / to search"))
	}

	end := p.offset + p.visibleRows()
	if end > len(rows) {
		end = len(rows)
	}
	for i := p.offset; i < end; i++ {
		lines = append(lines, p.renderRow(rows[i], i == p.cursor, innerWidth))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"))
	return tui.RenderBorder(content, p.width, p.height, p.focused)
}

func (p *SearchPanel) renderRow(row engine.Row, selected bool, width int) string {
	styles := tui.DefaultStyles()

	name := row.DisplayName
	if name == "" {
		name = row.Username
	}
	who := fmt.Sprintf("%s @%s", name, row.Username)
	status := tui.RenderStatus(row.Status, row.Busy)
	if row.Err != nil {
		status += " " + styles.Error.Render("✗")
	}

	avail := width - lipgloss.Width(status) - 3
	line := "  " + tui.PadRight(who, avail) + " " + status
	if selected {
		line = styles.Selected.Render("▸ " + tui.PadRight(who, avail) + " " + status)
	}
	return line
}

// Selected returns the row under the cursor.
func (p *SearchPanel) Selected() (engine.Row, bool) {
	rows := p.rows()
	if p.cursor < 0 || p.cursor >= len(rows) {
		return engine.Row{}, false
	}
	return rows[p.cursor], true
}

// SelectedStatus returns the projected status of the row under the cursor.
func (p *SearchPanel) SelectedStatus() core.Status {
	row, ok := p.Selected()
	if !ok {
		return core.StatusUnknown
	}
	return row.Status
}

// Refresh clamps the cursor after the rows changed.
func (p *SearchPanel) Refresh() {
	p.moveCursor(0)
}

// IsEditing reports whether the search box has keyboard focus.
func (p *SearchPanel) IsEditing() bool {
	return p.input.Focused()
}

// StartEditing gives the search box keyboard focus.
func (p *SearchPanel) StartEditing() tea.Cmd {
	return p.input.Focus()
}

// Query returns the text in the search box.
func (p *SearchPanel) Query() string {
	return p.input.Value()
}

// Cursor returns the cursor position.
func (p *SearchPanel) Cursor() int {
	return p.cursor
}

// Title returns the component title.
func (p *SearchPanel) Title() string {
	return p.title
}

// Focused returns true if the component is focused.
func (p *SearchPanel) Focused() bool {
	return p.focused
}

// Focus sets the component as focused.
func (p *SearchPanel) Focus() {
	p.focused = true
}

// Blur removes focus from the component and leaves the search box.
func (p *SearchPanel) Blur() {
	p.focused = false
	p.input.Blur()
}

// SetSize sets the component dimensions.
func (p *SearchPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	p.moveCursor(0)
}

// Width returns the component width.
func (p *SearchPanel) Width() int {
	return p.width
}

// Height returns the component height.
func (p *SearchPanel) Height() int {
	return p.height
}
