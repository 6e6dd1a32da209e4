package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/artpar/kith/internal/core"
)

// Component is the interface for all TUI panes.
type Component interface {
	// Init initializes the component.
	Init() tea.Cmd

	// Update handles messages and returns the updated component.
	Update(msg tea.Msg) (Component, tea.Cmd)

	// View renders the component.
	View() string

	// Title returns the component title.
	Title() string

	// Focused returns true if the component is focused.
	Focused() bool

	// Focus sets the component as focused.
	Focus()

	// Blur removes focus from the component.
	Blur()

	// SetSize sets the component dimensions.
	SetSize(width, height int)

	// Width returns the component width.
	Width() int

	// Height returns the component height.
	Height() int
}

// FocusMsg is sent when a component should gain focus.
type FocusMsg struct{}

// BlurMsg is sent when a component should lose focus.
type BlurMsg struct{}

// Colors shared by every pane.
var (
	ColorAccent  = lipgloss.Color("62")
	ColorMuted   = lipgloss.Color("240")
	ColorTitle   = lipgloss.Color("229")
	ColorOK      = lipgloss.Color("34")
	ColorWarn    = lipgloss.Color("214")
	ColorError   = lipgloss.Color("160")
	ColorLiked   = lipgloss.Color("204")
	ColorNeutral = lipgloss.Color("252")
)

// Styles groups the styles panes render with.
type Styles struct {
	Focused   lipgloss.Style
	Unfocused lipgloss.Style
	Title     lipgloss.Style
	Selected  lipgloss.Style
	Dim       lipgloss.Style
	Error     lipgloss.Style
}

// DefaultStyles returns default styling.
func DefaultStyles() Styles {
	return Styles{
		Focused: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent),
		Unfocused: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorTitle),
		Selected: lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Bold(true),
		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")),
		Error: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true),
	}
}

// StatusStyle returns the style for a connection status label.
func StatusStyle(s core.Status) lipgloss.Style {
	style := lipgloss.NewStyle()
	switch s {
	case core.StatusConnected:
		return style.Foreground(ColorOK)
	case core.StatusPending:
		return style.Foreground(ColorWarn)
	case core.StatusIncoming:
		return style.Foreground(ColorAccent).Bold(true)
	case core.StatusSelf:
		return style.Foreground(ColorMuted).Italic(true)
	default:
		return style.Foreground(ColorNeutral)
	}
}

// RenderStatus renders a status label, with a marker while busy.
func RenderStatus(s core.Status, busy bool) string {
	label := s.Label()
	if busy {
		label += " …"
	}
	return StatusStyle(s).Render(label)
}

// RenderLike renders the like marker and counter for a post.
func RenderLike(st core.RelationState) string {
	heart := "♡"
	style := lipgloss.NewStyle().Foreground(ColorNeutral)
	if st.Displayed {
		heart = "♥"
		style = style.Foreground(ColorLiked)
	}
	text := heart
	if st.HasCount {
		text = fmt.Sprintf("%s %d", heart, st.Count)
	}
	if st.Busy {
		text += " …"
	}
	return style.Render(text)
}

// RenderTitle renders a title bar.
func RenderTitle(title string, width int, focused bool) string {
	style := lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Bold(true)

	if focused {
		style = style.Foreground(ColorTitle).
			Background(ColorAccent)
	} else {
		style = style.Foreground(ColorNeutral).
			Background(lipgloss.Color("238"))
	}

	return style.Render(title)
}

// RenderBorder renders content with a border.
func RenderBorder(content string, width, height int, focused bool) string {
	styles := DefaultStyles()
	style := styles.Unfocused
	if focused {
		style = styles.Focused
	}
	// The border takes one cell on each side.
	if width > 2 {
		style = style.Width(width - 2)
	}
	if height > 2 {
		style = style.Height(height - 2)
	}
	return style.Render(content)
}

// Truncate shortens s to width runes, marking the cut with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}

// PadRight pads s with spaces to width runes, truncating if longer.
func PadRight(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return Truncate(s, width)
	}
	return s + strings.Repeat(" ", width-n)
}
