package harness

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/artpar/kith/internal/app"
	"github.com/artpar/kith/internal/config"
	"github.com/artpar/kith/internal/tui/views"
)

// cmdWait bounds how long a command may take before its message is dropped.
// Authority calls and the search debounce finish well within it; cursor
// blinks and notification timers do not.
const cmdWait = 500 * time.Millisecond

// TUIRunner provides TUI testing capabilities.
type TUIRunner struct {
	harness *E2EHarness
}

// TUISession represents an active TUI test session.
type TUISession struct {
	runner *TUIRunner
	model  *views.MainView
	app    *app.App
	t      *testing.T
}

// Start opens the app from the harness config and loads the feed.
func (r *TUIRunner) Start(t *testing.T) *TUISession {
	return r.StartWithSize(t, 120, 40)
}

// StartWithSize starts a TUI session with custom dimensions.
func (r *TUIRunner) StartWithSize(t *testing.T, width, height int) *TUISession {
	t.Helper()

	cfg, err := config.Load(r.harness.configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	a, err := app.New(app.WithConfig(cfg))
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	model := views.NewMainView(a.Likes(), a.Search(), a.LoadFeed)
	model.SetSize(width, height)

	s := &TUISession{
		runner: r,
		model:  model,
		app:    a,
		t:      t,
	}
	s.executeCmd(model.Init())
	return s
}

// SendKey sends a key press.
func (s *TUISession) SendKey(key string) *TUISession {
	return s.Send(parseKeyMsg(key))
}

// Send delivers msg and runs whatever it triggers.
func (s *TUISession) Send(msg tea.Msg) *TUISession {
	updated, cmd := s.model.Update(msg)
	s.model = updated.(*views.MainView)
	s.executeCmd(cmd)
	return s
}

// executeCmd executes a tea.Cmd and processes the resulting message.
func (s *TUISession) executeCmd(cmd tea.Cmd) {
	if cmd == nil {
		return
	}

	msg, ok := runWithin(cmd, cmdWait)
	if !ok || msg == nil {
		return
	}

	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			s.executeCmd(c)
		}
		return
	}

	// Feed the message back into Update
	updated, nextCmd := s.model.Update(msg)
	s.model = updated.(*views.MainView)

	// Recursively execute any chained commands
	s.executeCmd(nextCmd)
}

func runWithin(cmd tea.Cmd, d time.Duration) (tea.Msg, bool) {
	done := make(chan tea.Msg, 1)
	go func() {
		done <- cmd()
	}()

	select {
	case msg := <-done:
		return msg, true
	case <-time.After(d):
		return nil, false
	}
}

// SendKeys sends multiple key presses.
func (s *TUISession) SendKeys(keys ...string) *TUISession {
	for _, key := range keys {
		s.SendKey(key)
	}
	return s
}

// Type sends a sequence of rune keys.
func (s *TUISession) Type(text string) *TUISession {
	for _, r := range text {
		s.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return s
}

// WaitForOutput waits for specific text in output.
func (s *TUISession) WaitForOutput(text string) error {
	timeout := s.runner.harness.timeout
	deadline := time.Now().Add(timeout)
	pollInterval := 50 * time.Millisecond

	for time.Now().Before(deadline) {
		if strings.Contains(s.Output(), text) {
			return nil
		}
		time.Sleep(pollInterval)
	}

	return &TimeoutError{text: text, timeout: timeout}
}

// Output returns the current TUI output.
func (s *TUISession) Output() string {
	return s.model.View()
}

// Model returns the underlying MainView for direct assertions.
func (s *TUISession) Model() *views.MainView {
	return s.model
}

// App returns the application behind the session.
func (s *TUISession) App() *app.App {
	return s.app
}

// FocusedPane returns the currently focused pane.
func (s *TUISession) FocusedPane() views.Pane {
	return s.model.FocusedPane()
}

// ShowingHelp returns true if help overlay is visible.
func (s *TUISession) ShowingHelp() bool {
	return s.model.ShowingHelp()
}

// TimeoutError represents a timeout waiting for output.
type TimeoutError struct {
	text    string
	timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return "timeout after " + e.timeout.String() + " waiting for: " + e.text
}

// parseKeyMsg converts key string to tea.KeyMsg.
func parseKeyMsg(key string) tea.KeyMsg {
	switch strings.ToLower(key) {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc", "escape":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "ctrl+u":
		return tea.KeyMsg{Type: tea.KeyCtrlU}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
}
