package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/journal"
)

// Check asserts on rendered screens and command output.
type Check struct {
	t *testing.T
}

// NewCheck returns a Check reporting to t.
func NewCheck(t *testing.T) *Check {
	return &Check{t: t}
}

// Shows asserts every fragment appears somewhere in output.
func (c *Check) Shows(output string, fragments ...string) {
	c.t.Helper()
	for _, f := range fragments {
		if !strings.Contains(output, f) {
			c.t.Errorf("missing %q in:\n%s", f, clip(output))
		}
	}
}

// Hides asserts no fragment appears in output.
func (c *Check) Hides(output string, fragments ...string) {
	c.t.Helper()
	for _, f := range fragments {
		if strings.Contains(output, f) {
			c.t.Errorf("unexpected %q in:\n%s", f, clip(output))
		}
	}
}

// Line asserts a single line of output holds every fragment.
func (c *Check) Line(output string, fragments ...string) {
	c.t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if containsAll(line, fragments) {
			return
		}
	}
	c.t.Errorf("no line holds all of %q in:\n%s", fragments, clip(output))
}

// Liked asserts a post renders with the given marker and count.
func (c *Check) Liked(output string, liked bool, count int) {
	c.t.Helper()
	heart := "♡"
	if liked {
		heart = "♥"
	}
	c.Shows(output, fmt.Sprintf("%s %d", heart, count))
}

// Peer asserts a row for name shows status.
func (c *Check) Peer(output, name string, status core.Status) {
	c.t.Helper()
	c.Line(output, name, status.Label())
}

// Journaled asserts the journal listing has an entry for id with outcome.
func (c *Check) Journaled(output, id string, outcome journal.Outcome) {
	c.t.Helper()
	c.Line(output, id, string(outcome))
}

// Help asserts whether the help overlay is on screen.
func (c *Check) Help(output string, visible bool) {
	c.t.Helper()
	if visible {
		c.Shows(output, "kith help")
		return
	}
	c.Hides(output, "kith help")
	c.Shows(output, "Feed", "People")
}

func containsAll(s string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(s, f) {
			return false
		}
	}
	return true
}

func clip(s string) string {
	const limit = 800
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
