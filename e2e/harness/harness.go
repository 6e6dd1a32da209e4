// Package harness provides E2E testing utilities for kith: a fake authority,
// an isolated data directory and runners for the CLI and the TUI.
package harness

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/kith/internal/authority/authoritytest"
	"github.com/artpar/kith/internal/config"
)

// E2EHarness is the main test orchestrator.
type E2EHarness struct {
	t          *testing.T
	server     *authoritytest.Server
	tmpDir     string
	configPath string
	timeout    time.Duration
}

// Config configures the harness.
type Config struct {
	Backend  string        // Default: sqlite
	Debounce time.Duration // Default: 10ms
	Timeout  time.Duration // Default: 5 seconds
}

// New creates a new E2E harness with a running fake authority and a config
// file pointing at it.
func New(t *testing.T, cfg Config) *E2EHarness {
	t.Helper()

	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 10 * time.Millisecond
	}

	h := &E2EHarness{
		t:       t,
		server:  authoritytest.New(),
		tmpDir:  t.TempDir(),
		timeout: cfg.Timeout,
	}
	t.Cleanup(h.server.Close)

	appCfg := config.Default()
	appCfg.Authority.BaseURL = h.server.URL
	appCfg.Authority.Timeout = cfg.Timeout.String()
	appCfg.Search.Debounce = cfg.Debounce.String()
	appCfg.Storage.DataDir = filepath.Join(h.tmpDir, "data")
	if cfg.Backend != "" {
		appCfg.Storage.Backend = cfg.Backend
	}

	h.configPath = filepath.Join(h.tmpDir, "config.yaml")
	if err := config.Save(appCfg, h.configPath); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return h
}

// Server returns the fake authority.
func (h *E2EHarness) Server() *authoritytest.Server {
	return h.server
}

// ConfigPath returns the config file the runners use.
func (h *E2EHarness) ConfigPath() string {
	return h.configPath
}

// TmpDir returns the temporary directory path.
func (h *E2EHarness) TmpDir() string {
	return h.tmpDir
}

// Timeout returns the configured timeout.
func (h *E2EHarness) Timeout() time.Duration {
	return h.timeout
}

// T returns the testing.T instance.
func (h *E2EHarness) T() *testing.T {
	return h.t
}

// CLI returns a CLI runner for this harness.
func (h *E2EHarness) CLI() *CLIRunner {
	return &CLIRunner{harness: h}
}

// TUI returns a TUI runner for this harness.
func (h *E2EHarness) TUI() *TUIRunner {
	return &TUIRunner{harness: h}
}
