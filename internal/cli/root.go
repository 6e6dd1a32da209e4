package cli

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artpar/kith/internal/app"
	"github.com/artpar/kith/internal/config"
	"github.com/artpar/kith/internal/logging"
	"github.com/artpar/kith/internal/tui/views"
)

// rootOptions holds the flags every command shares.
type rootOptions struct {
	configPath string
	debug      bool
}

func (o *rootOptions) path() string {
	return config.DiscoverPath(o.configPath)
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(o.path())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openApp builds the application from the configuration. The returned
// function closes the app and flushes the log.
func (o *rootOptions) openApp() (*app.App, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if o.debug {
		level = "debug"
	}
	logger, closeLog, err := logging.New(logging.Options{Level: level, File: cfg.LogFile()})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log: %w", err)
	}

	a, err := app.New(app.WithConfig(cfg), app.WithLogger(logger))
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	return a, func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
		closeLog()
	}, nil
}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "kith",
		Short:   "kith - likes and connections from the terminal",
		Long:    "kith likes posts and manages connections with instant feedback, reconciling with the server in the background.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(opts)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (default ~/.kith/config.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "write debug logs")

	// Add subcommands
	cmd.AddCommand(
		newLikeCommand(opts, true),
		newLikeCommand(opts, false),
		newConnectCommand(opts),
		newUnfriendCommand(opts),
		newAcceptCommand(opts),
		newSearchCommand(opts),
		newFeedCommand(opts),
		newCacheCommand(opts),
		newJournalCommand(opts),
		newConfigCommand(opts),
	)

	return cmd
}

// tuiModel wraps the MainView for bubbletea
type tuiModel struct {
	view *views.MainView
}

func (m tuiModel) Init() tea.Cmd {
	return m.view.Init()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	updated, cmd := m.view.Update(msg)
	m.view = updated.(*views.MainView)
	return m, cmd
}

func (m tuiModel) View() string {
	return m.view.View()
}

// runTUI starts the TUI application
func runTUI(opts *rootOptions) error {
	a, closeApp, err := opts.openApp()
	if err != nil {
		return err
	}
	defer closeApp()

	model := tuiModel{
		view: views.NewMainView(a.Likes(), a.Search(), a.LoadFeed),
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		return err
	}
	return nil
}
