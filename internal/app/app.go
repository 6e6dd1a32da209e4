// Package app wires configuration, storage, the authority client and the
// relation engine into one container shared by the CLI and the TUI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/artpar/kith/internal/authority"
	"github.com/artpar/kith/internal/config"
	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/engine"
	"github.com/artpar/kith/internal/interfaces"
	"github.com/artpar/kith/internal/journal"
	journalsqlite "github.com/artpar/kith/internal/journal/sqlite"
	"github.com/artpar/kith/internal/kv"
	kvbadger "github.com/artpar/kith/internal/kv/badger"
	kvsqlite "github.com/artpar/kith/internal/kv/sqlite"
	"github.com/artpar/kith/internal/relcache"
)

// App is the main application container with dependency injection.
type App struct {
	config *config.Config
	logger *zap.Logger

	store     kv.Store
	journal   journal.Store
	authority interfaces.Authority
	origin    string

	caches map[core.RelationKind]*relcache.Cache
	likes  *engine.Coordinator
	peers  *engine.Coordinator
	search *engine.Reconciler

	feedMu sync.Mutex
	feed   map[string]struct{}

	closers []func() error
}

// Option is a function that configures the App.
type Option func(*App)

// WithConfig sets the application configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithStore uses store for the relation caches instead of opening one from
// the configuration. The caller keeps ownership.
func WithStore(store kv.Store) Option {
	return func(a *App) {
		a.store = store
	}
}

// WithJournal uses j instead of opening one. The caller keeps ownership.
func WithJournal(j journal.Store) Option {
	return func(a *App) {
		a.journal = j
	}
}

// WithAuthority replaces the HTTP authority. origin scopes the caches.
func WithAuthority(auth interfaces.Authority, origin string) Option {
	return func(a *App) {
		a.authority = auth
		a.origin = origin
	}
}

// New creates a new App. Anything not supplied by an option is built from
// the configuration.
func New(opts ...Option) (*App, error) {
	a := &App{
		config: config.Default(),
		logger: zap.NewNop(),
		caches: make(map[core.RelationKind]*relcache.Cache),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.openStorage(); err != nil {
		a.Close()
		return nil, err
	}

	if a.authority == nil {
		client := authority.New(a.config.Authority.BaseURL,
			authority.WithTimeout(a.config.Timeout()),
			authority.WithToken(a.config.Authority.Token),
			authority.WithLogger(a.logger.Named("authority")),
		)
		a.authority = client
		a.origin = client.Origin()
	}

	for _, kind := range []core.RelationKind{core.RelationLiked, core.RelationConnected} {
		a.caches[kind] = relcache.New(a.store, a.origin, kind.Namespace(),
			relcache.WithMaxEntries(a.config.Cache.MaxEntries),
			relcache.WithLogger(a.logger.Named("relcache")),
		)
	}

	guard := engine.NewGuard()
	coordinatorOpts := []engine.CoordinatorOption{
		engine.WithGuard(guard),
		engine.WithTimeout(a.config.Timeout()),
		engine.WithLogger(a.logger.Named("engine")),
	}
	if a.journal != nil {
		coordinatorOpts = append(coordinatorOpts, engine.WithRecorder(a.journal))
	}

	a.likes = engine.NewCoordinator(core.RelationLiked, a.authority, a.caches[core.RelationLiked], coordinatorOpts...)
	a.peers = engine.NewCoordinator(core.RelationConnected, a.authority, a.caches[core.RelationConnected], coordinatorOpts...)
	a.search = engine.NewReconciler(a.authority, a.peers,
		engine.WithDebounce(a.config.Debounce()),
		engine.WithSearchTimeout(a.config.Timeout()),
		engine.WithSearchLogger(a.logger.Named("search")),
	)

	a.logger.Debug("app initialized",
		zap.String("origin", a.origin),
		zap.String("backend", a.config.Backend()),
	)
	return a, nil
}

func (a *App) openStorage() error {
	if a.store != nil && a.journal != nil {
		return nil
	}

	dir := a.config.DataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	var db *sql.DB
	openDB := func() (*sql.DB, error) {
		if db != nil {
			return db, nil
		}
		var err error
		db, err = sql.Open("sqlite", filepath.Join(dir, "kith.db")+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	}

	if a.store == nil {
		switch a.config.Backend() {
		case config.BackendBadger:
			cfg := kvbadger.DefaultConfig(filepath.Join(dir, "badger"))
			cfg.Logger = a.logger
			store, err := kvbadger.Open(cfg)
			if err != nil {
				return err
			}
			a.store = store
		default:
			db, err := openDB()
			if err != nil {
				return err
			}
			store, err := kvsqlite.NewWithDB(db)
			if err != nil {
				return err
			}
			a.store = store
		}
		a.closers = append(a.closers, a.store.Close)
	}

	if a.journal == nil {
		db, err := openDB()
		if err != nil {
			return err
		}
		j, err := journalsqlite.NewWithDB(db)
		if err != nil {
			return err
		}
		a.journal = j
		a.closers = append(a.closers, j.Close)
	}
	return nil
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Origin returns the authority host the caches are scoped to.
func (a *App) Origin() string {
	return a.origin
}

// Authority returns the authority client.
func (a *App) Authority() interfaces.Authority {
	return a.authority
}

// Journal returns the mutation journal.
func (a *App) Journal() journal.Store {
	return a.journal
}

// Likes returns the coordinator for the liked relation.
func (a *App) Likes() *engine.Coordinator {
	return a.likes
}

// Peers returns the coordinator for the connected relation.
func (a *App) Peers() *engine.Coordinator {
	return a.peers
}

// Search returns the search reconciler.
func (a *App) Search() *engine.Reconciler {
	return a.search
}

// Coordinator returns the coordinator for kind.
func (a *App) Coordinator(kind core.RelationKind) (*engine.Coordinator, error) {
	switch kind {
	case core.RelationLiked:
		return a.likes, nil
	case core.RelationConnected:
		return a.peers, nil
	default:
		return nil, fmt.Errorf("unknown relation %q", kind)
	}
}

// Cache returns the relation cache for kind.
func (a *App) Cache(kind core.RelationKind) (*relcache.Cache, error) {
	c, ok := a.caches[kind]
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", kind)
	}
	return c, nil
}

// LoadFeed fetches the feed and tracks every post's like state. Posts that
// left the feed since the last load are forgotten unless a like is in flight.
func (a *App) LoadFeed(ctx context.Context) ([]core.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout())
	defer cancel()

	fetchedAt := time.Now()
	posts, err := a.authority.Feed(ctx)
	if err != nil {
		return nil, err
	}

	a.feedMu.Lock()
	defer a.feedMu.Unlock()

	next := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		snap := p.Snapshot()
		snap.FetchedAt = fetchedAt
		a.likes.Track(p.ID, snap)
		next[p.ID] = struct{}{}
	}
	for id := range a.feed {
		if _, ok := next[id]; ok {
			continue
		}
		// Checked again on the next load.
		if a.likes.Busy(id) {
			next[id] = struct{}{}
			continue
		}
		a.likes.Forget(id)
	}
	a.feed = next
	return posts, nil
}
