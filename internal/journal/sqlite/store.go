package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/artpar/kith/internal/journal"
)

// Store implements journal.Store using SQLite.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
	ownsDB bool
}

// New creates a new SQLite-based journal store.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, ownsDB: true}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// NewWithDB creates a store on a shared connection. The caller keeps
// ownership of db.
func NewWithDB(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize journal tables: %w", err)
	}
	return store, nil
}

// NewInMemory creates a new in-memory SQLite store (useful for testing).
func NewInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, ownsDB: true}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	schema := `
		CREATE TABLE IF NOT EXISTS journal (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			relation TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			action TEXT NOT NULL,
			outcome TEXT NOT NULL,
			result TEXT,
			error TEXT,
			duration INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_journal_timestamp ON journal(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_journal_entity ON journal(relation, entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Add appends an entry and returns its ID.
func (s *Store) Add(ctx context.Context, entry journal.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", journal.ErrStoreClosed
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal (
			id, timestamp, relation, entity_id, action, outcome, result, error, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.Timestamp.UnixMilli(), entry.Relation, entry.EntityID,
		entry.Action, string(entry.Outcome), entry.Result, entry.Error, entry.Duration,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert journal entry: %w", err)
	}

	return entry.ID, nil
}

// List returns entries matching opts, newest first.
func (s *Store) List(ctx context.Context, opts journal.QueryOptions) ([]journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, journal.ErrStoreClosed
	}

	query, args := buildListQuery(opts, false)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		entry, err := scanEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Count returns the number of entries matching opts.
func (s *Store) Count(ctx context.Context, opts journal.QueryOptions) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, journal.ErrStoreClosed
	}

	query, args := buildListQuery(opts, true)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}

	return count, nil
}

// Prune removes old entries. OlderThan takes precedence over KeepLast.
func (s *Store) Prune(ctx context.Context, opts journal.PruneOptions) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, journal.ErrStoreClosed
	}

	var (
		res sql.Result
		err error
	)
	switch {
	case opts.OlderThan > 0:
		cutoff := time.Now().Add(-opts.OlderThan).UnixMilli()
		res, err = s.db.ExecContext(ctx, "DELETE FROM journal WHERE timestamp < ?", cutoff)
	case opts.KeepLast > 0:
		res, err = s.db.ExecContext(ctx, `
			DELETE FROM journal WHERE id NOT IN (
				SELECT id FROM journal ORDER BY timestamp DESC, rowid DESC LIMIT ?
			)
		`, opts.KeepLast)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}

	return res.RowsAffected()
}

// Clear removes all entries.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return journal.ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM journal"); err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func buildListQuery(opts journal.QueryOptions, countOnly bool) (string, []interface{}) {
	var query string
	if countOnly {
		query = "SELECT COUNT(*) FROM journal WHERE 1=1"
	} else {
		query = `
			SELECT id, timestamp, relation, entity_id, action, outcome, result, error, duration
			FROM journal WHERE 1=1
		`
	}

	var args []interface{}

	if opts.Relation != "" {
		query += " AND relation = ?"
		args = append(args, opts.Relation)
	}

	if opts.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, opts.EntityID)
	}

	if opts.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, string(opts.Outcome))
	}

	if !opts.After.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, opts.After.UnixMilli())
	}

	if !countOnly {
		query += " ORDER BY timestamp DESC, rowid DESC"

		if opts.Limit > 0 {
			query += " LIMIT ?"
			args = append(args, opts.Limit)
			if opts.Offset > 0 {
				query += " OFFSET ?"
				args = append(args, opts.Offset)
			}
		}
	}

	return query, args
}

func scanEntryRow(rows *sql.Rows) (journal.Entry, error) {
	var (
		entry          journal.Entry
		ts             int64
		outcome        string
		result, errMsg sql.NullString
		duration       sql.NullInt64
	)

	err := rows.Scan(
		&entry.ID, &ts, &entry.Relation, &entry.EntityID, &entry.Action,
		&outcome, &result, &errMsg, &duration,
	)
	if err != nil {
		return entry, err
	}

	entry.Timestamp = time.UnixMilli(ts)
	entry.Outcome = journal.Outcome(outcome)
	entry.Result = result.String
	entry.Error = errMsg.String
	entry.Duration = duration.Int64

	return entry, nil
}

var _ journal.Store = (*Store)(nil)
