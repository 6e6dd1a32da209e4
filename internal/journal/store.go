// Package journal records every settled relation mutation so the user can
// see what was sent, what the authority answered, and what was rolled back.
package journal

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrStoreClosed = errors.New("journal store is closed")
)

// Outcome is how a mutation ended locally.
type Outcome string

const (
	// OutcomeConfirmed means the authority applied the change.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeReclassified means an error payload was a semantic success.
	OutcomeReclassified Outcome = "reclassified"
	// OutcomeRolledBack means the optimistic change was reverted.
	OutcomeRolledBack Outcome = "rolled_back"
)

// Entry is one settled mutation.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Relation  string    `json:"relation"`
	EntityID  string    `json:"entity_id"`
	Action    string    `json:"action"` // on, off, accept
	Outcome   Outcome   `json:"outcome"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Duration  int64     `json:"duration"` // milliseconds
}

// QueryOptions filters journal listings.
type QueryOptions struct {
	Relation string
	EntityID string
	Outcome  Outcome
	After    time.Time

	Limit  int // 0 = no limit
	Offset int
}

// PruneOptions bounds the journal.
type PruneOptions struct {
	OlderThan time.Duration // Delete entries older than this duration
	KeepLast  int           // Keep only the last N entries
}

// Store persists journal entries.
type Store interface {
	// Add appends an entry and returns its ID.
	Add(ctx context.Context, entry Entry) (string, error)

	// List returns entries, newest first.
	List(ctx context.Context, opts QueryOptions) ([]Entry, error)

	// Count returns the number of entries matching opts.
	Count(ctx context.Context, opts QueryOptions) (int64, error)

	// Prune removes old entries and returns how many were deleted.
	Prune(ctx context.Context, opts PruneOptions) (int64, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
