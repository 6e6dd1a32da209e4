package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/interfaces"
)

// DefaultDebounce is how long the query must stay unchanged before a search
// is issued.
const DefaultDebounce = 300 * time.Millisecond

// Row is one search result with its projected status and in-flight marker.
type Row struct {
	core.SearchResult
	Busy bool  `json:"busy,omitempty"`
	Err  error `json:"-"`
}

// Reconciler drives a debounced search list. Every query change bumps a
// generation; timers and responses carrying an older generation are ignored.
type Reconciler struct {
	mu        sync.Mutex
	authority interfaces.Authority
	peers     *Coordinator
	delay     time.Duration
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time

	generation uint64
	query      string
	results    []core.SearchResult
	loading    bool
	err        error
	// issuedAt is when the latest search was issued.
	issuedAt   time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithDebounce sets the settle delay.
func WithDebounce(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.delay = d
	}
}

// WithSearchTimeout sets the deadline for one search request.
func WithSearchTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.timeout = d
	}
}

// WithSearchLogger sets the logger.
func WithSearchLogger(logger *zap.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// NewReconciler creates a reconciler whose row actions go through peers.
func NewReconciler(authority interfaces.Authority, peers *Coordinator, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		authority: authority,
		peers:     peers,
		delay:     DefaultDebounce,
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Delay returns the debounce delay.
func (r *Reconciler) Delay() time.Duration {
	return r.delay
}

// SetQuery records a new query text and supersedes every earlier timer and
// request. An empty query clears the list and error at once; schedule is
// false and no request follows.
func (r *Reconciler) SetQuery(q string) (token uint64, schedule bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	r.query = q
	if strings.TrimSpace(q) == "" {
		r.forgetRowsLocked(nil)
		r.results = nil
		r.err = nil
		r.loading = false
		return r.generation, false
	}
	return r.generation, true
}

// Due is called when the timer for token fires. It returns the query to
// search for, or false when the timer was superseded.
func (r *Reconciler) Due(token uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token != r.generation {
		return "", false
	}
	q := strings.TrimSpace(r.query)
	if q == "" {
		return "", false
	}
	r.loading = true
	r.issuedAt = r.now()
	return q, true
}

// Execute issues one search request.
func (r *Reconciler) Execute(ctx context.Context, query string) ([]core.SearchResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.authority.Search(ctx, query)
}

// Resolve applies a search response. It is discarded, returning false, when
// a newer query has been entered since token was issued.
func (r *Reconciler) Resolve(token uint64, query string, rows []core.SearchResult, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token != r.generation || strings.TrimSpace(r.query) != query {
		r.logger.Debug("discarding stale search response",
			zap.String("query", query),
			zap.Uint64("token", token),
			zap.Uint64("generation", r.generation),
		)
		return false
	}

	r.loading = false
	if err != nil {
		r.forgetRowsLocked(nil)
		r.results = nil
		r.err = err
		r.logger.Info("search failed", zap.String("query", query), zap.Error(err))
		return true
	}

	r.forgetRowsLocked(rows)
	r.err = nil
	r.results = rows
	for _, row := range rows {
		snap := row.Snapshot()
		snap.FetchedAt = r.issuedAt
		r.peers.Track(row.Key(), snap)
	}
	return true
}

// Search runs one query to completion without debouncing.
func (r *Reconciler) Search(ctx context.Context, q string) error {
	token, schedule := r.SetQuery(q)
	if !schedule {
		return nil
	}
	query, ok := r.Due(token)
	if !ok {
		return nil
	}
	rows, err := r.Execute(ctx, query)
	r.Resolve(token, query, rows, err)
	return err
}

// forgetRowsLocked drops relation instances for rows that leave the list.
func (r *Reconciler) forgetRowsLocked(next []core.SearchResult) {
	keep := make(map[string]struct{}, len(next))
	for _, row := range next {
		keep[row.Key()] = struct{}{}
	}
	for _, row := range r.results {
		key := row.Key()
		if _, ok := keep[key]; ok || r.peers.Busy(key) {
			continue
		}
		r.peers.Forget(key)
	}
}

// Query returns the current query text.
func (r *Reconciler) Query() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query
}

// Loading reports whether a search for the current query is outstanding.
func (r *Reconciler) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Err returns the error of the last applied search.
func (r *Reconciler) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Rows returns the visible list with each row's projected status.
func (r *Reconciler) Rows() []Row {
	r.mu.Lock()
	results := r.results
	r.mu.Unlock()

	rows := make([]Row, 0, len(results))
	for _, res := range results {
		st := r.peers.State(res.Key())
		row := Row{SearchResult: res, Busy: st.Busy, Err: st.Err}
		row.Status = st.Status
		rows = append(rows, row)
	}
	return rows
}

// ActionBusy reports whether the row with id has a mutation in flight.
func (r *Reconciler) ActionBusy(id string) bool {
	return r.peers.Busy(id)
}

// Toggle connects to or disconnects from the peer in row id.
func (r *Reconciler) Toggle(ctx context.Context, id string) (core.RelationState, error) {
	return r.peers.Toggle(ctx, id)
}

// Accept accepts the incoming request from the peer in row id.
func (r *Reconciler) Accept(ctx context.Context, id string) (core.RelationState, error) {
	return r.peers.Accept(ctx, id)
}

// Peers returns the coordinator behind row actions.
func (r *Reconciler) Peers() *Coordinator {
	return r.peers
}
