package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/interfaces"
	"github.com/artpar/kith/internal/journal"
)

// DefaultTimeout bounds every authority call made by a coordinator.
const DefaultTimeout = 8 * time.Second

var (
	// ErrBusy is returned when a tap is dropped because a mutation for the
	// same entity is already in flight.
	ErrBusy = errors.New("mutation already in flight")
	// ErrSelfTarget is returned when the entity is the current user.
	ErrSelfTarget = errors.New("cannot target yourself")
	// ErrNothingToAccept is returned by Accept when the peer has not
	// requested a connection.
	ErrNothingToAccept = errors.New("no incoming request to accept")
	// ErrUnsupported is returned for actions the relation does not have.
	ErrUnsupported = errors.New("action not supported for relation")
)

// Recorder receives one journal entry per settled mutation.
type Recorder interface {
	Add(ctx context.Context, entry journal.Entry) (string, error)
}

// relation is the local view of one relation instance.
type relation struct {
	server  *bool
	pending *bool
	count   *int

	serverStatus core.Status
	override     *core.Status
	// overrideAt is when the override was last settled. Snapshots fetched
	// after it replace the override.
	overrideAt   time.Time

	err error
}

// Ticket carries what Begin decided so Settle can confirm or undo it.
type Ticket struct {
	ID     string
	Action core.Action
	WasOn  bool
	WantOn bool

	delta          int
	prevOverride   *core.Status
	prevOverrideAt time.Time
	started        time.Time
}

// Settlement is the outcome of the network half of a mutation.
type Settlement struct {
	Result  core.MutationResult
	Err     error
	Elapsed time.Duration
}

// Coordinator runs the flip, request, reconcile cycle for one relation kind.
type Coordinator struct {
	mu        sync.Mutex
	kind      core.RelationKind
	authority interfaces.Authority
	cache     interfaces.RelationCache
	guard     *Guard
	recorder  Recorder
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
	fetches   singleflight.Group

	relations map[string]*relation
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithRecorder journals every settled mutation.
func WithRecorder(r Recorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithTimeout sets the deadline for authority calls.
func WithTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithGuard shares a guard between coordinators.
func WithGuard(g *Guard) CoordinatorOption {
	return func(c *Coordinator) {
		c.guard = g
	}
}

// NewCoordinator creates a coordinator for kind.
func NewCoordinator(kind core.RelationKind, authority interfaces.Authority, cache interfaces.RelationCache, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		kind:      kind,
		authority: authority,
		cache:     cache,
		guard:     NewGuard(),
		logger:    zap.NewNop(),
		timeout:   DefaultTimeout,
		now:       time.Now,
		relations: make(map[string]*relation),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("relation", string(kind)))
	return c
}

// Kind returns the relation kind the coordinator manages.
func (c *Coordinator) Kind() core.RelationKind {
	return c.kind
}

// Track records what the authority reported for id. An existing override is
// dropped once the reported status converges on it, or when the snapshot was
// fetched after the override settled.
func (c *Coordinator) Track(id string, snap core.Snapshot) core.RelationState {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.relation(id)
	if snap.Value != nil {
		r.server = core.Bool(*snap.Value)
	}
	if snap.Status != core.StatusUnknown {
		r.serverStatus = snap.Status
		if r.override != nil && (*r.override == snap.Status || c.newerLocked(r, snap)) {
			r.override = nil
		}
	}
	// An in-flight delta is still applied to the local count.
	if snap.Count != nil && r.pending == nil {
		r.count = core.Int(*snap.Count)
	}
	return c.stateLocked(id, r)
}

// Forget drops the relation instance for id. The cache entry is kept.
func (c *Coordinator) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.relations, id)
}

// Tracked returns the number of live relation instances.
func (c *Coordinator) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.relations)
}

// State returns what to render for id.
func (c *Coordinator) State(id string) core.RelationState {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.relations[id]
	if !ok {
		r = &relation{}
	}
	return c.stateLocked(id, r)
}

// Busy reports whether any mutation for id is in flight.
func (c *Coordinator) Busy(id string) bool {
	return c.guard.Held(id, core.ActionToggle) || c.guard.Held(id, core.ActionAccept)
}

// Begin performs the synchronous optimistic half of a toggle: the guard is
// taken, the pending value and cache are flipped, and the counter moves.
func (c *Coordinator) Begin(id string) (*Ticket, error) {
	return c.begin(id, core.ActionToggle)
}

// BeginAccept is Begin for accepting an incoming connection request.
func (c *Coordinator) BeginAccept(id string) (*Ticket, error) {
	if c.kind != core.RelationConnected {
		return nil, ErrUnsupported
	}
	return c.begin(id, core.ActionAccept)
}

func (c *Coordinator) begin(id string, action core.Action) (*Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.relation(id)
	status := c.statusLocked(id, r)
	if status.Terminal() {
		return nil, ErrSelfTarget
	}
	if action == core.ActionAccept && status != core.StatusIncoming {
		return nil, ErrNothingToAccept
	}
	// Another action on the same entity owns the pending slot.
	if r.pending != nil {
		return nil, ErrBusy
	}
	if !c.guard.TryAcquire(id, action) {
		return nil, ErrBusy
	}

	wasOn := c.displayedLocked(id, r)
	t := &Ticket{
		ID:           id,
		Action:       action,
		WasOn:        wasOn,
		WantOn:       !wasOn,
		prevOverride:   r.override,
		prevOverrideAt: r.overrideAt,
		started:        c.now(),
	}
	if action == core.ActionAccept {
		t.WantOn = true
	}

	r.pending = core.Bool(t.WantOn)
	r.err = nil
	c.writeCache(id, t.WantOn)

	if c.kind == core.RelationConnected {
		target := core.StatusFor(t.WantOn)
		if action == core.ActionAccept {
			target = core.StatusConnected
		}
		r.override = &target
	}

	if r.count != nil && t.WantOn != wasOn {
		switch {
		case t.WantOn:
			t.delta = 1
		case *r.count > 0:
			t.delta = -1
		}
		r.count = core.Int(*r.count + t.delta)
	}

	c.logger.Debug("optimistic flip",
		zap.String("id", id),
		zap.String("action", string(action)),
		zap.Bool("want_on", t.WantOn),
	)
	return t, nil
}

// Execute issues the single authority call for t. It never touches local
// state and is safe to run off the event loop.
func (c *Coordinator) Execute(ctx context.Context, t *Ticket) Settlement {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := c.now()
	var (
		res core.MutationResult
		err error
	)
	switch {
	case t.Action == core.ActionAccept:
		res, err = c.authority.Accept(ctx, t.ID)
	case t.WantOn:
		res, err = c.authority.TurnOn(ctx, c.kind, t.ID)
	default:
		res, err = c.authority.TurnOff(ctx, c.kind, t.ID)
	}
	return Settlement{Result: res, Err: err, Elapsed: c.now().Sub(start)}
}

// Settle reconciles the authority's answer into local state and releases the
// guard. Failures roll back to the value shown before Begin.
func (c *Coordinator) Settle(t *Ticket, s Settlement) core.RelationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.guard.Release(t.ID, t.Action)

	r := c.relation(t.ID)
	r.pending = nil

	outcome := journal.OutcomeConfirmed
	if s.Err != nil {
		outcome = journal.OutcomeRolledBack
		c.rollback(t, r, s.Err)
	} else {
		if s.Result.Kind != core.ResultApplied {
			outcome = journal.OutcomeReclassified
		}
		c.confirm(t, r, s.Result)
	}

	c.record(t, s, outcome)
	return c.stateLocked(t.ID, r)
}

func (c *Coordinator) rollback(t *Ticket, r *relation, err error) {
	r.err = err
	r.override = t.prevOverride
	r.overrideAt = t.prevOverrideAt
	c.writeCache(t.ID, t.WasOn)
	if r.count != nil {
		n := *r.count - t.delta
		if n < 0 {
			n = 0
		}
		r.count = core.Int(n)
	}
	c.logger.Info("mutation rolled back",
		zap.String("id", t.ID),
		zap.String("action", string(t.Action)),
		zap.Error(err),
	)
}

func (c *Coordinator) confirm(t *Ticket, r *relation, res core.MutationResult) {
	r.err = nil

	on := t.WantOn
	status := res.Status
	switch res.Kind {
	case core.ResultSelf:
		on = false
		status = core.StatusSelf
	case core.ResultPending:
		on = true
		status = core.StatusPending
	case core.ResultAlreadyOn:
		on = true
	case core.ResultAlreadyOff:
		on = false
	}
	if status == core.StatusUnknown && c.kind == core.RelationConnected {
		status = core.StatusFor(on)
		if t.Action == core.ActionAccept {
			status = core.StatusConnected
		}
	}

	r.server = core.Bool(on)
	c.writeCache(t.ID, on)
	if c.kind == core.RelationConnected {
		r.override = &status
		r.overrideAt = c.now()
	}
	already := res.Kind == core.ResultAlreadyOn || res.Kind == core.ResultAlreadyOff
	if res.Count != nil {
		r.count = core.Int(*res.Count)
	} else if (already || on != t.WantOn) && r.count != nil {
		// The authority did not move; undo the optimistic delta.
		n := *r.count - t.delta
		if n < 0 {
			n = 0
		}
		r.count = core.Int(n)
	}

	c.logger.Debug("mutation confirmed",
		zap.String("id", t.ID),
		zap.String("result", res.Kind.String()),
		zap.Bool("on", on),
	)
}

// Toggle runs Begin, Execute and Settle in sequence. The returned error is
// ErrBusy or ErrSelfTarget for a dropped tap, or the authority failure that
// caused a rollback.
func (c *Coordinator) Toggle(ctx context.Context, id string) (core.RelationState, error) {
	t, err := c.Begin(id)
	if err != nil {
		return c.State(id), err
	}
	s := c.Execute(ctx, t)
	return c.Settle(t, s), s.Err
}

// Accept accepts an incoming connection request from id.
func (c *Coordinator) Accept(ctx context.Context, id string) (core.RelationState, error) {
	t, err := c.BeginAccept(id)
	if err != nil {
		return c.State(id), err
	}
	s := c.Execute(ctx, t)
	return c.Settle(t, s), s.Err
}

// Refresh fetches the authority's view of id and tracks it. Concurrent
// refreshes of the same id share one request.
func (c *Coordinator) Refresh(ctx context.Context, id string) (core.RelationState, error) {
	v, err, _ := c.fetches.Do(id, func() (interface{}, error) {
		fctx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		fetchedAt := c.now()
		snap, err := c.authority.FetchRelationState(fctx, c.kind, id)
		if err == nil && snap.FetchedAt.IsZero() {
			snap.FetchedAt = fetchedAt
		}
		return snap, err
	})
	if err != nil {
		return c.State(id), fmt.Errorf("failed to fetch %s state for %s: %w", c.kind, id, err)
	}
	return c.Track(id, v.(core.Snapshot)), nil
}

func (c *Coordinator) relation(id string) *relation {
	r, ok := c.relations[id]
	if !ok {
		r = &relation{}
		c.relations[id] = r
	}
	return r
}

// newerLocked reports whether snap was fetched after the override settled.
// An override still in flight is never replaced.
func (c *Coordinator) newerLocked(r *relation, snap core.Snapshot) bool {
	if r.pending != nil || snap.FetchedAt.IsZero() {
		return false
	}
	return snap.FetchedAt.After(r.overrideAt)
}

// displayedLocked is the value shown for id. Peers follow the projected
// status so the toggle direction always matches what is on screen.
func (c *Coordinator) displayedLocked(id string, r *relation) bool {
	if r.pending != nil {
		return *r.pending
	}
	if c.kind == core.RelationConnected && (r.override != nil || r.serverStatus != core.StatusUnknown) {
		return core.Project(r.serverStatus, r.override).On()
	}
	if r.server != nil {
		return *r.server
	}
	return c.cache.Has(id)
}

func (c *Coordinator) statusLocked(id string, r *relation) core.Status {
	if c.kind != core.RelationConnected {
		return core.StatusUnknown
	}
	if r.override == nil && r.serverStatus == core.StatusUnknown {
		return core.StatusFor(c.displayedLocked(id, r))
	}
	return core.Project(r.serverStatus, r.override)
}

func (c *Coordinator) stateLocked(id string, r *relation) core.RelationState {
	st := core.RelationState{
		ID:        id,
		Displayed: c.displayedLocked(id, r),
		Busy:      r.pending != nil,
		Status:    c.statusLocked(id, r),
		Err:       r.err,
	}
	if r.count != nil {
		st.Count = *r.count
		st.HasCount = true
	}
	return st
}

func (c *Coordinator) writeCache(id string, on bool) {
	var err error
	if on {
		err = c.cache.Add(id)
	} else {
		err = c.cache.Remove(id)
	}
	if err != nil {
		c.logger.Warn("relation cache write failed", zap.String("id", id), zap.Error(err))
	}
}

func (c *Coordinator) record(t *Ticket, s Settlement, outcome journal.Outcome) {
	if c.recorder == nil {
		return
	}

	action := "off"
	switch {
	case t.Action == core.ActionAccept:
		action = "accept"
	case t.WantOn:
		action = "on"
	}
	entry := journal.Entry{
		Timestamp: t.started,
		Relation:  string(c.kind),
		EntityID:  t.ID,
		Action:    action,
		Outcome:   outcome,
		Duration:  s.Elapsed.Milliseconds(),
	}
	if s.Err != nil {
		entry.Error = s.Err.Error()
	} else {
		entry.Result = s.Result.Kind.String()
	}

	if _, err := c.recorder.Add(context.Background(), entry); err != nil {
		c.logger.Warn("failed to journal mutation", zap.String("id", t.ID), zap.Error(err))
	}
}
