package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/kv"
	"github.com/artpar/kith/internal/kv/sqlite"
	"github.com/artpar/kith/internal/relcache"
)

var errNetwork = errors.New("connection reset by peer")

type call struct {
	op   string
	kind core.RelationKind
	id   string
}

type reply struct {
	res core.MutationResult
	err error
}

// fakeAuthority answers mutations from a queue and records every call.
type fakeAuthority struct {
	mu      sync.Mutex
	calls   []call
	replies []reply

	// block, when set, makes mutations wait until the context ends.
	block bool

	fetch    func(ctx context.Context, id string) (core.Snapshot, error)
	searchFn func(ctx context.Context, q string) ([]core.SearchResult, error)
}

func (f *fakeAuthority) push(res core.MutationResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{res: res, err: err})
}

func (f *fakeAuthority) mutate(ctx context.Context, op string, kind core.RelationKind, id string) (core.MutationResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: op, kind: kind, id: id})
	block := f.block
	var r reply
	if len(f.replies) > 0 {
		r = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return core.MutationResult{}, ctx.Err()
	}
	return r.res, r.err
}

func (f *fakeAuthority) TurnOn(ctx context.Context, kind core.RelationKind, id string) (core.MutationResult, error) {
	return f.mutate(ctx, "on", kind, id)
}

func (f *fakeAuthority) TurnOff(ctx context.Context, kind core.RelationKind, id string) (core.MutationResult, error) {
	return f.mutate(ctx, "off", kind, id)
}

func (f *fakeAuthority) Accept(ctx context.Context, username string) (core.MutationResult, error) {
	return f.mutate(ctx, "accept", core.RelationConnected, username)
}

func (f *fakeAuthority) Search(ctx context.Context, q string) ([]core.SearchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: "search", id: q})
	fn := f.searchFn
	f.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx, q)
}

func (f *fakeAuthority) FetchRelationState(ctx context.Context, kind core.RelationKind, id string) (core.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: "fetch", kind: kind, id: id})
	fn := f.fetch
	f.mu.Unlock()

	if fn == nil {
		return core.Snapshot{}, nil
	}
	return fn(ctx, id)
}

func (f *fakeAuthority) Feed(ctx context.Context) ([]core.Post, error) {
	return nil, nil
}

func (f *fakeAuthority) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (f *fakeAuthority) lastCall() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func newStore(t *testing.T) kv.Store {
	t.Helper()
	store, err := sqlite.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newCache(store kv.Store, kind core.RelationKind) *relcache.Cache {
	return relcache.New(store, "social.example.com", kind.Namespace())
}
