// Package interfaces defines the core abstractions the relation engine is
// wired through, so that adapters (HTTP authority, persisted cache, journal)
// can be swapped in tests.
package interfaces

import (
	"context"

	"github.com/artpar/kith/internal/core"
)

// Authority is the remote service that owns the truth about relations.
// Failures are returned as errors; semantic successes ("already requested",
// "cannot target self") come back as core.MutationResult variants.
type Authority interface {
	// TurnOn switches the relation on for the entity.
	TurnOn(ctx context.Context, kind core.RelationKind, id string) (core.MutationResult, error)

	// TurnOff switches the relation off for the entity.
	TurnOff(ctx context.Context, kind core.RelationKind, id string) (core.MutationResult, error)

	// Accept accepts an incoming connection request from a peer.
	Accept(ctx context.Context, username string) (core.MutationResult, error)

	// Search returns peers matching the query, in authority order.
	Search(ctx context.Context, query string) ([]core.SearchResult, error)

	// FetchRelationState returns the authority's view of one relation.
	// Snapshot.Value is nil when the authority does not report it.
	FetchRelationState(ctx context.Context, kind core.RelationKind, id string) (core.Snapshot, error)

	// Feed returns the posts to render with their like state.
	Feed(ctx context.Context) ([]core.Post, error)
}

// RelationCache is the persisted "on" membership for one relation.
type RelationCache interface {
	Has(id string) bool
	Add(id string) error
	Remove(id string) error
}
