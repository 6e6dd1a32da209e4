package core

import (
	"errors"
	"time"
)

// RelationKind names a boolean edge between the current user and an entity.
type RelationKind string

const (
	// RelationLiked is the edge between the user and a post they like.
	RelationLiked RelationKind = "liked"
	// RelationConnected is the edge between the user and a peer.
	RelationConnected RelationKind = "connected"
)

// Valid reports whether k is a known relation kind.
func (k RelationKind) Valid() bool {
	switch k {
	case RelationLiked, RelationConnected:
		return true
	default:
		return false
	}
}

// Namespace returns the persisted cache namespace for the relation.
func (k RelationKind) Namespace() string {
	return "kith.relations." + string(k)
}

// ParseRelationKind converts a user supplied string into a RelationKind.
func ParseRelationKind(s string) (RelationKind, error) {
	k := RelationKind(s)
	if !k.Valid() {
		return "", errors.New("unknown relation: " + s)
	}
	return k, nil
}

// Action identifies a mutation type for single-flight purposes.
type Action string

const (
	ActionToggle Action = "toggle"
	ActionAccept Action = "accept"
)

// ResultKind classifies a successful or semantically successful mutation.
type ResultKind int

const (
	// ResultApplied means the authority performed the change.
	ResultApplied ResultKind = iota
	// ResultPending means a request now awaits the other side, either
	// freshly created or already outstanding.
	ResultPending
	// ResultAlreadyOn means the relation was already on.
	ResultAlreadyOn
	// ResultAlreadyOff means the relation was already off.
	ResultAlreadyOff
	// ResultSelf means the target is the current user.
	ResultSelf
)

func (r ResultKind) String() string {
	switch r {
	case ResultApplied:
		return "applied"
	case ResultPending:
		return "pending"
	case ResultAlreadyOn:
		return "already_on"
	case ResultAlreadyOff:
		return "already_off"
	case ResultSelf:
		return "self"
	default:
		return "unknown"
	}
}

// MutationResult is what the authority reports for a mutation that did
// not fail.
type MutationResult struct {
	Kind ResultKind
	// Status is the peer status reported by the authority, if any.
	Status Status
	// Count is the authoritative counter after the mutation, if reported.
	Count *int
}

// Snapshot is the authority's view of one relation at fetch time.
type Snapshot struct {
	// Value is nil when the authority did not report the relation.
	Value     *bool
	Status    Status
	Count     *int
	// FetchedAt is when the request that produced the snapshot started.
	// Zero means unknown; such a snapshot only clears a local status it agrees with.
	FetchedAt time.Time
}

// RelationState is what the UI renders for one entity.
type RelationState struct {
	ID        string
	Displayed bool
	Busy      bool
	Status    Status
	Count     int
	HasCount  bool
	Err       error
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n.
func Int(n int) *int { return &n }
