package store

import (
	"errors"
	"time"

	"vaultkeeper/internal/inventory"
)

// Result reports what Apply did with a snapshot.
type Result int

const (
	Accepted Result = iota + 1
	SkippedIdentical
	DiscardedStale
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case SkippedIdentical:
		return "skipped_identical"
	case DiscardedStale:
		return "discarded_stale"
	default:
		return "unknown"
	}
}

var (
	// ErrMalformedSnapshot wraps every validation failure at ingestion.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrUnknownInstance   = errors.New("unknown item instance")
	ErrUnknownSocket     = errors.New("unknown socket")
	ErrDisposed          = errors.New("store disposed")
)

// Outcome tells RemoveActiveTransfer how the move ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Transit is one in-flight registry entry.
type Transit struct {
	// Target is where the instance is headed. The zero Location means the
	// caller did not say; the merge then leaves the instance where the
	// authority reports it.
	Target inventory.Location
	// Confirmed is the last location the authority (or a completed hop)
	// placed the instance at.
	Confirmed inventory.Location
	// Injected is set while the visible copy at Target came from the local
	// store rather than the authority.
	Injected bool
	Since    time.Time
}

// ChangeKind classifies a published change.
type ChangeKind string

const (
	ChangeSnapshot ChangeKind = "snapshot"
	ChangeInstance ChangeKind = "instance"
	ChangeSocket   ChangeKind = "socket"
	ChangeState    ChangeKind = "state"
	ChangeInFlight ChangeKind = "inflight"
	ChangeReset    ChangeKind = "reset"
)

// Change is delivered to subscribers after each committed write.
type Change struct {
	Kind       ChangeKind `json:"kind"`
	Version    uint64     `json:"version"`
	InstanceID string     `json:"instanceId,omitempty"`
}
