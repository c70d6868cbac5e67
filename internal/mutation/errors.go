package mutation

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected means the authority answered but declined the change.
	ErrRejected = errors.New("authority rejected the change")
	// ErrPlugNotAllowed means the plug is not in the socket's plug set.
	ErrPlugNotAllowed = errors.New("plug not allowed in socket")
	// ErrNotLockable means the item has no lock state.
	ErrNotLockable = errors.New("item cannot be locked")
)

// Op names the kind of mutation.
type Op string

const (
	OpInsertPlug Op = "insert_plug"
	OpSetLock    Op = "set_lock"
)

// SocketMutationError reports a mutation the authority refused. By the time
// the caller sees it the optimistic value has been reverted and a resync
// attempted.
type SocketMutationError struct {
	Op          Op
	InstanceID  string
	SocketIndex int
	// Attempted and Restored are plug hashes for OpInsertPlug and 0/1 for
	// OpSetLock.
	Attempted uint32
	Restored  uint32
	// ResyncErr is set when the forced resync itself failed.
	ResyncErr error
	Err       error
}

func (e *SocketMutationError) Error() string {
	msg := fmt.Sprintf("%s on %s", e.Op, e.InstanceID)
	if e.Op == OpInsertPlug {
		msg = fmt.Sprintf("%s socket %d (plug %d)", msg, e.SocketIndex, e.Attempted)
	}
	msg += " rolled back: " + e.Err.Error()
	if e.ResyncErr != nil {
		msg += "; resync failed: " + e.ResyncErr.Error()
	}
	return msg
}

func (e *SocketMutationError) Unwrap() error { return e.Err }

func (e *SocketMutationError) ErrorKind() string { return "socket_mutation_failed" }

type pendingError struct{ instanceID string }

func (e pendingError) Error() string     { return fmt.Sprintf("%v: %s", ErrMutationPending, e.instanceID) }
func (e pendingError) Unwrap() error     { return ErrMutationPending }
func (e pendingError) ErrorKind() string { return "pending" }
