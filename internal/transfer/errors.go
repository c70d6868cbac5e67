package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrInFlight rejects a request for an instance that already has a
	// transfer running.
	ErrInFlight = errors.New("transfer already in flight")
	// ErrNotTransferable means the definition or the authority's transfer
	// status forbids moving the item.
	ErrNotTransferable = errors.New("item is not transferable")
	// ErrHashMismatch means the request's item hash disagrees with the
	// canonical item.
	ErrHashMismatch = errors.New("item hash does not match instance")
)

// TransferError reports a hop the authority refused or that could not be
// issued. The instance's in-flight mark has been cleared by the time the
// caller sees it.
type TransferError struct {
	InstanceID string
	Hop        Hop
	// Completed is the number of hops the authority accepted before the
	// failing one.
	Completed int
	Reason    string
	Err       error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer %s failed at %s: %s: %v", e.InstanceID, e.Hop, e.Reason, e.Err)
	}
	return fmt.Sprintf("transfer %s failed at %s: %s", e.InstanceID, e.Hop, e.Reason)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) ErrorKind() string { return "transfer_failed" }

// rejection wraps the sentinel errors above so the journal can classify them.
type rejection struct {
	kind string
	err  error
}

func (r rejection) Error() string     { return r.err.Error() }
func (r rejection) Unwrap() error     { return r.err }
func (r rejection) ErrorKind() string { return r.kind }

func reject(kind string, sentinel error, format string, args ...any) error {
	return rejection{kind: kind, err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}
