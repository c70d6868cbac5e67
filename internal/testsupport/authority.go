package testsupport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"vaultkeeper/internal/inventory"
)

// Remote operation names recorded by FakeAuthority.
const (
	OpFetch  = "fetch"
	OpMove   = "move"
	OpEquip  = "equip"
	OpInsert = "insert"
	OpLock   = "lock"
)

// Call is one recorded remote call.
type Call struct {
	Op          string
	InstanceID  string
	ItemHash    uint32
	From        inventory.Location
	To          inventory.Location
	CharacterID string
	SocketIndex int
	PlugHash    uint32
	Locked      bool
}

// FakeAuthority is an in-memory remote authority. It records every call,
// returns injected failures, and can hold calls open so tests can observe
// concurrent behaviour.
type FakeAuthority struct {
	mu       sync.Mutex
	calls    []Call
	failures map[string]error
	rejects  map[string]bool
	gates    map[string]chan struct{}
	started  chan Call
	profile  inventory.Snapshot
	fetchErr error
}

// NewFakeAuthority returns an authority that accepts everything.
func NewFakeAuthority() *FakeAuthority {
	return &FakeAuthority{
		failures: make(map[string]error),
		rejects:  make(map[string]bool),
		gates:    make(map[string]chan struct{}),
		started:  make(chan Call, 64),
	}
}

func key(op, instanceID string) string { return op + "/" + instanceID }

// Fail makes every op call for instanceID return err. An empty instanceID
// matches any instance.
func (f *FakeAuthority) Fail(op, instanceID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, key(op, instanceID))
		return
	}
	f.failures[key(op, instanceID)] = err
}

// Reject makes insert/lock calls return false without an error.
func (f *FakeAuthority) Reject(op, instanceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects[key(op, instanceID)] = true
}

// Block holds op calls open until the returned release func is called.
func (f *FakeAuthority) Block(op string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[op] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[op] == gate {
				delete(f.gates, op)
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Started delivers each call as it begins, before any blocking.
func (f *FakeAuthority) Started() <-chan Call { return f.started }

// SetProfile sets what FetchProfile returns.
func (f *FakeAuthority) SetProfile(snap inventory.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = snap
}

// FailFetch makes FetchProfile return err until cleared with nil.
func (f *FakeAuthority) FailFetch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// Calls returns a copy of the recorded calls.
func (f *FakeAuthority) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsFor returns the recorded calls of one operation.
func (f *FakeAuthority) CallsFor(op string) []Call {
	var out []Call
	for _, call := range f.Calls() {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

func (f *FakeAuthority) FetchProfile(ctx context.Context) (inventory.Snapshot, error) {
	if err := f.begin(ctx, Call{Op: OpFetch}); err != nil {
		return inventory.Snapshot{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return inventory.Snapshot{}, f.fetchErr
	}
	if f.profile.Timestamp.IsZero() {
		return inventory.Snapshot{}, errors.New("fake authority: no profile configured")
	}
	return f.profile.Normalize(), nil
}

func (f *FakeAuthority) MoveItem(ctx context.Context, instanceID string, itemHash uint32, from, to inventory.Location) error {
	return f.begin(ctx, Call{Op: OpMove, InstanceID: instanceID, ItemHash: itemHash, From: from, To: to})
}

func (f *FakeAuthority) EquipItem(ctx context.Context, instanceID, characterID string) error {
	return f.begin(ctx, Call{Op: OpEquip, InstanceID: instanceID, CharacterID: characterID})
}

func (f *FakeAuthority) InsertSocketPlug(ctx context.Context, instanceID string, socketIndex int, plugHash uint32, characterID string) (bool, error) {
	call := Call{Op: OpInsert, InstanceID: instanceID, SocketIndex: socketIndex, PlugHash: plugHash, CharacterID: characterID}
	if err := f.begin(ctx, call); err != nil {
		return false, err
	}
	return !f.rejected(OpInsert, instanceID), nil
}

func (f *FakeAuthority) SetLockState(ctx context.Context, instanceID, characterID string, locked bool) (bool, error) {
	call := Call{Op: OpLock, InstanceID: instanceID, CharacterID: characterID, Locked: locked}
	if err := f.begin(ctx, call); err != nil {
		return false, err
	}
	return !f.rejected(OpLock, instanceID), nil
}

func (f *FakeAuthority) begin(ctx context.Context, call Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	gate := f.gates[call.Op]
	err := f.failures[key(call.Op, call.InstanceID)]
	if err == nil {
		err = f.failures[key(call.Op, "")]
	}
	f.mu.Unlock()

	select {
	case f.started <- call:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return fmt.Errorf("fake %s %s: %w", call.Op, call.InstanceID, err)
	}
	return nil
}

func (f *FakeAuthority) rejected(op, instanceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejects[key(op, instanceID)] || f.rejects[key(op, "")]
}
