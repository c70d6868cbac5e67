package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/logging"
)

// Store is the canonical item store. The zero value is not usable; call New.
type Store struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	current  atomic.Pointer[state]
	disposed bool

	subMu   sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp in-flight entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs an empty store.
func New(logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		logger: logging.NewComponentLogger(logger, "store"),
		now:    time.Now,
		subs:   make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(emptyState())
	return s
}

// Dispose closes every subscription and rejects further writes. Reads keep
// returning the last state.
func (s *Store) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// View returns a consistent read-only view of the current state.
func (s *Store) View() View {
	return View{st: s.current.Load()}
}

// Apply merges an authoritative snapshot. Snapshots that fail validation are
// rejected whole with ErrMalformedSnapshot; snapshots not strictly newer than
// the guard are discarded whole.
func (s *Store) Apply(snap inventory.Snapshot) (Result, error) {
	snap = snap.Normalize()
	if err := snap.Validate(); err != nil {
		logging.WarnWithContext(s.logger, "snapshot rejected", "snapshot_rejected",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the remote payload failed validation; the store was left unchanged"),
		)
		return 0, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	digest, err := snap.Digest()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return 0, ErrDisposed
	}
	cur := s.current.Load()
	if !snap.Timestamp.After(cur.guard) {
		s.mu.Unlock()
		s.logger.Debug("stale snapshot discarded",
			logging.String(logging.FieldEventType, "snapshot_discarded"),
			logging.Time("snapshot_ts", snap.Timestamp),
			logging.Time("guard_ts", cur.guard),
		)
		return DiscardedStale, nil
	}
	if digest == cur.digest && len(cur.inflight) == 0 {
		next := cur.shallow()
		next.guard = snap.Timestamp
		s.current.Store(next)
		s.mu.Unlock()
		return SkippedIdentical, nil
	}
	next := merge(cur, snap, digest)
	s.current.Store(next)
	s.mu.Unlock()

	s.logger.Debug("snapshot applied",
		logging.String(logging.FieldEventType, "snapshot_applied"),
		logging.Int("items", snap.ItemCount()),
		logging.Int("in_flight", len(next.inflight)),
		logging.Uint64("version", next.version),
	)
	s.publish(Change{Kind: ChangeSnapshot, Version: next.version})
	return Accepted, nil
}

// UpdateItemInstance applies a partial update to one instance.
func (s *Store) UpdateItemInstance(instanceID string, patch inventory.InstancePatch) error {
	return s.write(ChangeInstance, instanceID, func(st *state) error {
		inst, ok := st.instances[instanceID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInstance, instanceID)
		}
		st.instances[instanceID] = inst.Apply(patch)
		return nil
	})
}

// UpdateItemSocket sets the plug in one socket and returns the plug it
// replaced.
func (s *Store) UpdateItemSocket(instanceID string, socketIndex int, plugHash uint32) (uint32, error) {
	var previous uint32
	err := s.write(ChangeSocket, instanceID, func(st *state) error {
		inst, ok := st.instances[instanceID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInstance, instanceID)
		}
		socket, ok := inst.Socket(socketIndex)
		if !ok {
			return fmt.Errorf("%w: instance %s has no socket %d", ErrUnknownSocket, instanceID, socketIndex)
		}
		previous = socket.PlugHash
		updated, _ := inst.WithPlug(socketIndex, plugHash)
		st.instances[instanceID] = updated
		return nil
	})
	return previous, err
}

// SetItemState sets or clears a state flag on an instanced item and returns
// the previous mask.
func (s *Store) SetItemState(instanceID string, flag inventory.ItemState, on bool) (inventory.ItemState, error) {
	var previous inventory.ItemState
	err := s.write(ChangeState, instanceID, func(st *state) error {
		item, pos, ok := st.find(instanceID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInstance, instanceID)
		}
		previous = item.State
		item.State = item.State.With(flag, on)
		st.replaceItem(item.Location, pos, item)
		return nil
	})
	return previous, err
}

// AddActiveTransfer marks an instance as committed to move to target. Calling
// it again for an instance already in flight updates the target. A zero
// target records the move without a destination.
func (s *Store) AddActiveTransfer(instanceID string, target inventory.Location) error {
	if !target.IsZero() {
		if err := target.Validate(); err != nil {
			return err
		}
	}
	return s.write(ChangeInFlight, instanceID, func(st *state) error {
		loc, ok := st.index[instanceID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInstance, instanceID)
		}
		tr, exists := st.inflight[instanceID]
		if !exists {
			tr = Transit{Confirmed: loc, Since: s.now()}
		}
		tr.Target = target
		st.inflight[instanceID] = tr
		return nil
	})
}

// ConfirmHop records that the authority accepted a move to at, so a later
// failure restores the instance there rather than to its origin. It is a
// no-op when the instance is not in flight, e.g. because a snapshot already
// confirmed the hop.
func (s *Store) ConfirmHop(instanceID string, at inventory.Location) error {
	return s.write(ChangeInFlight, instanceID, func(st *state) error {
		tr, ok := st.inflight[instanceID]
		if !ok {
			return errNoChange
		}
		tr.Confirmed = at
		st.inflight[instanceID] = tr
		return nil
	})
}

// RemoveActiveTransfer clears the in-flight mark. Success never moves the
// item; the next snapshot places it. Failure additionally puts an injected
// copy back at its last confirmed location. Removing an instance that is not
// in flight is a no-op.
func (s *Store) RemoveActiveTransfer(instanceID string, outcome Outcome) error {
	return s.write(ChangeInFlight, instanceID, func(st *state) error {
		tr, ok := st.inflight[instanceID]
		if !ok {
			return errNoChange
		}
		delete(st.inflight, instanceID)
		if outcome == OutcomeFailure && restore(st, instanceID, tr) {
			s.logger.Debug("restored injected copy after failed transfer",
				logging.String(logging.FieldInstanceID, instanceID),
				logging.String("location", tr.Confirmed.String()),
			)
		}
		return nil
	})
}

// Reset drops all items, instances, in-flight entries, and the guard.
func (s *Store) Reset() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	next := emptyState()
	next.version = s.current.Load().version + 1
	s.current.Store(next)
	s.mu.Unlock()
	s.publish(Change{Kind: ChangeReset, Version: next.version})
	return nil
}

// Subscribe registers for change notifications. Delivery never blocks a
// writer: when the buffer is full the change is dropped, and the subscriber
// should re-read the View. The returned cancel func is idempotent.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)
	s.subMu.Lock()
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if existing, ok := s.subs[id]; ok {
				close(existing)
				delete(s.subs, id)
			}
		})
	}
}

func (s *Store) publish(change Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

// errNoChange lets a write func skip publishing without reporting an error.
var errNoChange = errors.New("no change")

func (s *Store) write(kind ChangeKind, instanceID string, fn func(*state) error) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	next := s.current.Load().shallow()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	// Local content no longer matches the last accepted snapshot, so the next
	// one must merge even if its digest is unchanged.
	next.digest = ""
	next.version++
	s.current.Store(next)
	s.mu.Unlock()
	s.publish(Change{Kind: kind, Version: next.version, InstanceID: instanceID})
	return nil
}
