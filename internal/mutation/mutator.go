package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/manifest"
	"vaultkeeper/internal/services"
	"vaultkeeper/internal/store"
)

// Authority is the slice of the remote authority that edits instances. A
// false result with a nil error means the authority declined.
type Authority interface {
	InsertSocketPlug(ctx context.Context, instanceID string, socketIndex int, plugHash uint32, characterID string) (bool, error)
	SetLockState(ctx context.Context, instanceID, characterID string, locked bool) (bool, error)
}

// Resyncer forces a full profile fetch and apply.
type Resyncer interface {
	ForceResync(ctx context.Context) error
}

// Request asks for one socket on one instance to hold PlugHash.
type Request struct {
	InstanceID  string
	SocketIndex int
	PlugHash    uint32
	// CharacterID is optional; it defaults to the item's owner, or the first
	// character for vault items.
	CharacterID string
}

// Result describes a settled mutation.
type Result struct {
	InstanceID  string
	SocketIndex int
	Previous    uint32
	Current     uint32
	// Changed is false when the socket already held the plug and no remote
	// call was made.
	Changed bool
}

// Mutator serializes mutations per instance and runs their effects.
type Mutator struct {
	store     *store.Store
	authority Authority
	resync    Resyncer
	defs      manifest.Lookup
	logger    *slog.Logger
	tracer    trace.Tracer

	mu     sync.Mutex
	phases map[string]Phase
}

// New builds a mutator. resync and defs may be nil.
func New(st *store.Store, authority Authority, resync Resyncer, defs manifest.Lookup, logger *slog.Logger) *Mutator {
	return &Mutator{
		store:     st,
		authority: authority,
		resync:    resync,
		defs:      defs,
		logger:    logging.NewComponentLogger(logger, "mutation"),
		tracer:    otel.Tracer("vaultkeeper/mutation"),
		phases:    make(map[string]Phase),
	}
}

// Phase returns the current phase of an instance.
func (m *Mutator) Phase(instanceID string) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phases[instanceID]
}

// InsertPlug changes one socket.
func (m *Mutator) InsertPlug(ctx context.Context, req Request) (Result, error) {
	if req.InstanceID == "" || req.SocketIndex < 0 || req.PlugHash == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "mutation", "insert plug", "instance id, socket index and plug hash are required", nil)
	}
	view := m.store.View()
	item, ok := view.Find(req.InstanceID)
	if !ok {
		return Result{}, services.Wrap(services.ErrNotFound, "mutation", "insert plug", req.InstanceID, nil)
	}
	inst, _ := view.Instance(req.InstanceID)
	socket, ok := inst.Socket(req.SocketIndex)
	if !ok {
		return Result{}, services.Wrap(services.ErrValidation, "mutation", "insert plug",
			fmt.Sprintf("socket %d", req.SocketIndex), store.ErrUnknownSocket)
	}
	if err := m.checkPlug(item, req); err != nil {
		return Result{}, err
	}
	result := Result{InstanceID: req.InstanceID, SocketIndex: req.SocketIndex, Previous: socket.PlugHash, Current: socket.PlugHash}
	if socket.PlugHash == req.PlugHash {
		return result, nil
	}
	characterID := ownerOf(view, item, req.CharacterID)

	ctx = services.WithInstanceID(ctx, req.InstanceID)
	ctx, span := m.tracer.Start(ctx, "mutation.insert_plug", trace.WithAttributes(
		attribute.String("vaultkeeper.instance_id", req.InstanceID),
		attribute.Int("vaultkeeper.socket_index", req.SocketIndex),
		attribute.Int64("vaultkeeper.plug_hash", int64(req.PlugHash)),
	))
	defer span.End()
	logging.WithContext(ctx, m.logger).Debug("inserting plug",
		logging.Int("socket_index", req.SocketIndex),
		logging.Hash("plug_hash", req.PlugHash),
		logging.Hash("previous_hash", socket.PlugHash),
	)

	var previous uint32
	err := m.run(ctx, req.InstanceID, effects{
		apply: func() error {
			prev, err := m.store.UpdateItemSocket(req.InstanceID, req.SocketIndex, req.PlugHash)
			previous = prev
			return err
		},
		call: func(ctx context.Context) (bool, error) {
			return m.authority.InsertSocketPlug(ctx, req.InstanceID, req.SocketIndex, req.PlugHash, characterID)
		},
		revert: func() error {
			_, err := m.store.UpdateItemSocket(req.InstanceID, req.SocketIndex, previous)
			return err
		},
		failure: func(cause, resyncErr error) error {
			return &SocketMutationError{
				Op: OpInsertPlug, InstanceID: req.InstanceID, SocketIndex: req.SocketIndex,
				Attempted: req.PlugHash, Restored: previous, ResyncErr: resyncErr, Err: cause,
			}
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert plug failed")
		return result, err
	}
	result.Previous = previous
	result.Current = req.PlugHash
	result.Changed = true
	return result, nil
}

// SetLocked flips the lock bit of one instance. It shares the per-instance
// guard with InsertPlug.
func (m *Mutator) SetLocked(ctx context.Context, instanceID string, locked bool) (bool, error) {
	if instanceID == "" {
		return false, services.Wrap(services.ErrValidation, "mutation", "set lock", "instance id is required", nil)
	}
	view := m.store.View()
	item, ok := view.Find(instanceID)
	if !ok {
		return false, services.Wrap(services.ErrNotFound, "mutation", "set lock", instanceID, nil)
	}
	if !item.Lockable {
		return false, services.Wrap(services.ErrValidation, "mutation", "set lock", instanceID, ErrNotLockable)
	}
	if item.State.Has(inventory.StateLocked) == locked {
		return false, nil
	}
	characterID := ownerOf(view, item, "")

	ctx = services.WithInstanceID(ctx, instanceID)
	ctx, span := m.tracer.Start(ctx, "mutation.set_lock", trace.WithAttributes(
		attribute.String("vaultkeeper.instance_id", instanceID),
		attribute.Bool("vaultkeeper.locked", locked),
	))
	defer span.End()

	var wasLocked bool
	err := m.run(ctx, instanceID, effects{
		apply: func() error {
			prev, err := m.store.SetItemState(instanceID, inventory.StateLocked, locked)
			wasLocked = prev.Has(inventory.StateLocked)
			return err
		},
		call: func(ctx context.Context) (bool, error) {
			return m.authority.SetLockState(ctx, instanceID, characterID, locked)
		},
		revert: func() error {
			_, err := m.store.SetItemState(instanceID, inventory.StateLocked, wasLocked)
			return err
		},
		failure: func(cause, resyncErr error) error {
			return &SocketMutationError{
				Op: OpSetLock, InstanceID: instanceID,
				Attempted: boolHash(locked), Restored: boolHash(wasLocked), ResyncErr: resyncErr, Err: cause,
			}
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set lock failed")
		return false, err
	}
	return true, nil
}

type effects struct {
	apply   func() error
	call    func(context.Context) (bool, error)
	revert  func() error
	failure func(cause, resyncErr error) error
}

// run walks one instance through the state machine, performing each effect
// Transition asks for.
func (m *Mutator) run(ctx context.Context, instanceID string, fx effects) error {
	todo, err := m.step(instanceID, EventRequest)
	if err != nil {
		return err
	}
	defer func() {
		if _, err := m.step(instanceID, EventSettle); err != nil {
			m.logger.Error("settle mutation", logging.String(logging.FieldInstanceID, instanceID), logging.Error(err))
		}
	}()

	logger := logging.WithContext(ctx, m.logger)
	var cause error
	for _, effect := range todo {
		switch effect {
		case EffectApplyOverride:
			if err := fx.apply(); err != nil {
				// Nothing was changed; the remote is never called.
				m.forceSettle(instanceID)
				return err
			}
		case EffectCallRemote:
			ok, callErr := fx.call(ctx)
			switch {
			case callErr != nil:
				cause = callErr
			case !ok:
				cause = ErrRejected
			}
		}
	}

	if cause == nil {
		if _, err := m.step(instanceID, EventRemoteSuccess); err != nil {
			return err
		}
		logger.Debug("mutation confirmed")
		return nil
	}

	todo, err = m.step(instanceID, EventRemoteFailure)
	if err != nil {
		return err
	}
	var resyncErr error
	for _, effect := range todo {
		switch effect {
		case EffectRevert:
			if err := fx.revert(); err != nil && !errors.Is(err, store.ErrDisposed) {
				logger.Error("revert optimistic change", logging.Error(err))
			}
		case EffectForceResync:
			if m.resync == nil {
				continue
			}
			// The caller may be gone; the resync still has to happen.
			resyncErr = m.resync.ForceResync(context.WithoutCancel(ctx))
		}
	}
	logging.WarnWithContext(logger, "mutation rolled back", "mutation_rolled_back",
		logging.Error(cause),
		logging.Bool("resynced", m.resync != nil && resyncErr == nil),
		logging.String(logging.FieldErrorHint, "the item may be in an activity that restricts changes"),
		logging.String(logging.FieldImpact, "change was not applied"),
	)
	return fx.failure(cause, resyncErr)
}

func (m *Mutator) step(instanceID string, event Event) ([]Effect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, todo, err := Transition(m.phases[instanceID], event)
	if err != nil {
		if errors.Is(err, ErrMutationPending) {
			return nil, pendingError{instanceID: instanceID}
		}
		return nil, err
	}
	if next == PhaseIdle {
		delete(m.phases, instanceID)
	} else {
		m.phases[instanceID] = next
	}
	return todo, nil
}

// forceSettle returns an instance to idle when the request never reached
// the authority.
func (m *Mutator) forceSettle(instanceID string) {
	m.mu.Lock()
	m.phases[instanceID] = PhaseConfirmed
	m.mu.Unlock()
}

func (m *Mutator) checkPlug(item inventory.Item, req Request) error {
	if m.defs == nil {
		return nil
	}
	def, ok := m.defs.Resolve(item.ItemHash)
	if !ok {
		return nil
	}
	entry, ok := def.Socket(req.SocketIndex)
	if !ok || entry.PlugSetHash == 0 {
		return nil
	}
	set, ok := m.defs.PlugSet(entry.PlugSetHash)
	if !ok || set.Contains(req.PlugHash) {
		return nil
	}
	return services.Wrap(services.ErrValidation, "mutation", "insert plug",
		fmt.Sprintf("plug %d on %s socket %d", req.PlugHash, def.Name, req.SocketIndex), ErrPlugNotAllowed)
}

// ownerOf picks the character the authority expects with an instance call.
func ownerOf(view store.View, item inventory.Item, requested string) string {
	if requested != "" {
		return requested
	}
	if !item.Location.IsVault() {
		return item.Location.CharacterID
	}
	if chars := view.Characters(); len(chars) > 0 {
		return chars[0].CharacterID
	}
	return ""
}

func boolHash(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
