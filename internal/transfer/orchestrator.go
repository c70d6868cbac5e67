package transfer

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

// Authority is the slice of the remote authority that moves items.
type Authority interface {
	MoveItem(ctx context.Context, instanceID string, itemHash uint32, from, to inventory.Location) error
	EquipItem(ctx context.Context, instanceID, characterID string) error
}

// Request asks for one instance to end up at Target.
type Request struct {
	InstanceID string
	// ItemHash is optional; when set it must match the canonical item.
	ItemHash uint32
	Target   inventory.Location
	// EquipOnArrival turns a character inventory target into that
	// character's equipment.
	EquipOnArrival bool
	Session        *Session
}

// Result describes a completed transfer.
type Result struct {
	InstanceID string
	From       inventory.Location
	To         inventory.Location
	Hops       []Hop
}

// Orchestrator runs transfers against the store and the authority.
type Orchestrator struct {
	store     *store.Store
	authority Authority
	defs      manifest.Lookup
	logger    *slog.Logger
	tracer    trace.Tracer

	mu     sync.Mutex
	active map[string]struct{}
}

// New builds an orchestrator. defs may be nil, in which case only the
// authority's transfer status gates a move.
func New(st *store.Store, authority Authority, defs manifest.Lookup, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		authority: authority,
		defs:      defs,
		logger:    logging.NewComponentLogger(logger, "transfer"),
		tracer:    otel.Tracer("vaultkeeper/transfer"),
		active:    make(map[string]struct{}),
	}
}

// Transfer moves one instance to the requested location. It returns once the
// authority accepted every hop or one hop failed. It never waits for a
// snapshot: success clears the in-flight mark and the next snapshot places
// the item.
func (o *Orchestrator) Transfer(ctx context.Context, req Request) (Result, error) {
	target, err := resolveTarget(req)
	if err != nil {
		return Result{}, err
	}
	if !o.acquire(req.InstanceID) {
		return Result{}, reject("in_flight", ErrInFlight, "%s", req.InstanceID)
	}
	defer o.release(req.InstanceID)

	view := o.store.View()
	if view.IsInFlight(req.InstanceID) {
		return Result{}, reject("in_flight", ErrInFlight, "%s", req.InstanceID)
	}
	item, ok := view.Find(req.InstanceID)
	if !ok {
		return Result{}, services.Wrap(services.ErrNotFound, "transfer", "find item", req.InstanceID, nil)
	}
	if req.ItemHash != 0 && req.ItemHash != item.ItemHash {
		return Result{}, reject("validation", ErrHashMismatch, "instance %s is %d, not %d", req.InstanceID, item.ItemHash, req.ItemHash)
	}
	if err := o.checkTransferable(item, target); err != nil {
		return Result{}, err
	}

	hops, err := PlanRoute(item.Location, target)
	if err != nil {
		return Result{}, rejection{kind: "no_route", err: err}
	}
	result := Result{InstanceID: req.InstanceID, From: item.Location, To: target, Hops: hops}
	if len(hops) == 0 {
		return result, nil
	}
	if err := req.Session.reserve(req.InstanceID, len(hops)); err != nil {
		return Result{}, rejection{kind: "session_limit", err: err}
	}

	ctx = services.WithInstanceID(ctx, req.InstanceID)
	if req.Session != nil {
		ctx = services.WithSessionID(ctx, req.Session.ID)
	}
	ctx, span := o.tracer.Start(ctx, "transfer",
		trace.WithAttributes(
			attribute.String("vaultkeeper.instance_id", req.InstanceID),
			attribute.String("vaultkeeper.from", item.Location.String()),
			attribute.String("vaultkeeper.to", target.String()),
			attribute.Int("vaultkeeper.hops", len(hops)),
		))
	defer span.End()

	logger := logging.WithContext(ctx, o.logger)
	logger.Debug("transfer planned",
		logging.String("from", item.Location.String()),
		logging.String(logging.FieldTarget, target.String()),
		logging.Int("hops", len(hops)),
	)

	if err := o.run(ctx, logger, item, hops); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer failed")
		return result, err
	}
	logger.Info("transfer complete",
		logging.String(logging.FieldEventType, "transfer_complete"),
		logging.String("from", item.Location.String()),
		logging.String(logging.FieldTarget, target.String()),
		logging.Int("hops", len(hops)),
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, item inventory.Item, hops []Hop) error {
	id := item.InstanceID
	for i, hop := range hops {
		if err := o.store.AddActiveTransfer(id, hop.To); err != nil {
			return o.fail(logger, id, hop, i, "register in-flight", err)
		}
		if err := ctx.Err(); err != nil {
			return o.fail(logger, id, hop, i, "cancelled", err)
		}
		var callErr error
		switch hop.Kind {
		case HopMove:
			callErr = o.authority.MoveItem(ctx, id, item.ItemHash, hop.From, hop.To)
		case HopEquip:
			callErr = o.authority.EquipItem(ctx, id, hop.To.CharacterID)
		default:
			callErr = fmt.Errorf("unknown hop kind %d", hop.Kind)
		}
		if callErr != nil {
			return o.fail(logger, id, hop, i, "authority rejected hop", callErr)
		}
		if i < len(hops)-1 {
			if err := o.store.ConfirmHop(id, hop.To); err != nil {
				return o.fail(logger, id, hop, i+1, "confirm hop", err)
			}
		}
	}
	return o.store.RemoveActiveTransfer(id, store.OutcomeSuccess)
}

func (o *Orchestrator) fail(logger *slog.Logger, id string, hop Hop, completed int, reason string, err error) error {
	if clearErr := o.store.RemoveActiveTransfer(id, store.OutcomeFailure); clearErr != nil && !errors.Is(clearErr, store.ErrDisposed) {
		logger.Error("clear in-flight after failure", logging.Error(clearErr))
	}
	logging.WarnWithContext(logger, "transfer failed", "transfer_failed",
		logging.String("hop", hop.String()),
		logging.Int("completed_hops", completed),
		logging.String("reason", reason),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "refresh the profile and retry; the item stays at its last confirmed location"),
		logging.String(logging.FieldImpact, "item was not moved to its target"),
	)
	return &TransferError{InstanceID: id, Hop: hop, Completed: completed, Reason: reason, Err: err}
}

func (o *Orchestrator) checkTransferable(item inventory.Item, target inventory.Location) error {
	if !item.Instanced() {
		return services.Wrap(services.ErrValidation, "transfer", "check item", "stackable items are not transferred by instance", nil)
	}
	if item.TransferStatus.Has(inventory.TransferNotTransferable) {
		return reject("not_transferable", ErrNotTransferable, "%s", item)
	}
	if o.defs == nil {
		return nil
	}
	def, ok := o.defs.Resolve(item.ItemHash)
	if !ok {
		return nil
	}
	if def.NonTransferrable && !sameCharacter(item.Location, target) {
		return reject("not_transferable", ErrNotTransferable, "%s (%s) is bound to its character", def.Name, item)
	}
	if target.Kind == inventory.KindEquipped && !def.Equippable {
		return reject("not_transferable", ErrNotTransferable, "%s cannot be equipped", def.Name)
	}
	return nil
}

func sameCharacter(a, b inventory.Location) bool {
	return !a.IsVault() && !b.IsVault() && a.CharacterID == b.CharacterID
}

func resolveTarget(req Request) (inventory.Location, error) {
	if req.InstanceID == "" {
		return inventory.Location{}, services.Wrap(services.ErrValidation, "transfer", "validate request", "instance id is required", nil)
	}
	target := req.Target
	if err := target.Validate(); err != nil {
		return inventory.Location{}, services.Wrap(services.ErrValidation, "transfer", "validate request", "target", err)
	}
	if req.EquipOnArrival {
		if target.IsVault() {
			return inventory.Location{}, services.Wrap(services.ErrValidation, "transfer", "validate request", "cannot equip in the vault", nil)
		}
		target = inventory.Equipped(target.CharacterID)
	}
	return target, nil
}

func (o *Orchestrator) acquire(instanceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[instanceID]; busy {
		return false
	}
	o.active[instanceID] = struct{}{}
	return true
}

func (o *Orchestrator) release(instanceID string) {
	o.mu.Lock()
	delete(o.active, instanceID)
	o.mu.Unlock()
}

// Active reports whether a transfer for instanceID is running.
func (o *Orchestrator) Active(instanceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[instanceID]
	return ok
}
