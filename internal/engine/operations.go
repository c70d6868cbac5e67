package engine

import (
	"context"
	"errors"
	"fmt"

	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/journal"
	"vaultkeeper/internal/loadout"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/mutation"
	"vaultkeeper/internal/services"
	"vaultkeeper/internal/store"
	"vaultkeeper/internal/transfer"
)

// TransferRequest asks for one instance to be moved.
type TransferRequest struct {
	InstanceID string
	ItemHash   uint32
	Target     inventory.Location
	Equip      bool
}

// TransferOutcome is a finished transfer with its journal id.
type TransferOutcome struct {
	OperationID string
	Result      transfer.Result
}

// RequestTransfer moves an instance to the target. A success only means the
// authority accepted every hop; the item's location changes when the next
// snapshot confirms it.
func (e *Engine) RequestTransfer(ctx context.Context, req TransferRequest) (TransferOutcome, error) {
	subject := journal.Subject{InstanceID: req.InstanceID, Target: req.Target.String()}
	if !req.Target.IsVault() {
		subject.CharacterID = req.Target.CharacterID
	}
	ctx, opID := e.begin(ctx, journal.KindTransfer, subject)
	ctx = services.WithInstanceID(ctx, req.InstanceID)

	session := transfer.NewSession(e.limits)
	ctx = services.WithSessionID(ctx, session.ID)
	result, err := e.transfers.Transfer(ctx, transfer.Request{
		InstanceID:     req.InstanceID,
		ItemHash:       req.ItemHash,
		Target:         req.Target,
		EquipOnArrival: req.Equip,
		Session:        session,
	})
	e.finish(ctx, opID, journal.KindTransfer, req.InstanceID, err, transferDetail(result))
	if err == nil && len(result.Hops) > 0 {
		e.requestRefresh()
	}
	return TransferOutcome{OperationID: opID, Result: result}, err
}

type hopDetail struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Hops []string `json:"hops,omitempty"`
}

func transferDetail(result transfer.Result) any {
	if result.InstanceID == "" {
		return nil
	}
	detail := hopDetail{From: result.From.String(), To: result.To.String()}
	for _, hop := range result.Hops {
		detail.Hops = append(detail.Hops, hop.String())
	}
	return detail
}

// SocketOutcome is a settled socket mutation with its journal id.
type SocketOutcome struct {
	OperationID string
	Result      mutation.Result
}

// RequestSocketMutation inserts plugHash into one socket optimistically. On
// failure the socket is restored and a resync has already been attempted when
// this returns.
func (e *Engine) RequestSocketMutation(ctx context.Context, instanceID string, socketIndex int, plugHash uint32) (SocketOutcome, error) {
	ctx, opID := e.begin(ctx, journal.KindSocket, journal.Subject{
		InstanceID: instanceID,
		Target:     fmt.Sprintf("socket %d = %d", socketIndex, plugHash),
	})
	ctx = services.WithInstanceID(ctx, instanceID)
	result, err := e.mutator.InsertPlug(ctx, mutation.Request{
		InstanceID:  instanceID,
		SocketIndex: socketIndex,
		PlugHash:    plugHash,
	})
	var detail any
	if err == nil {
		detail = result
	}
	e.finish(ctx, opID, journal.KindSocket, instanceID, err, detail)
	return SocketOutcome{OperationID: opID, Result: result}, err
}

// SetLockState locks or unlocks an instance. changed is false when the item
// was already in the requested state.
func (e *Engine) SetLockState(ctx context.Context, instanceID string, locked bool) (changed bool, err error) {
	target := "unlocked"
	if locked {
		target = "locked"
	}
	ctx, opID := e.begin(ctx, journal.KindLock, journal.Subject{InstanceID: instanceID, Target: target})
	ctx = services.WithInstanceID(ctx, instanceID)
	changed, err = e.mutator.SetLocked(ctx, instanceID, locked)
	e.finish(ctx, opID, journal.KindLock, instanceID, err, map[string]bool{"changed": changed})
	return changed, err
}

// LoadoutOutcome is a finished loadout run with its journal id.
type LoadoutOutcome struct {
	OperationID string
	Result      loadout.Result
}

// EquipLoadout runs a loadout for a character. Progress is delivered to
// onProgress, when set, and published on the event hub. An unsuccessful run
// returns its Result together with a *loadout.PartialEquipError.
func (e *Engine) EquipLoadout(ctx context.Context, def loadout.Definition, characterID string, onProgress loadout.ProgressFunc) (LoadoutOutcome, error) {
	ctx, opID := e.begin(ctx, journal.KindLoadout, journal.Subject{CharacterID: characterID, Target: def.Name})
	ctx = services.WithCharacterID(ctx, characterID)

	report := func(step string, percent float64) {
		e.events.Publish(Event{Type: EventProgress, Progress: &Progress{
			OperationID: opID,
			Loadout:     def.Name,
			Step:        step,
			Percent:     percent,
		}})
		if onProgress != nil {
			onProgress(step, percent)
		}
	}

	result, err := e.loadouts.Equip(ctx, def, characterID, report)
	var detail any
	if result.Loadout != "" {
		detail = loadoutDetail{Equipped: result.Equipped, Failed: result.Failed, Missing: result.Missing}
	}
	e.finish(ctx, opID, journal.KindLoadout, "", err, detail)
	if len(result.Equipped) > 0 || len(result.Failed) > 0 {
		e.requestRefresh()
	}
	return LoadoutOutcome{OperationID: opID, Result: result}, err
}

type loadoutDetail struct {
	Equipped []string          `json:"equipped,omitempty"`
	Failed   []loadout.Failure `json:"failed,omitempty"`
	Missing  []string          `json:"missing,omitempty"`
}

// ValidateLoadout resolves a loadout against the current store without any
// remote call.
func (e *Engine) ValidateLoadout(def loadout.Definition, characterID string) (loadout.Result, error) {
	return e.loadouts.Check(def, characterID)
}

// Resync fetches the profile immediately, sharing a fetch already forced by
// a rollback.
func (e *Engine) Resync(ctx context.Context) (store.View, error) {
	ctx, opID := e.begin(ctx, journal.KindResync, journal.Subject{})
	err := e.syncer.ForceResync(ctx)
	e.finish(ctx, opID, journal.KindResync, "", err, nil)
	return e.store.View(), err
}

func (e *Engine) requestRefresh() {
	if e.refresh {
		e.syncer.RequestRefresh()
	}
}

// begin opens a journal row and stamps its id on ctx. Journal failures are
// logged and never block the operation.
func (e *Engine) begin(ctx context.Context, kind journal.Kind, subject journal.Subject) (context.Context, string) {
	if e.journal == nil {
		return ctx, ""
	}
	entry, err := e.journal.Begin(ctx, kind, subject)
	if err != nil {
		logging.WarnWithContext(e.logger, "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String("kind", string(kind)),
			logging.String(logging.FieldErrorHint, "check the journal database in the state directory"),
			logging.String(logging.FieldImpact, "the operation runs but will not appear in history"),
		)
		return ctx, ""
	}
	return services.WithOperationID(ctx, entry.ID), entry.ID
}

func (e *Engine) finish(ctx context.Context, opID string, kind journal.Kind, instanceID string, opErr error, detail any) {
	evt := &OperationEvent{OperationID: opID, Kind: string(kind), InstanceID: instanceID, Success: opErr == nil}
	if opErr != nil {
		evt.Error = opErr.Error()
	}
	e.events.Publish(Event{Type: EventOperation, Operation: evt})

	if e.journal == nil || opID == "" {
		return
	}
	// The operation may have been cancelled; its row still needs closing.
	ctx = context.WithoutCancel(ctx)
	var err error
	if opErr != nil {
		err = e.journal.Fail(ctx, opID, opErr, detail)
	} else {
		err = e.journal.Succeed(ctx, opID, detail)
	}
	if err != nil && !errors.Is(err, services.ErrConflict) {
		logging.WarnWithContext(e.logger, "journal update failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldOperationID, opID),
			logging.String(logging.FieldErrorHint, "check the journal database in the state directory"),
		)
	}
}
