package api

import (
	"context"
	"fmt"
	"strings"

	"vaultkeeper/internal/engine"
	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/journal"
	"vaultkeeper/internal/loadout"
	"vaultkeeper/internal/manifest"
	"vaultkeeper/internal/services"
)

// InventoryService runs engine operations on DTOs. The HTTP API and the IPC
// server both delegate here so the two transports behave the same.
type InventoryService struct {
	engine *engine.Engine
}

// NewInventoryService wraps eng. A nil engine yields a nil service.
func NewInventoryService(eng *engine.Engine) *InventoryService {
	if eng == nil {
		return nil
	}
	return &InventoryService{engine: eng}
}

func (s *InventoryService) defs() manifest.Lookup { return s.engine.Manifest() }

// Items lists stored items.
func (s *InventoryService) Items(q ItemsQuery) (ItemsResponse, error) {
	if q.Location != "" {
		loc, err := inventory.ParseLocation(q.Location)
		if err != nil {
			return ItemsResponse{}, services.Wrap(services.ErrValidation, "api", "items", "bad location filter", err)
		}
		q.Location = loc.String()
	}
	return FromView(s.engine.View(), s.defs(), q), nil
}

// Describe returns one instance with its sockets.
func (s *InventoryService) Describe(instanceID string) (ItemDetail, error) {
	view := s.engine.View()
	item, ok := view.Find(strings.TrimSpace(instanceID))
	if !ok {
		return ItemDetail{}, services.Wrap(services.ErrNotFound, "api", "describe", "no item "+instanceID, nil)
	}
	return FromInstance(view, s.defs(), item), nil
}

// Transfer moves an instance.
func (s *InventoryService) Transfer(ctx context.Context, req TransferRequest) (TransferResponse, error) {
	target, err := inventory.ParseLocation(req.Target)
	if err != nil {
		return TransferResponse{}, services.Wrap(services.ErrValidation, "api", "transfer", "bad target", err)
	}
	out, err := s.engine.RequestTransfer(ctx, engine.TransferRequest{
		InstanceID: strings.TrimSpace(req.InstanceID),
		ItemHash:   req.ItemHash,
		Target:     target,
		Equip:      req.Equip,
	})
	if err != nil {
		return TransferResponse{OperationID: out.OperationID, InstanceID: req.InstanceID}, err
	}
	return FromTransfer(out), nil
}

// Socket inserts a plug.
func (s *InventoryService) Socket(ctx context.Context, req SocketRequest) (SocketResponse, error) {
	plugHash := req.PlugHash
	if plugHash == 0 {
		hash, err := s.plugByName(req.Plug)
		if err != nil {
			return SocketResponse{}, err
		}
		plugHash = hash
	}
	out, err := s.engine.RequestSocketMutation(ctx, strings.TrimSpace(req.InstanceID), req.SocketIndex, plugHash)
	resp := SocketResponse{
		OperationID: out.OperationID,
		InstanceID:  req.InstanceID,
		SocketIndex: req.SocketIndex,
		Previous:    out.Result.Previous,
		Current:     out.Result.Current,
		Changed:     out.Result.Changed,
	}
	return resp, err
}

func (s *InventoryService) plugByName(name string) (uint32, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, services.Wrap(services.ErrValidation, "api", "socket", "a plug hash or name is required", nil)
	}
	matches := s.defs().FindByName(name)
	switch len(matches) {
	case 0:
		return 0, services.Wrap(services.ErrNotFound, "api", "socket", fmt.Sprintf("no plug named %q", name), nil)
	case 1:
		return matches[0].Hash, nil
	default:
		return 0, services.Wrap(services.ErrValidation, "api", "socket", fmt.Sprintf("plug name %q is ambiguous; pass its hash", name), nil)
	}
}

// Lock sets the lock state of an instance.
func (s *InventoryService) Lock(ctx context.Context, req LockRequest) (LockResponse, error) {
	changed, err := s.engine.SetLockState(ctx, strings.TrimSpace(req.InstanceID), req.Locked)
	return LockResponse{InstanceID: req.InstanceID, Locked: req.Locked, Changed: changed}, err
}

// Loadout runs or validates a loadout. An incomplete run still returns its
// itemized response alongside the error.
func (s *InventoryService) Loadout(ctx context.Context, req LoadoutRequest, onProgress loadout.ProgressFunc) (LoadoutResponse, error) {
	def, err := loadout.ParseBytes([]byte(req.Definition))
	if err != nil {
		return LoadoutResponse{}, err
	}
	characterID := strings.TrimSpace(req.CharacterID)
	if req.ValidateOnly {
		res, err := s.engine.ValidateLoadout(def, characterID)
		if err != nil {
			return LoadoutResponse{}, err
		}
		return FromLoadout("", res), nil
	}
	out, err := s.engine.EquipLoadout(ctx, def, characterID, onProgress)
	return FromLoadout(out.OperationID, out.Result), err
}

// Resync forces a profile fetch.
func (s *InventoryService) Resync(ctx context.Context) (ResyncResponse, error) {
	view, err := s.engine.Resync(ctx)
	return ResyncResponse{Version: view.Version(), Guard: formatTime(view.Guard()), Items: view.ItemCount()}, err
}

// History lists journal rows newest first.
func (s *InventoryService) History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	entries, err := s.engine.History(ctx, journal.Filter{
		Kind:       journal.Kind(q.Kind),
		Status:     journal.Status(q.Status),
		InstanceID: q.InstanceID,
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, err
	}
	return FromHistory(entries), nil
}

// Status returns engine diagnostics.
func (s *InventoryService) Status(ctx context.Context) DaemonStatus {
	return FromStatus(s.engine.Status(ctx))
}

// Events returns hub events after since, waiting for one when wait is set.
func (s *InventoryService) Events(ctx context.Context, since uint64, limit int, wait bool) (EventsResponse, error) {
	events, next, err := s.engine.Events().Fetch(ctx, since, limit, wait)
	if events == nil {
		events = []engine.Event{}
	}
	return EventsResponse{Events: events, Next: next}, err
}
