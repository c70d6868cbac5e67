package api

import (
	"slices"
	"strings"
	"time"

	"vaultkeeper/internal/engine"
	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/journal"
	"vaultkeeper/internal/loadout"
	"vaultkeeper/internal/manifest"
	"vaultkeeper/internal/store"
)

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}

// FromItem converts a stored item using view for instance and in-flight data.
func FromItem(view store.View, defs manifest.Lookup, item inventory.Item) Item {
	dto := Item{
		InstanceID: item.InstanceID,
		ItemHash:   item.ItemHash,
		Quantity:   item.Quantity,
		Location:   item.Location.String(),
		Locked:     item.State.Has(inventory.StateLocked),
	}
	if defs != nil {
		if def, ok := defs.Resolve(item.ItemHash); ok {
			dto.Name = def.Name
			dto.ItemType = string(def.ItemType)
		}
	}
	if item.Instanced() {
		if inst, ok := view.Instance(item.InstanceID); ok {
			dto.Power = inst.Power
		}
		if target, ok := view.InFlightTarget(item.InstanceID); ok {
			dto.InFlight = true
			dto.InFlightTarget = target.String()
		}
	}
	return dto
}

// FromView lists every item in view that matches q, in location order.
func FromView(view store.View, defs manifest.Lookup, q ItemsQuery) ItemsResponse {
	resp := ItemsResponse{Version: view.Version(), Guard: formatTime(view.Guard()), Items: []Item{}}
	name := strings.ToLower(strings.TrimSpace(q.Name))
	for _, loc := range view.Locations() {
		if q.Location != "" && loc.String() != q.Location {
			continue
		}
		for _, item := range view.Items(loc) {
			if q.ItemHash != 0 && item.ItemHash != q.ItemHash {
				continue
			}
			dto := FromItem(view, defs, item)
			if name != "" && !strings.Contains(strings.ToLower(dto.Name), name) {
				continue
			}
			if q.InFlight && !dto.InFlight {
				continue
			}
			resp.Items = append(resp.Items, dto)
		}
	}
	return resp
}

// FromInstance adds socket and stat detail to an item.
func FromInstance(view store.View, defs manifest.Lookup, item inventory.Item) ItemDetail {
	detail := ItemDetail{Item: FromItem(view, defs, item)}
	inst, ok := view.Instance(item.InstanceID)
	if !ok {
		return detail
	}
	var def manifest.Definition
	if defs != nil {
		def, _ = defs.Resolve(item.ItemHash)
	}
	for _, socket := range inst.Sockets {
		dto := Socket{Index: socket.Index, PlugHash: socket.PlugHash}
		if entry, ok := def.Socket(socket.Index); ok {
			dto.Category = string(entry.Category)
		}
		if defs != nil {
			if plug, ok := defs.Resolve(socket.PlugHash); ok {
				dto.PlugName = plug.Name
			}
		}
		detail.Sockets = append(detail.Sockets, dto)
	}
	detail.Stats = inst.Stats
	return detail
}

// FromTransfer converts an engine transfer outcome.
func FromTransfer(out engine.TransferOutcome) TransferResponse {
	resp := TransferResponse{
		OperationID: out.OperationID,
		InstanceID:  out.Result.InstanceID,
		From:        out.Result.From.String(),
		To:          out.Result.To.String(),
		Hops:        []string{},
	}
	for _, hop := range out.Result.Hops {
		resp.Hops = append(resp.Hops, hop.String())
	}
	return resp
}

// FromLoadout converts a loadout result.
func FromLoadout(opID string, res loadout.Result) LoadoutResponse {
	resp := LoadoutResponse{
		OperationID: opID,
		Loadout:     res.Loadout,
		CharacterID: res.CharacterID,
		Success:     res.Success,
		Equipped:    nonNil(res.Equipped),
		Missing:     nonNil(res.Missing),
		Failed:      []LoadoutFailure{},
	}
	for _, f := range res.Failed {
		resp.Failed = append(resp.Failed, LoadoutFailure{Component: f.Component, Phase: string(f.Phase), Reason: f.Reason})
	}
	for _, r := range res.Resolved {
		resp.Resolved = append(resp.Resolved, ResolvedComponent{
			Component:  r.Component,
			InstanceID: r.InstanceID,
			ItemHash:   r.ItemHash,
			Location:   r.Location.String(),
		})
	}
	return resp
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return slices.Clone(values)
}

// FromHistory converts journal rows.
func FromHistory(entries []journal.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:           e.ID,
			Kind:         string(e.Kind),
			Status:       string(e.Status),
			InstanceID:   e.InstanceID,
			CharacterID:  e.CharacterID,
			Target:       e.Target,
			ErrorKind:    e.ErrorKind,
			ErrorMessage: e.ErrorMessage,
			CreatedAt:    formatTime(e.CreatedAt),
			DurationMS:   e.Duration.Milliseconds(),
		})
	}
	return out
}

// FromStatus converts engine diagnostics. Daemon-level fields are left for
// the caller.
func FromStatus(status engine.Status) DaemonStatus {
	dto := DaemonStatus{
		StoreVersion: status.StoreVersion,
		Guard:        formatTime(status.Guard),
		Characters:   status.Characters,
		Items:        status.Items,
		InFlight:     status.InFlight,
		Definitions:  status.Definitions,
		LastEvent:    status.LastEvent,
		Sync: SyncStatus{
			Running:             status.Sync.Running,
			LastSuccess:         formatTime(status.Sync.LastSuccess),
			LastResult:          status.Sync.LastResult,
			LastError:           status.Sync.LastError,
			ConsecutiveFailures: status.Sync.ConsecutiveFailures,
			Fetches:             status.Sync.Fetches,
		},
	}
	if len(status.Journal) > 0 {
		dto.Journal = make(map[string]int, len(status.Journal))
		for k, v := range status.Journal {
			dto.Journal[string(k)] = v
		}
	}
	return dto
}
