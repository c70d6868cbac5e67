package store

import (
	"maps"
	"slices"

	"vaultkeeper/internal/inventory"
)

// merge derives the next state from cur and an accepted snapshot. It is pure:
// cur is not modified and the result shares no mutable data with snap.
//
// For every location in the snapshot, instances in flight to some other
// location are held back. Then every in-flight entry with a known target is
// resolved: present at the target means the move is confirmed and the entry
// is cleared; otherwise the freshest known copy is injected at the target so
// the instance stays visible in exactly one place.
func merge(cur *state, snap inventory.Snapshot, digest string) *state {
	next := &state{
		version:    cur.version + 1,
		guard:      snap.Timestamp,
		digest:     digest,
		characters: slices.Clone(snap.Characters),
		items:      make(map[inventory.Location][]inventory.Item, len(snap.Items)),
		instances:  make(map[string]inventory.ItemInstance, len(snap.Instances)),
		inflight:   maps.Clone(cur.inflight),
	}
	for id, inst := range snap.Instances {
		next.instances[id] = inst.Clone()
	}

	held := make(map[string]inventory.Item)
	for _, loc := range snap.Locations() {
		incoming := snap.Items[loc]
		kept := make([]inventory.Item, 0, len(incoming))
		for _, item := range incoming {
			if item.Instanced() {
				if tr, ok := next.inflight[item.InstanceID]; ok {
					tr.Confirmed = loc
					tr.Injected = false
					next.inflight[item.InstanceID] = tr
					if !tr.Target.IsZero() && tr.Target != loc {
						held[item.InstanceID] = item
						continue
					}
				}
			}
			kept = append(kept, item)
		}
		if len(kept) > 0 {
			next.items[loc] = kept
		}
	}
	next.index = buildIndex(next.items)

	ids := slices.Sorted(maps.Keys(next.inflight))
	for _, id := range ids {
		tr := next.inflight[id]
		if tr.Target.IsZero() {
			continue
		}
		if loc, ok := next.index[id]; ok && loc == tr.Target {
			delete(next.inflight, id)
			continue
		}
		copyItem, ok := held[id]
		if !ok {
			copyItem, _, ok = cur.find(id)
		}
		if !ok {
			continue
		}
		copyItem.Location = tr.Target
		next.items[tr.Target] = append(next.items[tr.Target], copyItem)
		next.index[id] = tr.Target
		if _, known := next.instances[id]; !known {
			if inst, had := cur.instances[id]; had {
				next.instances[id] = inst.Clone()
			}
		}
		tr.Injected = true
		next.inflight[id] = tr
	}
	return next
}

// restore puts an injected copy back at its last confirmed location after a
// failed transfer. It reports whether anything moved.
func restore(st *state, instanceID string, tr Transit) bool {
	if !tr.Injected || tr.Confirmed.IsZero() {
		return false
	}
	loc, ok := st.index[instanceID]
	if !ok || loc == tr.Confirmed {
		return false
	}
	return st.relocate(instanceID, tr.Confirmed)
}
