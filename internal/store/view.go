package store

import (
	"maps"
	"slices"
	"time"

	"vaultkeeper/internal/inventory"
)

// View is a read-only, point-in-time view of the store. Everything it returns
// is a copy; mutating a returned value never affects the store.
type View struct {
	st *state
}

func (v View) Version() uint64 { return v.st.version }

// Guard returns the timestamp of the last accepted snapshot.
func (v View) Guard() time.Time { return v.st.guard }

func (v View) Characters() []inventory.Character {
	return slices.Clone(v.st.characters)
}

// Locations lists the non-empty locations in deterministic order.
func (v View) Locations() []inventory.Location {
	locs := slices.Collect(maps.Keys(v.st.items))
	inventory.SortLocations(locs)
	return locs
}

// Items returns the item list of one location.
func (v View) Items(loc inventory.Location) []inventory.Item {
	return slices.Clone(v.st.items[loc])
}

// AllItems returns every item keyed by location.
func (v View) AllItems() map[inventory.Location][]inventory.Item {
	out := make(map[inventory.Location][]inventory.Item, len(v.st.items))
	for loc, list := range v.st.items {
		out[loc] = slices.Clone(list)
	}
	return out
}

func (v View) ItemCount() int {
	total := 0
	for _, list := range v.st.items {
		total += len(list)
	}
	return total
}

// Find returns the item record for an instance.
func (v View) Find(instanceID string) (inventory.Item, bool) {
	item, _, ok := v.st.find(instanceID)
	return item, ok
}

// Location returns where an instance is currently shown.
func (v View) Location(instanceID string) (inventory.Location, bool) {
	loc, ok := v.st.index[instanceID]
	return loc, ok
}

// Instance returns a deep copy of an instance's extended data.
func (v View) Instance(instanceID string) (inventory.ItemInstance, bool) {
	inst, ok := v.st.instances[instanceID]
	if !ok {
		return inventory.ItemInstance{}, false
	}
	return inst.Clone(), true
}

// FindByHash returns every item with the given hash, ordered by location.
func (v View) FindByHash(itemHash uint32) []inventory.Item {
	var out []inventory.Item
	for _, loc := range v.Locations() {
		for _, item := range v.st.items[loc] {
			if item.ItemHash == itemHash {
				out = append(out, item)
			}
		}
	}
	return out
}

// InFlight returns a copy of the in-flight registry.
func (v View) InFlight() map[string]Transit {
	return maps.Clone(v.st.inflight)
}

// InFlightTarget reports whether an instance is in flight and where to.
func (v View) InFlightTarget(instanceID string) (inventory.Location, bool) {
	tr, ok := v.st.inflight[instanceID]
	return tr.Target, ok
}

// IsInFlight reports whether an instance has an in-flight entry.
func (v View) IsInFlight(instanceID string) bool {
	_, ok := v.st.inflight[instanceID]
	return ok
}

// Snapshot rebuilds a snapshot of the current state, stamped with the guard.
// It is what the snapshot cache persists.
func (v View) Snapshot() inventory.Snapshot {
	snap := inventory.Snapshot{
		Timestamp:  v.st.guard,
		Characters: slices.Clone(v.st.characters),
		Items:      v.AllItems(),
		Instances:  make(map[string]inventory.ItemInstance, len(v.st.instances)),
	}
	for id, inst := range v.st.instances {
		snap.Instances[id] = inst.Clone()
	}
	return snap
}
