package store

import (
	"maps"
	"slices"
	"time"

	"vaultkeeper/internal/inventory"
)

// state is immutable once published. Every write builds a new one.
type state struct {
	version    uint64
	guard      time.Time
	digest     string // of the last merged snapshot; cleared by local writes
	characters []inventory.Character
	items      map[inventory.Location][]inventory.Item
	instances  map[string]inventory.ItemInstance
	inflight   map[string]Transit
	index      map[string]inventory.Location
}

func emptyState() *state {
	return &state{
		items:     map[inventory.Location][]inventory.Item{},
		instances: map[string]inventory.ItemInstance{},
		inflight:  map[string]Transit{},
		index:     map[string]inventory.Location{},
	}
}

// shallow copies the top-level maps. Slices and instances stay shared, so
// callers must replace (never modify) any entry they change.
func (s *state) shallow() *state {
	return &state{
		version:    s.version,
		guard:      s.guard,
		digest:     s.digest,
		characters: s.characters,
		items:      maps.Clone(s.items),
		instances:  maps.Clone(s.instances),
		inflight:   maps.Clone(s.inflight),
		index:      maps.Clone(s.index),
	}
}

func (s *state) find(instanceID string) (inventory.Item, int, bool) {
	loc, ok := s.index[instanceID]
	if !ok {
		return inventory.Item{}, -1, false
	}
	for i, item := range s.items[loc] {
		if item.InstanceID == instanceID {
			return item, i, true
		}
	}
	return inventory.Item{}, -1, false
}

// replaceItem swaps one item in its location list, copying the list.
func (s *state) replaceItem(loc inventory.Location, pos int, item inventory.Item) {
	list := slices.Clone(s.items[loc])
	list[pos] = item
	s.items[loc] = list
}

// relocate moves an instanced item between lists, keeping the index in step.
func (s *state) relocate(instanceID string, to inventory.Location) bool {
	item, pos, ok := s.find(instanceID)
	if !ok {
		return false
	}
	from := item.Location
	if from == to {
		return true
	}
	src := slices.Clone(s.items[from])
	src = slices.Delete(src, pos, pos+1)
	if len(src) == 0 {
		delete(s.items, from)
	} else {
		s.items[from] = src
	}
	item.Location = to
	s.items[to] = append(slices.Clone(s.items[to]), item)
	s.index[instanceID] = to
	return true
}

func buildIndex(items map[inventory.Location][]inventory.Item) map[string]inventory.Location {
	index := make(map[string]inventory.Location)
	for loc, list := range items {
		for _, item := range list {
			if item.Instanced() {
				index[item.InstanceID] = loc
			}
		}
	}
	return index
}
