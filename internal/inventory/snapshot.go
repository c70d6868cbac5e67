package inventory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// ErrInvalidSnapshot marks a snapshot rejected at the ingestion boundary.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Character is a playable character on the account.
type Character struct {
	CharacterID string `json:"characterId"`
	ClassType   int    `json:"classType"`
	Light       int    `json:"light"`
}

// Snapshot is a full authoritative read of item locations and instance data.
type Snapshot struct {
	Timestamp  time.Time               `json:"responseMintedTimestamp"`
	Characters []Character             `json:"characters"`
	Items      map[Location][]Item     `json:"items"`
	Instances  map[string]ItemInstance `json:"instances"`
}

// Normalize returns a copy in canonical form: every item's Location equals the
// list it sits in, sockets are sorted by index, and instance ids match their
// map keys. Normalize does not validate.
func (s Snapshot) Normalize() Snapshot {
	out := Snapshot{
		Timestamp:  s.Timestamp.UTC(),
		Characters: slices.Clone(s.Characters),
		Items:      make(map[Location][]Item, len(s.Items)),
		Instances:  make(map[string]ItemInstance, len(s.Instances)),
	}
	slices.SortFunc(out.Characters, func(a, b Character) int {
		switch {
		case a.CharacterID < b.CharacterID:
			return -1
		case a.CharacterID > b.CharacterID:
			return 1
		}
		return 0
	})
	for loc, items := range s.Items {
		list := make([]Item, len(items))
		for i, item := range items {
			item.Location = loc
			list[i] = item
		}
		out.Items[loc] = list
	}
	for id, inst := range s.Instances {
		inst = inst.Clone()
		if inst.InstanceID == "" {
			inst.InstanceID = id
		}
		inst.Sockets = sortSockets(inst.Sockets)
		out.Instances[id] = inst
	}
	return out
}

// Validate enforces the ingestion invariants. A snapshot that fails any check
// is rejected as a whole.
func (s Snapshot) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing response timestamp", ErrInvalidSnapshot)
	}
	characters := make(map[string]struct{}, len(s.Characters))
	for _, c := range s.Characters {
		if c.CharacterID == "" {
			return fmt.Errorf("%w: character without id", ErrInvalidSnapshot)
		}
		if _, dup := characters[c.CharacterID]; dup {
			return fmt.Errorf("%w: duplicate character %s", ErrInvalidSnapshot, c.CharacterID)
		}
		characters[c.CharacterID] = struct{}{}
	}

	seenInstance := make(map[string]Location)
	seenStack := make(map[ItemKey]struct{})
	for loc, items := range s.Items {
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
		if !loc.IsVault() {
			if _, ok := characters[loc.CharacterID]; !ok {
				return fmt.Errorf("%w: location %s names unknown character", ErrInvalidSnapshot, loc)
			}
		}
		for _, item := range items {
			if item.ItemHash == 0 {
				return fmt.Errorf("%w: item without hash in %s", ErrInvalidSnapshot, loc)
			}
			if item.Location != loc {
				return fmt.Errorf("%w: item %s listed under %s", ErrInvalidSnapshot, item, loc)
			}
			if item.Quantity < 1 {
				return fmt.Errorf("%w: item %s has quantity %d", ErrInvalidSnapshot, item, item.Quantity)
			}
			if item.Instanced() {
				if prev, dup := seenInstance[item.InstanceID]; dup {
					return fmt.Errorf("%w: instance %s appears in %s and %s", ErrInvalidSnapshot, item.InstanceID, prev, loc)
				}
				seenInstance[item.InstanceID] = loc
				continue
			}
			key := item.Key()
			if _, dup := seenStack[key]; dup {
				return fmt.Errorf("%w: duplicate stack %d in %s", ErrInvalidSnapshot, item.ItemHash, loc)
			}
			seenStack[key] = struct{}{}
		}
	}

	for id, inst := range s.Instances {
		if id == "" || inst.InstanceID != id {
			return fmt.Errorf("%w: instance key %q does not match id %q", ErrInvalidSnapshot, id, inst.InstanceID)
		}
		for i, socket := range inst.Sockets {
			if socket.Index < 0 {
				return fmt.Errorf("%w: instance %s has negative socket index", ErrInvalidSnapshot, id)
			}
			if i > 0 && inst.Sockets[i-1].Index >= socket.Index {
				return fmt.Errorf("%w: instance %s has duplicate or unsorted socket %d", ErrInvalidSnapshot, id, socket.Index)
			}
		}
	}
	return nil
}

// Locations returns the snapshot's locations in deterministic order.
func (s Snapshot) Locations() []Location {
	locs := slices.Collect(maps.Keys(s.Items))
	slices.SortFunc(locs, compareLocations)
	return locs
}

// Digest hashes the snapshot content excluding its timestamp. Two snapshots
// with equal digests describe the same collection.
func (s Snapshot) Digest() (string, error) {
	payload := struct {
		Characters []Character             `json:"c"`
		Items      map[Location][]Item     `json:"i"`
		Instances  map[string]ItemInstance `json:"n"`
	}{s.Characters, s.Items, s.Instances}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("digest snapshot: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// ItemCount returns the number of item entries across all locations.
func (s Snapshot) ItemCount() int {
	total := 0
	for _, items := range s.Items {
		total += len(items)
	}
	return total
}

func compareLocations(a, b Location) int {
	switch {
	case a == b:
		return 0
	case a.Less(b):
		return -1
	default:
		return 1
	}
}

// SortLocations orders locations in place using Location.Less.
func SortLocations(locs []Location) {
	slices.SortFunc(locs, compareLocations)
}
