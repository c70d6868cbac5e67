package inventory

import (
	"maps"
	"slices"
)

// DamageType is the elemental damage type of a weapon or subclass.
type DamageType uint8

const (
	DamageNone DamageType = iota
	DamageKinetic
	DamageArc
	DamageSolar
	DamageVoid
	DamageRaid
	DamageStasis
	DamageStrand
)

// Socket is one configurable slot on an item instance. Index is the stable
// socket identifier from the item definition; it is never a slice position.
type Socket struct {
	Index    int    `json:"socketIndex"`
	PlugHash uint32 `json:"plugHash"`
	Enabled  bool   `json:"isEnabled"`
}

// Objective tracks progress toward one objective on an instance.
type Objective struct {
	ObjectiveHash   uint32 `json:"objectiveHash"`
	Progress        int    `json:"progress"`
	CompletionValue int    `json:"completionValue"`
	Complete        bool   `json:"complete"`
}

// ItemInstance holds extended per-instance data. Sockets are kept sorted by
// Index with no duplicates.
type ItemInstance struct {
	InstanceID     string         `json:"itemInstanceId"`
	Power          int            `json:"power"`
	DamageType     DamageType     `json:"damageType"`
	EnergyCapacity int            `json:"energyCapacity"`
	Sockets        []Socket       `json:"sockets,omitempty"`
	Stats          map[uint32]int `json:"stats,omitempty"`
	Objectives     []Objective    `json:"objectives,omitempty"`
}

// Socket returns the socket with the given index.
func (in ItemInstance) Socket(index int) (Socket, bool) {
	pos, ok := slices.BinarySearchFunc(in.Sockets, index, func(s Socket, target int) int {
		return s.Index - target
	})
	if !ok {
		return Socket{}, false
	}
	return in.Sockets[pos], true
}

// Clone returns a deep copy so callers can derive a new value without
// touching the original.
func (in ItemInstance) Clone() ItemInstance {
	out := in
	out.Sockets = slices.Clone(in.Sockets)
	out.Objectives = slices.Clone(in.Objectives)
	if in.Stats != nil {
		out.Stats = maps.Clone(in.Stats)
	}
	return out
}

// WithPlug returns a copy with the socket at index holding plugHash. The
// boolean is false when the instance has no such socket.
func (in ItemInstance) WithPlug(index int, plugHash uint32) (ItemInstance, bool) {
	pos, ok := slices.BinarySearchFunc(in.Sockets, index, func(s Socket, target int) int {
		return s.Index - target
	})
	if !ok {
		return in, false
	}
	out := in.Clone()
	out.Sockets[pos].PlugHash = plugHash
	return out, true
}

// InstancePatch is a partial update; nil fields are left untouched.
type InstancePatch struct {
	Power          *int
	DamageType     *DamageType
	EnergyCapacity *int
	Stats          map[uint32]int
	Objectives     []Objective
}

// Apply returns a copy with the patch applied. Stats are merged key by key;
// a non-nil Objectives slice replaces the existing list.
func (in ItemInstance) Apply(p InstancePatch) ItemInstance {
	out := in.Clone()
	if p.Power != nil {
		out.Power = *p.Power
	}
	if p.DamageType != nil {
		out.DamageType = *p.DamageType
	}
	if p.EnergyCapacity != nil {
		out.EnergyCapacity = *p.EnergyCapacity
	}
	if len(p.Stats) > 0 {
		if out.Stats == nil {
			out.Stats = make(map[uint32]int, len(p.Stats))
		}
		maps.Copy(out.Stats, p.Stats)
	}
	if p.Objectives != nil {
		out.Objectives = slices.Clone(p.Objectives)
	}
	return out
}

func (p InstancePatch) Empty() bool {
	return p.Power == nil && p.DamageType == nil && p.EnergyCapacity == nil && len(p.Stats) == 0 && p.Objectives == nil
}

func sortSockets(sockets []Socket) []Socket {
	out := slices.Clone(sockets)
	slices.SortFunc(out, func(a, b Socket) int { return a.Index - b.Index })
	return out
}
