package manifest

// ItemType is the broad classification of a definition.
type ItemType string

const (
	TypeWeapon   ItemType = "weapon"
	TypeArmor    ItemType = "armor"
	TypeSubclass ItemType = "subclass"
	TypeMod      ItemType = "mod"
	TypeOther    ItemType = "other"
)

// SocketCategory says what a socket holds.
type SocketCategory string

const (
	SocketSuper        SocketCategory = "super"
	SocketClassAbility SocketCategory = "class_ability"
	SocketMelee        SocketCategory = "melee"
	SocketGrenade      SocketCategory = "grenade"
	SocketJump         SocketCategory = "jump"
	SocketAspect       SocketCategory = "aspect"
	SocketFragment     SocketCategory = "fragment"
	SocketArmorMod     SocketCategory = "armor_mod"
	SocketWeaponPerk   SocketCategory = "weapon_perk"
	SocketOther        SocketCategory = "other"
)

// SocketEntry describes one socket of a definition. Index is the stable
// socket index instances use.
type SocketEntry struct {
	Index       int            `json:"socketIndex"`
	Category    SocketCategory `json:"category"`
	PlugSetHash uint32         `json:"plugSetHash,omitempty"`
}

// Definition is the subset of an item definition the engine needs.
type Definition struct {
	Hash             uint32        `json:"hash"`
	Name             string        `json:"name"`
	BucketHash       uint32        `json:"bucketHash"`
	ItemType         ItemType      `json:"itemType"`
	ClassType        int           `json:"classType"`
	Equippable       bool          `json:"equippable"`
	NonTransferrable bool          `json:"nonTransferrable"`
	Sockets          []SocketEntry `json:"sockets,omitempty"`
	// FragmentCapacity is the number of fragment slots an aspect opens.
	FragmentCapacity int `json:"fragmentCapacity,omitempty"`
	// PlugCategory groups plugs (e.g. "aspect", "armor_mod.helmet") so a
	// socket accepts plugs of a matching category.
	PlugCategory string `json:"plugCategory,omitempty"`
}

// SocketsOf returns the entries of one category in index order.
func (d Definition) SocketsOf(category SocketCategory) []SocketEntry {
	var out []SocketEntry
	for _, s := range d.Sockets {
		if s.Category == category {
			out = append(out, s)
		}
	}
	return out
}

// Socket returns the entry with the given index.
func (d Definition) Socket(index int) (SocketEntry, bool) {
	for _, s := range d.Sockets {
		if s.Index == index {
			return s, true
		}
	}
	return SocketEntry{}, false
}

// PlugSet lists the plugs a socket may hold.
type PlugSet struct {
	Hash  uint32   `json:"hash"`
	Plugs []uint32 `json:"plugs"`
}

// Contains reports whether plugHash is a member.
func (p PlugSet) Contains(plugHash uint32) bool {
	for _, h := range p.Plugs {
		if h == plugHash {
			return true
		}
	}
	return false
}

// Lookup is the synchronous definition dictionary.
type Lookup interface {
	Resolve(hash uint32) (Definition, bool)
	PlugSet(hash uint32) (PlugSet, bool)
	FindByName(name string) []Definition
}
