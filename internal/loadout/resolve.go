package loadout

import (
	"slices"

	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/manifest"
	"vaultkeeper/internal/store"
)

// Resolved is one component matched to an owned instance.
type Resolved struct {
	Component  string             `json:"component"`
	InstanceID string             `json:"instanceId"`
	ItemHash   uint32             `json:"itemHash"`
	Location   inventory.Location `json:"location"`
}

type resolvedPlug struct {
	label string
	def   manifest.Definition
}

type armorPlan struct {
	piece Resolved
	mods  []resolvedPlug
}

// plan is a fully resolved loadout.
type plan struct {
	subclass  *Resolved
	abilities []abilityStep
	aspects   []resolvedPlug
	fragments []resolvedPlug
	weapons   []Resolved
	armor     []armorPlan
	missing   []string
}

type abilityStep struct {
	category manifest.SocketCategory
	plug     resolvedPlug
}

func (p plan) resolved() []Resolved {
	var out []Resolved
	if p.subclass != nil {
		out = append(out, *p.subclass)
	}
	out = append(out, p.weapons...)
	for _, a := range p.armor {
		out = append(out, a.piece)
	}
	return out
}

type resolver struct {
	view        store.View
	defs        manifest.Lookup
	characterID string
	claimed     map[string]struct{}
	missing     []string
}

func newResolver(view store.View, defs manifest.Lookup, characterID string) *resolver {
	return &resolver{view: view, defs: defs, characterID: characterID, claimed: make(map[string]struct{})}
}

func (r *resolver) resolve(def Definition) plan {
	var p plan
	if sc := def.Subclass; sc != nil {
		if got, ok := r.item(sc.Component, manifest.TypeSubclass); ok {
			p.subclass = &got
		}
		for _, slot := range []struct {
			category manifest.SocketCategory
			plug     *Plug
		}{
			{manifest.SocketSuper, sc.Super},
			{manifest.SocketClassAbility, sc.ClassAbility},
			{manifest.SocketMelee, sc.Melee},
			{manifest.SocketGrenade, sc.Grenade},
			{manifest.SocketJump, sc.Jump},
		} {
			if slot.plug == nil {
				continue
			}
			if got, ok := r.plug(*slot.plug); ok {
				p.abilities = append(p.abilities, abilityStep{category: slot.category, plug: got})
			}
		}
		p.aspects = r.plugs(sc.Aspects)
		p.fragments = r.plugs(sc.Fragments)
	}
	for _, w := range def.Weapons {
		if got, ok := r.item(w, manifest.TypeWeapon); ok {
			p.weapons = append(p.weapons, got)
		}
	}
	for _, a := range def.Armor {
		got, ok := r.item(a.Component, manifest.TypeArmor)
		mods := r.plugs(a.Mods)
		if ok {
			p.armor = append(p.armor, armorPlan{piece: got, mods: mods})
		}
	}
	p.missing = r.missing
	return p
}

// item finds the best owned instance for a component. Copies already on the
// character win, then the vault, then other characters, with equipment on
// another character last because it cannot be moved.
func (r *resolver) item(c Component, want manifest.ItemType) (Resolved, bool) {
	label := c.Label()
	var candidates []inventory.Item
	if c.InstanceID != "" {
		if item, ok := r.view.Find(c.InstanceID); ok && (c.ItemHash == 0 || c.ItemHash == item.ItemHash) {
			candidates = append(candidates, item)
		}
	} else {
		for _, hash := range r.hashes(c, want) {
			for _, item := range r.view.FindByHash(hash) {
				if item.Instanced() {
					candidates = append(candidates, item)
				}
			}
		}
	}
	candidates = slices.DeleteFunc(candidates, func(item inventory.Item) bool {
		_, taken := r.claimed[item.InstanceID]
		return taken
	})
	if len(candidates) == 0 {
		r.missing = append(r.missing, label)
		return Resolved{}, false
	}
	slices.SortFunc(candidates, func(a, b inventory.Item) int {
		if d := r.rank(a.Location) - r.rank(b.Location); d != 0 {
			return d
		}
		switch {
		case a.InstanceID < b.InstanceID:
			return -1
		case a.InstanceID > b.InstanceID:
			return 1
		}
		return 0
	})
	best := candidates[0]
	r.claimed[best.InstanceID] = struct{}{}
	return Resolved{Component: label, InstanceID: best.InstanceID, ItemHash: best.ItemHash, Location: best.Location}, true
}

func (r *resolver) hashes(c Component, want manifest.ItemType) []uint32 {
	if c.ItemHash != 0 {
		return []uint32{c.ItemHash}
	}
	if r.defs == nil {
		return nil
	}
	var out []uint32
	for _, def := range r.defs.FindByName(c.Name) {
		if def.ItemType == want {
			out = append(out, def.Hash)
		}
	}
	return out
}

func (r *resolver) rank(loc inventory.Location) int {
	switch {
	case loc == inventory.Equipped(r.characterID):
		return 0
	case loc == inventory.Inventory(r.characterID):
		return 1
	case loc.IsVault():
		return 2
	case loc.Kind == inventory.KindInventory:
		return 3
	default:
		return 4
	}
}

func (r *resolver) plugs(list []Plug) []resolvedPlug {
	var out []resolvedPlug
	for _, p := range list {
		if got, ok := r.plug(p); ok {
			out = append(out, got)
		}
	}
	return out
}

// plug looks a plug up in the manifest. Plugs are unlocked account-wide, so
// knowing the definition is enough.
func (r *resolver) plug(p Plug) (resolvedPlug, bool) {
	label := p.Label()
	if r.defs != nil {
		if p.Hash != 0 {
			if def, ok := r.defs.Resolve(p.Hash); ok {
				return resolvedPlug{label: label, def: def}, true
			}
		} else {
			for _, def := range r.defs.FindByName(p.Name) {
				if def.ItemType == manifest.TypeMod {
					return resolvedPlug{label: label, def: def}, true
				}
			}
		}
	}
	r.missing = append(r.missing, label)
	return resolvedPlug{}, false
}
