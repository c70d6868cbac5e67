package transfer

import (
	"errors"
	"fmt"

	"vaultkeeper/internal/inventory"
)

// ErrNoRoute means the authority offers no sequence of calls between the two
// locations. Moving out of equipment needs an unequip the authority does not
// expose.
var ErrNoRoute = errors.New("no transfer route")

// HopKind is the remote call a hop maps to.
type HopKind int

const (
	HopMove HopKind = iota + 1
	HopEquip
)

func (k HopKind) String() string {
	switch k {
	case HopMove:
		return "move"
	case HopEquip:
		return "equip"
	default:
		return "unknown"
	}
}

// Hop is one remote call in a route.
type Hop struct {
	Kind HopKind
	From inventory.Location
	To   inventory.Location
}

func (h Hop) String() string {
	return fmt.Sprintf("%s %s -> %s", h.Kind, h.From, h.To)
}

// PlanRoute returns the hops that take an item from one location to another.
// An empty plan means the item is already there.
func PlanRoute(from, to inventory.Location) ([]Hop, error) {
	if err := from.Validate(); err != nil {
		return nil, fmt.Errorf("route origin: %w", err)
	}
	if err := to.Validate(); err != nil {
		return nil, fmt.Errorf("route target: %w", err)
	}
	if from == to {
		return nil, nil
	}
	if from.Kind == inventory.KindEquipped {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, from, to)
	}

	var hops []Hop
	at := from
	move := func(dst inventory.Location) {
		hops = append(hops, Hop{Kind: HopMove, From: at, To: dst})
		at = dst
	}

	switch to.Kind {
	case inventory.KindVault:
		move(to)
	case inventory.KindInventory, inventory.KindEquipped:
		carrier := inventory.Inventory(to.CharacterID)
		if at != carrier {
			if !at.IsVault() {
				move(inventory.Vault())
			}
			move(carrier)
		}
		if to.Kind == inventory.KindEquipped {
			hops = append(hops, Hop{Kind: HopEquip, From: at, To: to})
		}
	}
	return hops, nil
}

// MoveCount returns the number of move hops in a plan.
func MoveCount(hops []Hop) int {
	n := 0
	for _, h := range hops {
		if h.Kind == HopMove {
			n++
		}
	}
	return n
}
