package inventory

import "fmt"

// ItemState is the authority's per-item state bitmask.
type ItemState uint32

const (
	StateLocked ItemState = 1 << iota
	StateTracked
	StateMasterworked
	StateCrafted
	StateHighlightedObjective
)

func (s ItemState) Has(flag ItemState) bool { return s&flag != 0 }

// With returns the mask with flag set or cleared.
func (s ItemState) With(flag ItemState, on bool) ItemState {
	if on {
		return s | flag
	}
	return s &^ flag
}

// TransferStatus mirrors the authority's transfer restriction flags.
type TransferStatus uint8

const (
	TransferAllowed         TransferStatus = 0
	TransferItemIsEquipped  TransferStatus = 1
	TransferNotTransferable TransferStatus = 2
	TransferNoRoom          TransferStatus = 4
)

func (t TransferStatus) Has(flag TransferStatus) bool { return t&flag != 0 }

// BindStatus describes whether an item is bound to its owner.
type BindStatus uint8

const (
	BindNone BindStatus = iota
	BindOnEquip
	BindOnAcquire
	BindAccount
)

// Item is one entry in a location's item list.
//
// Stackless items are identified by InstanceID. Stackable items have no
// instance and are identified by (ItemHash, Location).
type Item struct {
	ItemHash       uint32         `json:"itemHash"`
	InstanceID     string         `json:"itemInstanceId,omitempty"`
	Quantity       int            `json:"quantity"`
	Location       Location       `json:"location"`
	BucketHash     uint32         `json:"bucketHash"`
	TransferStatus TransferStatus `json:"transferStatus"`
	Lockable       bool           `json:"lockable"`
	BindStatus     BindStatus     `json:"bindStatus"`
	State          ItemState      `json:"state"`
}

// Instanced reports whether the item has its own instance identity.
func (i Item) Instanced() bool { return i.InstanceID != "" }

// Key returns the identity of the item.
func (i Item) Key() ItemKey {
	if i.Instanced() {
		return ItemKey{InstanceID: i.InstanceID}
	}
	return ItemKey{ItemHash: i.ItemHash, Location: i.Location}
}

func (i Item) String() string {
	if i.Instanced() {
		return fmt.Sprintf("%d#%s@%s", i.ItemHash, i.InstanceID, i.Location)
	}
	return fmt.Sprintf("%dx%d@%s", i.ItemHash, i.Quantity, i.Location)
}

// ItemKey is the comparable identity of an item.
type ItemKey struct {
	InstanceID string
	ItemHash   uint32
	Location   Location
}
