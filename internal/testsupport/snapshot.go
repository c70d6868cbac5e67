package testsupport

import (
	"time"

	"vaultkeeper/internal/inventory"
)

const (
	CharA = "2305843009200000001"
	CharB = "2305843009200000002"
	CharC = "2305843009200000003"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// At returns a fixed base time plus the given number of seconds, so tests can
// order snapshot timestamps without a clock.
func At(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

// SnapshotBuilder assembles valid snapshots for tests.
type SnapshotBuilder struct {
	snap inventory.Snapshot
}

// NewSnapshot starts a snapshot with the given timestamp and characters.
func NewSnapshot(ts time.Time, characters ...string) *SnapshotBuilder {
	b := &SnapshotBuilder{snap: inventory.Snapshot{
		Timestamp: ts,
		Items:     map[inventory.Location][]inventory.Item{},
		Instances: map[string]inventory.ItemInstance{},
	}}
	for i, id := range characters {
		b.snap.Characters = append(b.snap.Characters, inventory.Character{CharacterID: id, ClassType: i % 3, Light: 2000})
	}
	return b
}

// Item adds an instanced item with an empty instance record.
func (b *SnapshotBuilder) Item(loc inventory.Location, itemHash uint32, instanceID string) *SnapshotBuilder {
	b.snap.Items[loc] = append(b.snap.Items[loc], inventory.Item{
		ItemHash:   itemHash,
		InstanceID: instanceID,
		Quantity:   1,
		Location:   loc,
		Lockable:   true,
	})
	if _, ok := b.snap.Instances[instanceID]; !ok {
		b.snap.Instances[instanceID] = inventory.ItemInstance{InstanceID: instanceID, Power: 1900}
	}
	return b
}

// Stack adds a stackable item.
func (b *SnapshotBuilder) Stack(loc inventory.Location, itemHash uint32, quantity int) *SnapshotBuilder {
	b.snap.Items[loc] = append(b.snap.Items[loc], inventory.Item{
		ItemHash: itemHash,
		Quantity: quantity,
		Location: loc,
	})
	return b
}

// Sockets sets the sockets of an instance previously added with Item.
func (b *SnapshotBuilder) Sockets(instanceID string, sockets ...inventory.Socket) *SnapshotBuilder {
	inst := b.snap.Instances[instanceID]
	inst.InstanceID = instanceID
	inst.Sockets = append([]inventory.Socket(nil), sockets...)
	b.snap.Instances[instanceID] = inst
	return b
}

// Build returns the snapshot. The builder may keep being used.
func (b *SnapshotBuilder) Build() inventory.Snapshot {
	return b.snap.Normalize()
}

// Plug is shorthand for an enabled socket.
func Plug(index int, plugHash uint32) inventory.Socket {
	return inventory.Socket{Index: index, PlugHash: plugHash, Enabled: true}
}
