package inventory_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"vaultkeeper/internal/inventory"
)

func TestParseLocationRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want inventory.Location
	}{
		{"vault", inventory.Vault()},
		{" VAULT ", inventory.Vault()},
		{"inventory:123", inventory.Inventory("123")},
		{"equipped: 9 ", inventory.Equipped("9")},
	}
	for _, tc := range cases {
		got, err := inventory.ParseLocation(tc.in)
		if err != nil {
			t.Fatalf("ParseLocation(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseLocation(%q) = %v, want %v", tc.in, got, tc.want)
		}
		again, err := inventory.ParseLocation(got.String())
		if err != nil || again != got {
			t.Fatalf("String round trip failed for %v: %v %v", got, again, err)
		}
	}
	for _, bad := range []string{"", "bank", "inventory:", "equipped", "postmaster:1"} {
		if _, err := inventory.ParseLocation(bad); !errors.Is(err, inventory.ErrInvalidLocation) {
			t.Fatalf("expected ErrInvalidLocation for %q, got %v", bad, err)
		}
	}
}

func TestLocationValidate(t *testing.T) {
	if err := (inventory.Location{Kind: inventory.KindVault, CharacterID: "1"}).Validate(); err == nil {
		t.Fatal("vault with character must be invalid")
	}
	if err := (inventory.Location{}).Validate(); err == nil {
		t.Fatal("zero location must be invalid")
	}
	if !inventory.Equipped("1").OnCharacter("1") || inventory.Vault().OnCharacter("") {
		t.Fatal("OnCharacter mismatch")
	}
}

func TestLocationOrdering(t *testing.T) {
	locs := []inventory.Location{
		inventory.Equipped("2"),
		inventory.Inventory("2"),
		inventory.Equipped("1"),
		inventory.Vault(),
		inventory.Inventory("1"),
	}
	inventory.SortLocations(locs)
	want := []inventory.Location{
		inventory.Vault(),
		inventory.Inventory("1"),
		inventory.Equipped("1"),
		inventory.Inventory("2"),
		inventory.Equipped("2"),
	}
	for i := range want {
		if locs[i] != want[i] {
			t.Fatalf("position %d: got %v want %v", i, locs[i], want[i])
		}
	}
}

func TestLocationAsJSONKey(t *testing.T) {
	in := map[inventory.Location]int{inventory.Vault(): 1, inventory.Equipped("7"): 2}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[inventory.Location]int
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[inventory.Equipped("7")] != 2 || out[inventory.Vault()] != 1 {
		t.Fatalf("unexpected decoded map %v", out)
	}
}

func TestItemStateFlags(t *testing.T) {
	var s inventory.ItemState
	s = s.With(inventory.StateLocked, true).With(inventory.StateCrafted, true)
	if !s.Has(inventory.StateLocked) || !s.Has(inventory.StateCrafted) {
		t.Fatalf("expected flags set, got %b", s)
	}
	s = s.With(inventory.StateLocked, false)
	if s.Has(inventory.StateLocked) || !s.Has(inventory.StateCrafted) {
		t.Fatalf("expected only locked cleared, got %b", s)
	}
}

func TestItemKey(t *testing.T) {
	instanced := inventory.Item{ItemHash: 1, InstanceID: "9", Location: inventory.Vault()}
	moved := instanced
	moved.Location = inventory.Inventory("1")
	if instanced.Key() != moved.Key() {
		t.Fatal("instanced identity must not depend on location")
	}
	stack := inventory.Item{ItemHash: 1, Quantity: 3, Location: inventory.Vault()}
	other := stack
	other.Location = inventory.Inventory("1")
	if stack.Key() == other.Key() {
		t.Fatal("stack identity must include location")
	}
}

func TestInstanceWithPlugUsesStableIndex(t *testing.T) {
	inst := inventory.ItemInstance{
		InstanceID: "1",
		Sockets: []inventory.Socket{
			{Index: 0, PlugHash: 10},
			{Index: 4, PlugHash: 40},
			{Index: 9, PlugHash: 90},
		},
	}
	updated, ok := inst.WithPlug(4, 44)
	if !ok {
		t.Fatal("expected socket 4 to exist")
	}
	if s, _ := updated.Socket(4); s.PlugHash != 44 {
		t.Fatalf("expected plug 44, got %d", s.PlugHash)
	}
	if s, _ := inst.Socket(4); s.PlugHash != 40 {
		t.Fatal("WithPlug modified the original")
	}
	if _, ok := inst.WithPlug(1, 5); ok {
		t.Fatal("socket index 1 does not exist; slice position must not be used")
	}
}

func TestInstanceApplyPatch(t *testing.T) {
	inst := inventory.ItemInstance{InstanceID: "1", Power: 10, Stats: map[uint32]int{1: 5}}
	power := 20
	out := inst.Apply(inventory.InstancePatch{Power: &power, Stats: map[uint32]int{2: 7}})
	if out.Power != 20 || out.Stats[1] != 5 || out.Stats[2] != 7 {
		t.Fatalf("unexpected patched instance %+v", out)
	}
	if _, ok := inst.Stats[2]; ok {
		t.Fatal("Apply modified the original stats map")
	}
	if !(inventory.InstancePatch{}).Empty() {
		t.Fatal("zero patch should be empty")
	}
}

func validSnapshot() inventory.Snapshot {
	return inventory.Snapshot{
		Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Characters: []inventory.Character{{CharacterID: "1"}},
		Items: map[inventory.Location][]inventory.Item{
			inventory.Vault():        {{ItemHash: 5, InstanceID: "a", Quantity: 1}},
			inventory.Inventory("1"): {{ItemHash: 6, Quantity: 20}},
		},
		Instances: map[string]inventory.ItemInstance{
			"a": {InstanceID: "a", Sockets: []inventory.Socket{{Index: 3}, {Index: 1}}},
		},
	}
}

func TestSnapshotNormalizeAndValidate(t *testing.T) {
	snap := validSnapshot().Normalize()
	if err := snap.Validate(); err != nil {
		t.Fatalf("expected valid snapshot: %v", err)
	}
	if snap.Items[inventory.Vault()][0].Location != inventory.Vault() {
		t.Fatal("Normalize must stamp item locations")
	}
	if snap.Instances["a"].Sockets[0].Index != 1 {
		t.Fatal("Normalize must sort sockets by index")
	}
}

func TestSnapshotValidateRejects(t *testing.T) {
	cases := map[string]func(*inventory.Snapshot){
		"zero timestamp": func(s *inventory.Snapshot) { s.Timestamp = time.Time{} },
		"duplicate instance": func(s *inventory.Snapshot) {
			s.Items[inventory.Equipped("1")] = []inventory.Item{{ItemHash: 5, InstanceID: "a", Quantity: 1}}
		},
		"unknown character": func(s *inventory.Snapshot) {
			s.Items[inventory.Inventory("2")] = []inventory.Item{{ItemHash: 7, Quantity: 1}}
		},
		"zero quantity": func(s *inventory.Snapshot) {
			s.Items[inventory.Inventory("1")][0].Quantity = 0
		},
		"duplicate stack": func(s *inventory.Snapshot) {
			s.Items[inventory.Inventory("1")] = append(s.Items[inventory.Inventory("1")], inventory.Item{ItemHash: 6, Quantity: 2})
		},
		"duplicate socket": func(s *inventory.Snapshot) {
			s.Instances["a"] = inventory.ItemInstance{InstanceID: "a", Sockets: []inventory.Socket{{Index: 2}, {Index: 2}}}
		},
		"instance key mismatch": func(s *inventory.Snapshot) {
			s.Instances["b"] = inventory.ItemInstance{InstanceID: "c"}
		},
		"invalid location": func(s *inventory.Snapshot) {
			s.Items[inventory.Location{Kind: inventory.KindInventory}] = nil
		},
	}
	for name, mutate := range cases {
		snap := validSnapshot()
		mutate(&snap)
		snap = snap.Normalize()
		if err := snap.Validate(); !errors.Is(err, inventory.ErrInvalidSnapshot) {
			t.Fatalf("%s: expected ErrInvalidSnapshot, got %v", name, err)
		}
	}
}

func TestSnapshotDigestIgnoresTimestamp(t *testing.T) {
	a := validSnapshot().Normalize()
	b := validSnapshot().Normalize()
	b.Timestamp = b.Timestamp.Add(time.Hour)
	da, err := a.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	db, _ := b.Digest()
	if da != db {
		t.Fatal("digest must not depend on timestamp")
	}
	b.Items[inventory.Inventory("1")][0].Quantity = 21
	if dc, _ := b.Digest(); dc == da {
		t.Fatal("digest must change with content")
	}
}
