package store_test

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/store"
	"vaultkeeper/internal/testsupport"
)

const (
	hashRifle  uint32 = 1001
	hashHelmet uint32 = 2002
	hashGlimmr uint32 = 3003
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(logging.NewNop())
	t.Cleanup(s.Dispose)
	return s
}

func mustApply(t *testing.T, s *store.Store, snap inventory.Snapshot, want store.Result) {
	t.Helper()
	got, err := s.Apply(snap)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if got != want {
		t.Fatalf("Apply result = %s, want %s", got, want)
	}
}

func assertSingleLocation(t *testing.T, v store.View) {
	t.Helper()
	seen := map[string]inventory.Location{}
	for loc, items := range v.AllItems() {
		for _, item := range items {
			if !item.Instanced() {
				continue
			}
			if prev, dup := seen[item.InstanceID]; dup {
				t.Fatalf("instance %s visible in %s and %s", item.InstanceID, prev, loc)
			}
			seen[item.InstanceID] = loc
			if item.Location != loc {
				t.Fatalf("item %s carries location %s but sits in %s", item.InstanceID, item.Location, loc)
			}
		}
	}
}

func baseSnapshot(ts int) *testsupport.SnapshotBuilder {
	return testsupport.NewSnapshot(testsupport.At(ts), testsupport.CharA, testsupport.CharB).
		Item(inventory.Vault(), hashRifle, "100").
		Item(inventory.Inventory(testsupport.CharA), hashHelmet, "200").
		Stack(inventory.Inventory(testsupport.CharA), hashGlimmr, 250)
}

func TestApplyDiscardsStaleSnapshotWhole(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)
	before := s.View()

	older := testsupport.NewSnapshot(testsupport.At(5), testsupport.CharA).
		Item(inventory.Inventory(testsupport.CharA), hashRifle, "100").
		Build()
	mustApply(t, s, older, store.DiscardedStale)

	equal := testsupport.NewSnapshot(testsupport.At(10), testsupport.CharA).Build()
	mustApply(t, s, equal, store.DiscardedStale)

	after := s.View()
	if after.Version() != before.Version() {
		t.Fatalf("version moved from %d to %d", before.Version(), after.Version())
	}
	if !reflect.DeepEqual(before.AllItems(), after.AllItems()) {
		t.Fatal("stale snapshot changed the store")
	}
	if !after.Guard().Equal(testsupport.At(10)) {
		t.Fatalf("guard regressed to %s", after.Guard())
	}
}

func TestApplySkipsIdenticalContent(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)
	version := s.View().Version()

	mustApply(t, s, baseSnapshot(20).Build(), store.SkippedIdentical)
	if s.View().Version() != version {
		t.Fatal("identical snapshot bumped the version")
	}
	if !s.View().Guard().Equal(testsupport.At(20)) {
		t.Fatal("identical snapshot must still advance the guard")
	}
	mustApply(t, s, baseSnapshot(15).Build(), store.DiscardedStale)
}

func TestIdenticalSnapshotOverridesLocalSocketEdit(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Sockets("100", testsupport.Plug(3, 111)).Build(), store.Accepted)

	if _, err := s.UpdateItemSocket("100", 3, 999); err != nil {
		t.Fatalf("UpdateItemSocket: %v", err)
	}
	mustApply(t, s, baseSnapshot(20).Sockets("100", testsupport.Plug(3, 111)).Build(), store.Accepted)

	inst, _ := s.View().Instance("100")
	if socket, _ := inst.Socket(3); socket.PlugHash != 111 {
		t.Fatalf("socket 3 = %d, authority says 111", socket.PlugHash)
	}
	mustApply(t, s, baseSnapshot(30).Sockets("100", testsupport.Plug(3, 111)).Build(), store.SkippedIdentical)
}

func TestIdenticalSnapshotOverridesLocalStateEdit(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)

	if _, err := s.SetItemState("100", inventory.StateLocked, true); err != nil {
		t.Fatalf("SetItemState: %v", err)
	}
	mustApply(t, s, baseSnapshot(20).Build(), store.Accepted)

	item, _ := s.View().Find("100")
	if item.State.Has(inventory.StateLocked) {
		t.Fatal("local lock survived a newer snapshot showing the item unlocked")
	}
}

func TestIdenticalSnapshotOverridesFailedTransferRestore(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)

	if err := s.AddActiveTransfer("100", inventory.Equipped(testsupport.CharA)); err != nil {
		t.Fatalf("AddActiveTransfer: %v", err)
	}
	snap := func(ts int) inventory.Snapshot {
		return baseSnapshot(ts).Stack(inventory.Vault(), 5, 2).Build()
	}
	mustApply(t, s, snap(20), store.Accepted)

	// Restore lands on a hop the authority never reported.
	hop := inventory.Inventory(testsupport.CharB)
	if err := s.ConfirmHop("100", hop); err != nil {
		t.Fatalf("ConfirmHop: %v", err)
	}
	if err := s.RemoveActiveTransfer("100", store.OutcomeFailure); err != nil {
		t.Fatalf("RemoveActiveTransfer: %v", err)
	}
	if loc, _ := s.View().Location("100"); loc != hop {
		t.Fatalf("expected local restore to %s, got %s", hop, loc)
	}

	mustApply(t, s, snap(30), store.Accepted)
	if loc, _ := s.View().Location("100"); !loc.IsVault() {
		t.Fatalf("location = %s, authority says vault", loc)
	}
	assertSingleLocation(t, s.View())
}

func TestApplyRejectsMalformedSnapshot(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)

	bad := baseSnapshot(20).Item(inventory.Inventory(testsupport.CharB), hashRifle, "100").Build()
	_, err := s.Apply(bad)
	if !errors.Is(err, store.ErrMalformedSnapshot) {
		t.Fatalf("expected ErrMalformedSnapshot, got %v", err)
	}
	if !s.View().Guard().Equal(testsupport.At(10)) {
		t.Fatal("rejected snapshot advanced the guard")
	}

	unknownChar := testsupport.NewSnapshot(testsupport.At(30), testsupport.CharA).
		Item(inventory.Equipped(testsupport.CharC), hashRifle, "900").Build()
	if _, err := s.Apply(unknownChar); !errors.Is(err, store.ErrMalformedSnapshot) {
		t.Fatalf("expected unknown character to be rejected, got %v", err)
	}

	noTimestamp := baseSnapshot(40).Build()
	noTimestamp.Timestamp = time.Time{}
	if _, err := s.Apply(noTimestamp); !errors.Is(err, store.ErrMalformedSnapshot) {
		t.Fatalf("expected zero timestamp to be rejected, got %v", err)
	}
}

func TestTransferConfirmedByNextSnapshot(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)

	target := inventory.Inventory(testsupport.CharB)
	if err := s.AddActiveTransfer("100", target); err != nil {
		t.Fatalf("AddActiveTransfer: %v", err)
	}
	if err := s.RemoveActiveTransfer("100", store.OutcomeSuccess); err != nil {
		t.Fatalf("RemoveActiveTransfer: %v", err)
	}
	if loc, _ := s.View().Location("100"); !loc.IsVault() {
		t.Fatalf("success must not move the item locally, found at %s", loc)
	}

	moved := testsupport.NewSnapshot(testsupport.At(20), testsupport.CharA, testsupport.CharB).
		Item(target, hashRifle, "100").
		Item(inventory.Inventory(testsupport.CharA), hashHelmet, "200").
		Build()
	mustApply(t, s, moved, store.Accepted)

	v := s.View()
	if loc, _ := v.Location("100"); loc != target {
		t.Fatalf("expected item at %s, got %s", target, loc)
	}
	if len(v.Items(inventory.Vault())) != 0 {
		t.Fatal("expected vault to be empty after confirmed move")
	}
	assertSingleLocation(t, v)
}

func TestInFlightInstanceStaysVisibleUntilConfirmed(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)

	target := inventory.Inventory(testsupport.CharB)
	if err := s.AddActiveTransfer("100", target); err != nil {
		t.Fatalf("AddActiveTransfer: %v", err)
	}

	// Authority still reports the item in the vault.
	mustApply(t, s, baseSnapshot(20).Stack(inventory.Vault(), 4444, 1).Build(), store.Accepted)
	v := s.View()
	if loc, _ := v.Location("100"); loc != target {
		t.Fatalf("expected in-flight item shown at target %s, got %s", target, loc)
	}
	if !v.IsInFlight("100") {
		t.Fatal("entry must stay until arrival is confirmed")
	}
	assertSingleLocation(t, v)

	// Authority omits the item entirely.
	omitted := testsupport.NewSnapshot(testsupport.At(30), testsupport.CharA, testsupport.CharB).
		Item(inventory.Inventory(testsupport.CharA), hashHelmet, "200").Build()
	mustApply(t, s, omitted, store.Accepted)
	v = s.View()
	item, ok := v.Find("100")
	if !ok {
		t.Fatal("in-flight instance vanished")
	}
	if item.Location != target {
		t.Fatalf("expected injected copy at %s, got %s", target, item.Location)
	}
	if _, ok := v.Instance("100"); !ok {
		t.Fatal("instance data must be carried with the injected copy")
	}

	// Arrival confirmed.
	arrived := testsupport.NewSnapshot(testsupport.At(40), testsupport.CharA, testsupport.CharB).
		Item(target, hashRifle, "100").Build()
	mustApply(t, s, arrived, store.Accepted)
	if s.View().IsInFlight("100") {
		t.Fatal("confirmed arrival must clear the registry entry")
	}
	assertSingleLocation(t, s.View())
}

func TestFailedTransferRestoresInjectedCopy(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)

	target := inventory.Equipped(testsupport.CharA)
	if err := s.AddActiveTransfer("100", target); err != nil {
		t.Fatalf("AddActiveTransfer: %v", err)
	}
	mustApply(t, s, baseSnapshot(20).Stack(inventory.Vault(), 5, 2).Build(), store.Accepted)
	if loc, _ := s.View().Location("100"); loc != target {
		t.Fatalf("expected injected copy at %s, got %s", target, loc)
	}

	if err := s.RemoveActiveTransfer("100", store.OutcomeFailure); err != nil {
		t.Fatalf("RemoveActiveTransfer: %v", err)
	}
	v := s.View()
	if v.IsInFlight("100") {
		t.Fatal("failure must clear the in-flight mark")
	}
	if loc, _ := v.Location("100"); !loc.IsVault() {
		t.Fatalf("expected restore to vault, got %s", loc)
	}
	assertSingleLocation(t, v)
}

func TestConfirmHopChangesRestoreTarget(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)

	if err := s.AddActiveTransfer("200", inventory.Vault()); err != nil {
		t.Fatalf("AddActiveTransfer: %v", err)
	}
	if err := s.ConfirmHop("200", inventory.Vault()); err != nil {
		t.Fatalf("ConfirmHop: %v", err)
	}
	final := inventory.Inventory(testsupport.CharB)
	if err := s.AddActiveTransfer("200", final); err != nil {
		t.Fatalf("AddActiveTransfer update: %v", err)
	}
	if target, _ := s.View().InFlightTarget("200"); target != final {
		t.Fatalf("expected target update to %s, got %s", final, target)
	}
	tr := s.View().InFlight()["200"]
	if !tr.Confirmed.IsVault() {
		t.Fatalf("expected confirmed hop at vault, got %s", tr.Confirmed)
	}
}

func TestAddActiveTransferRejectsUnknownInstance(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)
	if err := s.AddActiveTransfer("missing", inventory.Vault()); !errors.Is(err, store.ErrUnknownInstance) {
		t.Fatalf("expected ErrUnknownInstance, got %v", err)
	}
	if err := s.AddActiveTransfer("100", inventory.Location{Kind: inventory.KindEquipped}); err == nil {
		t.Fatal("expected invalid target to be rejected")
	}
	if err := s.RemoveActiveTransfer("100", store.OutcomeSuccess); err != nil {
		t.Fatalf("removing a non-flying instance should be a no-op, got %v", err)
	}
}

func TestZeroTargetLeavesItemWhereAuthoritySaysIt(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)
	if err := s.AddActiveTransfer("100", inventory.Location{}); err != nil {
		t.Fatalf("AddActiveTransfer: %v", err)
	}
	moved := testsupport.NewSnapshot(testsupport.At(20), testsupport.CharA, testsupport.CharB).
		Item(inventory.Inventory(testsupport.CharB), hashRifle, "100").Build()
	mustApply(t, s, moved, store.Accepted)
	if loc, _ := s.View().Location("100"); loc != inventory.Inventory(testsupport.CharB) {
		t.Fatalf("expected authority location, got %s", loc)
	}
	if !s.View().IsInFlight("100") {
		t.Fatal("entry without a target is only cleared by RemoveActiveTransfer")
	}
}

func TestUpdateItemSocketAndInstance(t *testing.T) {
	s := newStore(t)
	snap := baseSnapshot(10).Sockets("100", testsupport.Plug(0, 11), testsupport.Plug(3, 33)).Build()
	mustApply(t, s, snap, store.Accepted)

	prev, err := s.UpdateItemSocket("100", 3, 99)
	if err != nil {
		t.Fatalf("UpdateItemSocket: %v", err)
	}
	if prev != 33 {
		t.Fatalf("expected previous plug 33, got %d", prev)
	}
	inst, _ := s.View().Instance("100")
	if socket, _ := inst.Socket(3); socket.PlugHash != 99 {
		t.Fatalf("expected plug 99, got %d", socket.PlugHash)
	}
	if _, err := s.UpdateItemSocket("100", 7, 1); !errors.Is(err, store.ErrUnknownSocket) {
		t.Fatalf("expected ErrUnknownSocket, got %v", err)
	}
	if _, err := s.UpdateItemSocket("nope", 0, 1); !errors.Is(err, store.ErrUnknownInstance) {
		t.Fatalf("expected ErrUnknownInstance, got %v", err)
	}

	power := 2010
	if err := s.UpdateItemInstance("100", inventory.InstancePatch{Power: &power}); err != nil {
		t.Fatalf("UpdateItemInstance: %v", err)
	}
	inst, _ = s.View().Instance("100")
	if inst.Power != 2010 {
		t.Fatalf("expected power 2010, got %d", inst.Power)
	}
	if socket, _ := inst.Socket(3); socket.PlugHash != 99 {
		t.Fatal("instance patch must not disturb sockets")
	}
}

func TestViewsAreIsolatedCopies(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Sockets("100", testsupport.Plug(0, 1)).Build(), store.Accepted)

	v := s.View()
	inst, _ := v.Instance("100")
	inst.Sockets[0].PlugHash = 777
	items := v.Items(inventory.Vault())
	items[0].Quantity = 50

	again, _ := s.View().Instance("100")
	if again.Sockets[0].PlugHash != 1 {
		t.Fatal("mutating a returned instance leaked into the store")
	}
	if s.View().Items(inventory.Vault())[0].Quantity != 1 {
		t.Fatal("mutating a returned item list leaked into the store")
	}

	if _, err := s.UpdateItemSocket("100", 0, 2); err != nil {
		t.Fatalf("UpdateItemSocket: %v", err)
	}
	old, _ := v.Instance("100")
	if old.Sockets[0].PlugHash != 1 {
		t.Fatal("an earlier view must not observe later writes")
	}
}

func TestSetItemState(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)
	prev, err := s.SetItemState("200", inventory.StateLocked, true)
	if err != nil {
		t.Fatalf("SetItemState: %v", err)
	}
	if prev.Has(inventory.StateLocked) {
		t.Fatal("expected unlocked before")
	}
	item, _ := s.View().Find("200")
	if !item.State.Has(inventory.StateLocked) {
		t.Fatal("expected locked after")
	}
}

func TestSubscribeReceivesChangesAndNeverBlocks(t *testing.T) {
	s := newStore(t)
	changes, cancel := s.Subscribe(1)
	defer cancel()

	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)
	// Buffer is full now; this write must not block.
	if err := s.AddActiveTransfer("100", inventory.Vault()); err != nil {
		t.Fatalf("AddActiveTransfer: %v", err)
	}
	first := <-changes
	if first.Kind != store.ChangeSnapshot {
		t.Fatalf("expected snapshot change, got %s", first.Kind)
	}
	select {
	case extra := <-changes:
		t.Fatalf("expected dropped change, got %+v", extra)
	default:
	}

	cancel()
	cancel()
	if _, ok := <-changes; ok {
		t.Fatal("expected channel closed after cancel")
	}
}

func TestDisposeRejectsWrites(t *testing.T) {
	s := store.New(logging.NewNop())
	changes, _ := s.Subscribe(4)
	s.Dispose()
	if _, ok := <-changes; ok {
		t.Fatal("expected subscription closed on dispose")
	}
	if _, err := s.Apply(baseSnapshot(10).Build()); !errors.Is(err, store.ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := newStore(t)
	mustApply(t, s, baseSnapshot(10).Build(), store.Accepted)
	if err := s.AddActiveTransfer("100", inventory.Vault()); err != nil {
		t.Fatalf("AddActiveTransfer: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	v := s.View()
	if v.ItemCount() != 0 || len(v.InFlight()) != 0 || !v.Guard().IsZero() {
		t.Fatal("expected empty store after reset")
	}
	mustApply(t, s, baseSnapshot(1).Build(), store.Accepted)
}

// Random interleavings of registry changes and snapshots must never show an
// instance in two places, and stale snapshots must never change anything.
func TestRandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	locations := []inventory.Location{
		inventory.Vault(),
		inventory.Inventory(testsupport.CharA),
		inventory.Equipped(testsupport.CharA),
		inventory.Inventory(testsupport.CharB),
	}
	ids := []string{"1", "2", "3", "4", "5"}

	for round := 0; round < 50; round++ {
		s := store.New(logging.NewNop())
		ts := 10
		for step := 0; step < 40; step++ {
			switch rng.IntN(4) {
			case 0, 1:
				b := testsupport.NewSnapshot(testsupport.At(ts), testsupport.CharA, testsupport.CharB)
				for _, id := range ids {
					if rng.IntN(5) == 0 {
						continue
					}
					b.Item(locations[rng.IntN(len(locations))], 500, id)
				}
				if rng.IntN(4) == 0 {
					before := s.View()
					stale := b.Build()
					stale.Timestamp = before.Guard()
					if res, _ := s.Apply(stale); res != store.DiscardedStale && !before.Guard().IsZero() {
						t.Fatalf("round %d: expected stale discard, got %s", round, res)
					}
					if !before.Guard().IsZero() && !reflect.DeepEqual(before.AllItems(), s.View().AllItems()) {
						t.Fatalf("round %d: stale snapshot changed items", round)
					}
					continue
				}
				ts += 1 + rng.IntN(3)
				snap := b.Build()
				snap.Timestamp = testsupport.At(ts)
				if _, err := s.Apply(snap); err != nil {
					t.Fatalf("round %d: apply: %v", round, err)
				}
			case 2:
				id := ids[rng.IntN(len(ids))]
				_ = s.AddActiveTransfer(id, locations[rng.IntN(len(locations))])
			case 3:
				id := ids[rng.IntN(len(ids))]
				outcome := store.OutcomeSuccess
				if rng.IntN(2) == 0 {
					outcome = store.OutcomeFailure
				}
				_ = s.RemoveActiveTransfer(id, outcome)
			}
			v := s.View()
			assertSingleLocation(t, v)
			for id := range v.InFlight() {
				if _, ok := v.Find(id); !ok {
					t.Fatalf("round %d step %d: in-flight %s evicted", round, step, id)
				}
			}
		}
		s.Dispose()
	}
}

func TestResultStrings(t *testing.T) {
	for _, r := range []store.Result{store.Accepted, store.SkippedIdentical, store.DiscardedStale} {
		if r.String() == "unknown" {
			t.Fatalf("missing string for %d", r)
		}
	}
	if store.Result(0).String() != "unknown" {
		t.Fatal("zero result should be unknown")
	}
}
