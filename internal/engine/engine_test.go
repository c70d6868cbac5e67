package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vaultkeeper/internal/engine"
	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/journal"
	"vaultkeeper/internal/loadout"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/snapcache"
	"vaultkeeper/internal/store"
	"vaultkeeper/internal/syncer"
	"vaultkeeper/internal/testsupport"
)

func baseSnapshot(ts int) inventory.Snapshot {
	return testsupport.NewSnapshot(testsupport.At(ts), testsupport.CharA, testsupport.CharB).
		Item(inventory.Vault(), testsupport.HashAutoRifle, "rifle").
		Sockets("rifle", testsupport.Plug(testsupport.WeaponPerkSocket, testsupport.HashKillClip)).
		Item(inventory.Inventory(testsupport.CharA), testsupport.HashHandCannon, "cannon").
		Build()
}

type harness struct {
	eng     *engine.Engine
	auth    *testsupport.FakeAuthority
	journal *journal.Store
}

func newHarness(t *testing.T, mutate func(*engine.Deps)) harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	auth := testsupport.NewFakeAuthority()
	deps := engine.Deps{
		Authority: auth,
		Manifest:  testsupport.Manifest(),
		Journal:   testsupport.MustOpenJournal(t, cfg),
		Sync:      syncer.Options{PollInterval: time.Hour},
		Logger:    logging.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	eng, err := engine.New(deps)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return harness{eng: eng, auth: auth, journal: deps.Journal}
}

func (h harness) apply(t *testing.T, snap inventory.Snapshot) {
	t.Helper()
	if res, err := h.eng.ApplySnapshot(snap); err != nil || res != store.Accepted {
		t.Fatalf("ApplySnapshot = %v, %v", res, err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := engine.New(engine.Deps{Manifest: testsupport.Manifest()}); err == nil {
		t.Fatal("expected error without authority")
	}
	if _, err := engine.New(engine.Deps{Authority: testsupport.NewFakeAuthority()}); err == nil {
		t.Fatal("expected error without manifest")
	}
}

func TestRequestTransferJournalsSuccess(t *testing.T) {
	h := newHarness(t, nil)
	h.apply(t, baseSnapshot(10))

	out, err := h.eng.RequestTransfer(context.Background(), engine.TransferRequest{
		InstanceID: "rifle",
		Target:     inventory.Inventory(testsupport.CharB),
	})
	if err != nil {
		t.Fatalf("RequestTransfer: %v", err)
	}
	if len(out.Result.Hops) != 1 || out.OperationID == "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(h.eng.InFlight()) != 0 {
		t.Fatal("in-flight mark not cleared")
	}

	entry, err := h.journal.Get(context.Background(), out.OperationID)
	if err != nil {
		t.Fatalf("journal Get: %v", err)
	}
	if entry.Kind != journal.KindTransfer || entry.Status != journal.StatusSucceeded || entry.CharacterID != testsupport.CharB {
		t.Fatalf("unexpected journal entry: %+v", entry)
	}
}

func TestRequestTransferJournalsFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.apply(t, baseSnapshot(10))
	h.auth.Fail(testsupport.OpMove, "rifle", errors.New("no room"))

	out, err := h.eng.RequestTransfer(context.Background(), engine.TransferRequest{
		InstanceID: "rifle",
		Target:     inventory.Inventory(testsupport.CharA),
	})
	if err == nil {
		t.Fatal("expected transfer failure")
	}
	entry, err := h.journal.Get(context.Background(), out.OperationID)
	if err != nil {
		t.Fatalf("journal Get: %v", err)
	}
	if entry.Status != journal.StatusFailed || entry.ErrorKind != "transfer_failed" {
		t.Fatalf("unexpected journal entry: %+v", entry)
	}
}

func TestSocketFailureRollsBackAndResyncs(t *testing.T) {
	h := newHarness(t, nil)
	h.apply(t, baseSnapshot(10))
	h.auth.SetProfile(baseSnapshot(20))
	h.auth.Fail(testsupport.OpInsert, "rifle", errors.New("plug locked"))

	out, err := h.eng.RequestSocketMutation(context.Background(), "rifle", testsupport.WeaponPerkSocket, testsupport.HashRampage)
	if err == nil {
		t.Fatal("expected socket failure")
	}
	inst, _ := h.eng.View().Instance("rifle")
	if socket, _ := inst.Socket(testsupport.WeaponPerkSocket); socket.PlugHash != testsupport.HashKillClip {
		t.Fatalf("socket holds %d, want restored %d", socket.PlugHash, testsupport.HashKillClip)
	}
	if got := len(h.auth.CallsFor(testsupport.OpFetch)); got != 1 {
		t.Fatalf("expected one resync fetch, got %d", got)
	}
	if !h.eng.View().Guard().Equal(testsupport.At(20)) {
		t.Fatalf("guard = %v, want resynced snapshot time", h.eng.View().Guard())
	}
	entry, err := h.journal.Get(context.Background(), out.OperationID)
	if err != nil {
		t.Fatalf("journal Get: %v", err)
	}
	if entry.ErrorKind != "socket_mutation_failed" {
		t.Fatalf("error kind = %q", entry.ErrorKind)
	}
}

func TestSetLockState(t *testing.T) {
	h := newHarness(t, nil)
	h.apply(t, baseSnapshot(10))

	changed, err := h.eng.SetLockState(context.Background(), "cannon", true)
	if err != nil || !changed {
		t.Fatalf("SetLockState = %v, %v", changed, err)
	}
	item, _ := h.eng.View().Find("cannon")
	if !item.State.Has(inventory.StateLocked) {
		t.Fatal("lock bit not set")
	}
	entries, err := h.eng.History(context.Background(), journal.Filter{Kind: journal.KindLock})
	if err != nil || len(entries) != 1 || entries[0].Target != "locked" {
		t.Fatalf("History = %+v, %v", entries, err)
	}
}

func TestEquipLoadoutMissingMakesNoCalls(t *testing.T) {
	h := newHarness(t, nil)
	h.apply(t, baseSnapshot(10))

	var last float64
	def := loadout.Definition{
		Name:    "snipe",
		Weapons: []loadout.Component{{Name: "Round Robin"}, {Name: "Succession"}},
	}
	out, err := h.eng.EquipLoadout(context.Background(), def, testsupport.CharA, func(step string, percent float64) {
		last = percent
	})
	var partial *loadout.PartialEquipError
	if !errors.As(err, &partial) {
		t.Fatalf("err = %v, want PartialEquipError", err)
	}
	if len(out.Result.Missing) != 1 || out.Result.Missing[0] != "Succession" {
		t.Fatalf("missing = %v", out.Result.Missing)
	}
	if calls := h.auth.Calls(); len(calls) != 0 {
		t.Fatalf("expected no remote calls, got %v", calls)
	}
	if last != 100 {
		t.Fatalf("final progress = %v, want 100", last)
	}

	entry, err := h.journal.Get(context.Background(), out.OperationID)
	if err != nil {
		t.Fatalf("journal Get: %v", err)
	}
	if entry.ErrorKind != "missing" || entry.Target != "snipe" {
		t.Fatalf("unexpected journal entry: %+v", entry)
	}

	events, _, err := h.eng.Events().Fetch(context.Background(), 0, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	var sawProgress, sawOperation bool
	for _, evt := range events {
		switch evt.Type {
		case engine.EventProgress:
			sawProgress = evt.Progress.OperationID == out.OperationID
		case engine.EventOperation:
			sawOperation = !evt.Operation.Success
		}
	}
	if !sawProgress || !sawOperation {
		t.Fatalf("expected progress and operation events, got %+v", events)
	}
}

func TestValidateLoadout(t *testing.T) {
	h := newHarness(t, nil)
	h.apply(t, baseSnapshot(10))

	res, err := h.eng.ValidateLoadout(loadout.Definition{
		Name:    "rifle",
		Weapons: []loadout.Component{{Name: "Horror's Least"}},
	}, testsupport.CharB)
	if err != nil || !res.Success || len(res.Resolved) != 1 {
		t.Fatalf("ValidateLoadout = %+v, %v", res, err)
	}
	if len(h.auth.Calls()) != 0 {
		t.Fatal("validation made remote calls")
	}
}

func TestStartWarmsFromCacheAndClosesInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jr := testsupport.MustOpenJournal(t, cfg)
	stuck, err := jr.Begin(context.Background(), journal.KindTransfer, journal.Subject{InstanceID: "rifle"})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	cache := snapcache.New(filepath.Join(t.TempDir(), "snapshot.zst"), logging.NewNop())
	if err := cache.Save(baseSnapshot(10)); err != nil {
		t.Fatalf("cache Save: %v", err)
	}

	h := newHarness(t, func(d *engine.Deps) {
		d.Journal = jr
		d.Cache = cache
	})
	h.auth.FailFetch(errors.New("offline"))
	if err := h.eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.eng.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if _, ok := h.eng.View().Find("rifle"); !ok {
		t.Fatal("warm start did not populate the store")
	}
	entry, err := jr.Get(context.Background(), stuck.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.ErrorKind != journal.ErrorKindInterrupted {
		t.Fatalf("stuck row not closed: %+v", entry)
	}

	status := h.eng.Status(context.Background())
	if status.Items != 2 || status.Definitions == 0 || status.Characters != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if err := h.eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.eng.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestResyncJournals(t *testing.T) {
	h := newHarness(t, nil)
	h.auth.SetProfile(baseSnapshot(30))

	view, err := h.eng.Resync(context.Background())
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if view.ItemCount() != 2 {
		t.Fatalf("item count = %d", view.ItemCount())
	}
	entries, err := h.eng.History(context.Background(), journal.Filter{Kind: journal.KindResync})
	if err != nil || len(entries) != 1 || entries[0].Status != journal.StatusSucceeded {
		t.Fatalf("History = %+v, %v", entries, err)
	}
}

func TestStoreChangesReachEventHub(t *testing.T) {
	h := newHarness(t, nil)
	h.auth.FailFetch(errors.New("offline"))
	if err := h.eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	since := h.eng.Events().Latest()
	h.apply(t, baseSnapshot(10))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		events, next, err := h.eng.Events().Fetch(ctx, since, 0, true)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		for _, evt := range events {
			if evt.Type == engine.EventChange && evt.Change.Kind == store.ChangeSnapshot {
				return
			}
		}
		since = next
	}
}
