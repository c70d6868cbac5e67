package api_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/engine"
	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/services"
	"vaultkeeper/internal/testsupport"
)

const rifleLoadout = `
name: Rifle
weapons:
  - name: Horror's Least
`

func newService(t *testing.T) (*api.InventoryService, *testsupport.FakeAuthority) {
	t.Helper()
	auth := testsupport.NewFakeAuthority()
	eng := testsupport.NewEngine(t, auth)
	testsupport.MustApply(t, eng, testsupport.NewSnapshot(testsupport.At(10), testsupport.CharA, testsupport.CharB).
		Item(inventory.Vault(), testsupport.HashAutoRifle, "rifle").
		Sockets("rifle", testsupport.Plug(testsupport.WeaponPerkSocket, testsupport.HashKillClip)).
		Item(inventory.Inventory(testsupport.CharA), testsupport.HashHandCannon, "cannon").
		Build())
	return api.NewInventoryService(eng), auth
}

func TestNewInventoryServiceNil(t *testing.T) {
	if api.NewInventoryService((*engine.Engine)(nil)) != nil {
		t.Fatal("expected nil service for nil engine")
	}
}

func TestItemsFilters(t *testing.T) {
	svc, _ := newService(t)

	all, err := svc.Items(api.ItemsQuery{})
	if err != nil || len(all.Items) != 2 {
		t.Fatalf("Items = %+v, %v", all, err)
	}
	if all.Items[0].InstanceID != "rifle" || all.Items[0].Name != "Horror's Least" {
		t.Fatalf("vault item should list first: %+v", all.Items[0])
	}

	byLoc, err := svc.Items(api.ItemsQuery{Location: "Inventory:" + testsupport.CharA})
	if err != nil || len(byLoc.Items) != 1 || byLoc.Items[0].InstanceID != "cannon" {
		t.Fatalf("location filter = %+v, %v", byLoc, err)
	}

	byName, _ := svc.Items(api.ItemsQuery{Name: "robin"})
	if len(byName.Items) != 1 || byName.Items[0].ItemHash != testsupport.HashHandCannon {
		t.Fatalf("name filter = %+v", byName)
	}

	if _, err := svc.Items(api.ItemsQuery{Location: "attic"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("bad location err = %v", err)
	}
}

func TestDescribe(t *testing.T) {
	svc, _ := newService(t)

	detail, err := svc.Describe("rifle")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if len(detail.Sockets) != 1 || detail.Sockets[0].PlugName != "Kill Clip" || detail.Sockets[0].Category == "" {
		t.Fatalf("sockets = %+v", detail.Sockets)
	}

	_, err = svc.Describe("ghost")
	if got := api.FromError(err); got == nil || api.HTTPStatus(got.Kind) != http.StatusNotFound {
		t.Fatalf("missing item error = %+v", got)
	}
}

func TestTransfer(t *testing.T) {
	svc, auth := newService(t)
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, api.TransferRequest{InstanceID: "rifle", Target: "moon"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("bad target err = %v", err)
	}

	resp, err := svc.Transfer(ctx, api.TransferRequest{InstanceID: "rifle", Target: "inventory:" + testsupport.CharB})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if resp.OperationID == "" || resp.From != "vault" || len(resp.Hops) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(auth.CallsFor(testsupport.OpMove)) != 1 {
		t.Fatalf("calls = %+v", auth.Calls())
	}
}

func TestTransferFailureClassifies(t *testing.T) {
	svc, auth := newService(t)
	auth.Fail(testsupport.OpMove, "rifle", errors.New("boom"))

	resp, err := svc.Transfer(context.Background(), api.TransferRequest{InstanceID: "rifle", Target: "inventory:" + testsupport.CharA})
	if err == nil {
		t.Fatal("expected failure")
	}
	if resp.OperationID == "" {
		t.Fatal("failed transfer should still carry its journal id")
	}
	classified := api.FromError(err)
	if classified.Kind != "transfer_failed" || api.HTTPStatus(classified.Kind) != http.StatusBadGateway {
		t.Fatalf("classified = %+v", classified)
	}
}

func TestSocketResolvesPlugName(t *testing.T) {
	svc, auth := newService(t)

	resp, err := svc.Socket(context.Background(), api.SocketRequest{
		InstanceID:  "rifle",
		SocketIndex: testsupport.WeaponPerkSocket,
		Plug:        "rampage",
	})
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if resp.Previous != testsupport.HashKillClip || resp.Current != testsupport.HashRampage || !resp.Changed {
		t.Fatalf("unexpected response %+v", resp)
	}
	calls := auth.CallsFor(testsupport.OpInsert)
	if len(calls) != 1 || calls[0].PlugHash != testsupport.HashRampage {
		t.Fatalf("insert calls = %+v", calls)
	}

	if _, err := svc.Socket(context.Background(), api.SocketRequest{InstanceID: "rifle", SocketIndex: 3}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing plug err = %v", err)
	}
	if _, err := svc.Socket(context.Background(), api.SocketRequest{InstanceID: "rifle", SocketIndex: 3, Plug: "Nothing Manacles"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unknown plug err = %v", err)
	}
}

func TestLock(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.Lock(context.Background(), api.LockRequest{InstanceID: "cannon", Locked: true})
	if err != nil || !resp.Changed || !resp.Locked {
		t.Fatalf("Lock = %+v, %v", resp, err)
	}
	items, _ := svc.Items(api.ItemsQuery{Location: "inventory:" + testsupport.CharA})
	if !items.Items[0].Locked {
		t.Fatal("listing does not show lock")
	}
}

func TestLoadoutValidateOnly(t *testing.T) {
	svc, auth := newService(t)

	resp, err := svc.Loadout(context.Background(), api.LoadoutRequest{
		Definition:   rifleLoadout,
		CharacterID:  testsupport.CharB,
		ValidateOnly: true,
	}, nil)
	if err != nil || !resp.Success || len(resp.Resolved) != 1 {
		t.Fatalf("Loadout = %+v, %v", resp, err)
	}
	if resp.OperationID != "" || len(auth.Calls()) != 0 {
		t.Fatal("validation should not journal or call the authority")
	}
}

func TestLoadoutRejectsBadYAML(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Loadout(context.Background(), api.LoadoutRequest{Definition: "weapons: [", CharacterID: testsupport.CharA}, nil)
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestHistoryAndEvents(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Lock(ctx, api.LockRequest{InstanceID: "cannon", Locked: true}); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	history, err := svc.History(ctx, api.HistoryQuery{Kind: "lock"})
	if err != nil || len(history) != 1 || history[0].Status != "succeeded" {
		t.Fatalf("History = %+v, %v", history, err)
	}

	events, err := svc.Events(ctx, 0, 100, false)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	var sawOperation bool
	for _, evt := range events.Events {
		if evt.Type == engine.EventOperation && evt.Operation != nil && evt.Operation.Success {
			sawOperation = true
		}
	}
	if !sawOperation || events.Next == 0 {
		t.Fatalf("events = %+v", events)
	}

	status := svc.Status(ctx)
	if status.Items != 2 || status.Journal["succeeded"] != 1 {
		t.Fatalf("status = %+v", status)
	}
}
