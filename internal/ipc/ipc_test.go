package ipc_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/daemon"
	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/ipc"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/testsupport"
)

type env struct {
	client *ipc.Client
	auth   *testsupport.FakeAuthority
}

func newEnv(t *testing.T) env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	auth := testsupport.NewFakeAuthority()
	eng := testsupport.NewEngine(t, auth)
	testsupport.MustApply(t, eng, testsupport.NewSnapshot(testsupport.At(10), testsupport.CharA, testsupport.CharB).
		Item(inventory.Vault(), testsupport.HashAutoRifle, "rifle").
		Sockets("rifle", testsupport.Plug(testsupport.WeaponPerkSocket, testsupport.HashKillClip)).
		Item(inventory.Inventory(testsupport.CharA), testsupport.HashHandCannon, "cannon").
		Build())

	d, err := daemon.New(cfg, eng, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.StateDir, "test.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return env{client: client, auth: auth}
}

func TestIPCStatusAndItems(t *testing.T) {
	e := newEnv(t)

	status, err := e.client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Items != 2 || status.Characters != 2 || status.Running {
		t.Fatalf("unexpected status %+v", status.DaemonStatus)
	}

	items, err := e.client.Items(api.ItemsQuery{Location: "vault"})
	if err != nil || len(items.Items) != 1 || items.Items[0].InstanceID != "rifle" {
		t.Fatalf("Items = %+v, %v", items, err)
	}

	item, err := e.client.Item("rifle")
	if err != nil || len(item.Item.Sockets) != 1 {
		t.Fatalf("Item = %+v, %v", item, err)
	}
}

func TestIPCFailureKeepsKind(t *testing.T) {
	e := newEnv(t)

	_, err := e.client.Item("ghost")
	var failure *api.Error
	if !errors.As(err, &failure) || failure.Kind != "not_found" {
		t.Fatalf("err = %#v", err)
	}

	e.auth.Fail(testsupport.OpMove, "rifle", errors.New("maintenance window"))
	resp, err := e.client.Transfer(api.TransferRequest{InstanceID: "rifle", Target: "inventory:" + testsupport.CharB})
	if !errors.As(err, &failure) || failure.Kind != "transfer_failed" {
		t.Fatalf("transfer err = %#v", err)
	}
	if resp == nil || resp.OperationID == "" {
		t.Fatalf("failed transfer should still carry its operation id: %+v", resp)
	}
}

func TestIPCOperations(t *testing.T) {
	e := newEnv(t)

	transfer, err := e.client.Transfer(api.TransferRequest{InstanceID: "rifle", Target: "inventory:" + testsupport.CharB})
	if err != nil || len(transfer.Hops) != 1 {
		t.Fatalf("Transfer = %+v, %v", transfer, err)
	}

	socket, err := e.client.Socket(api.SocketRequest{InstanceID: "cannon", SocketIndex: 0, PlugHash: testsupport.HashRampage})
	if err == nil {
		t.Fatalf("expected missing socket to fail, got %+v", socket)
	}

	lock, err := e.client.Lock(api.LockRequest{InstanceID: "cannon", Locked: true})
	if err != nil || !lock.Changed {
		t.Fatalf("Lock = %+v, %v", lock, err)
	}

	loadout, err := e.client.Loadout(api.LoadoutRequest{
		Definition:   "name: Rifle\nweapons:\n  - name: Round Robin\n",
		CharacterID:  testsupport.CharA,
		ValidateOnly: true,
	})
	if err != nil || !loadout.Success {
		t.Fatalf("Loadout = %+v, %v", loadout, err)
	}

	history, err := e.client.History(api.HistoryQuery{Limit: 10})
	if err != nil || len(history.Entries) < 2 {
		t.Fatalf("History = %+v, %v", history, err)
	}
	if history.Entries[0].Kind != "lock" {
		t.Fatalf("newest entry should be the lock, got %+v", history.Entries[0])
	}
}

func TestIPCEventsWait(t *testing.T) {
	e := newEnv(t)

	first, err := e.client.Events(0, 100, 0)
	if err != nil || len(first.Events) == 0 {
		t.Fatalf("Events = %+v, %v", first, err)
	}

	start := time.Now()
	empty, err := e.client.Events(first.Next, 100, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Events wait: %v", err)
	}
	if len(empty.Events) != 0 || time.Since(start) < 50*time.Millisecond {
		t.Fatalf("expected an empty batch after waiting, got %+v", empty)
	}
}
