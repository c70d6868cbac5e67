package syncer_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/snapcache"
	"vaultkeeper/internal/store"
	"vaultkeeper/internal/syncer"
	"vaultkeeper/internal/testsupport"
)

func profile(ts int, loc inventory.Location) inventory.Snapshot {
	return testsupport.NewSnapshot(testsupport.At(ts), testsupport.CharA).
		Item(loc, testsupport.HashAutoRifle, "rifle").
		Build()
}

func newSyncer(t *testing.T, auth *testsupport.FakeAuthority, opts syncer.Options) (*syncer.Syncer, *store.Store) {
	t.Helper()
	st := store.New(logging.NewNop())
	t.Cleanup(st.Dispose)
	return syncer.New(st, auth, opts, logging.NewNop()), st
}

func TestSyncOnceAppliesAndSkipsIdentical(t *testing.T) {
	auth := testsupport.NewFakeAuthority()
	auth.SetProfile(profile(10, inventory.Vault()))
	s, st := newSyncer(t, auth, syncer.Options{})

	result, err := s.SyncOnce(context.Background())
	if err != nil || result != store.Accepted {
		t.Fatalf("first SyncOnce = %v, %v", result, err)
	}
	if loc, _ := st.View().Location("rifle"); loc != inventory.Vault() {
		t.Fatalf("rifle at %v, want vault", loc)
	}

	auth.SetProfile(profile(20, inventory.Vault()))
	result, err = s.SyncOnce(context.Background())
	if err != nil || result != store.SkippedIdentical {
		t.Fatalf("second SyncOnce = %v, %v", result, err)
	}
	status := s.Status()
	if status.Fetches != 2 || status.LastResult != store.SkippedIdentical.String() || status.LastError != "" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestSyncOnceRecordsFailure(t *testing.T) {
	auth := testsupport.NewFakeAuthority()
	auth.FailFetch(errors.New("gateway down"))
	s, st := newSyncer(t, auth, syncer.Options{})

	if _, err := s.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected fetch failure")
	}
	if _, err := s.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected fetch failure")
	}
	status := s.Status()
	if status.ConsecutiveFailures != 2 || status.LastError == "" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if st.View().Version() != 0 {
		t.Fatal("store changed on failed fetch")
	}

	auth.FailFetch(nil)
	auth.SetProfile(profile(10, inventory.Vault()))
	if _, err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce after recovery: %v", err)
	}
	if s.Status().ConsecutiveFailures != 0 {
		t.Fatal("failure count not reset")
	}
}

func TestCacheWriteThroughAndWarmStart(t *testing.T) {
	cache := snapcache.New(filepath.Join(t.TempDir(), "snapshot.zst"), logging.NewNop())
	auth := testsupport.NewFakeAuthority()
	auth.SetProfile(profile(10, inventory.Inventory(testsupport.CharA)))
	s, _ := newSyncer(t, auth, syncer.Options{Cache: cache})

	if _, err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	cold, st := newSyncer(t, testsupport.NewFakeAuthority(), syncer.Options{Cache: cache})
	if !cold.WarmStart() {
		t.Fatal("expected warm start from cache")
	}
	if loc, _ := st.View().Location("rifle"); loc != inventory.Inventory(testsupport.CharA) {
		t.Fatalf("rifle at %v after warm start", loc)
	}
	if !st.View().Guard().Equal(testsupport.At(10)) {
		t.Fatalf("guard = %v, want cached timestamp", st.View().Guard())
	}
}

func TestWarmStartWithoutCache(t *testing.T) {
	s, _ := newSyncer(t, testsupport.NewFakeAuthority(), syncer.Options{})
	if s.WarmStart() {
		t.Fatal("warm start without a cache")
	}
	empty := snapcache.New(filepath.Join(t.TempDir(), "missing.zst"), logging.NewNop())
	s, _ = newSyncer(t, testsupport.NewFakeAuthority(), syncer.Options{Cache: empty})
	if s.WarmStart() {
		t.Fatal("warm start from a missing file")
	}
}

func TestForceResyncCoalesces(t *testing.T) {
	auth := testsupport.NewFakeAuthority()
	auth.SetProfile(profile(10, inventory.Vault()))
	release := auth.Block(testsupport.OpFetch)
	s, _ := newSyncer(t, auth, syncer.Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.ForceResync(context.Background())
		}()
	}

	select {
	case <-auth.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ForceResync: %v", err)
		}
	}
	if got := len(auth.CallsFor(testsupport.OpFetch)); got != 1 {
		t.Fatalf("expected one shared fetch, got %d", got)
	}
}

func TestRunLoopPollsAndRefreshes(t *testing.T) {
	auth := testsupport.NewFakeAuthority()
	auth.SetProfile(profile(10, inventory.Vault()))
	s, st := newSyncer(t, auth, syncer.Options{PollInterval: time.Hour, ErrorRetryInterval: 10 * time.Millisecond})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	waitFor(t, func() bool { return st.View().Version() > 0 })

	auth.SetProfile(profile(20, inventory.Inventory(testsupport.CharA)))
	s.RequestRefresh()
	waitFor(t, func() bool {
		loc, _ := st.View().Location("rifle")
		return loc == inventory.Inventory(testsupport.CharA)
	})
	if !s.Status().Running {
		t.Fatal("status does not report running")
	}
}

func TestRunLoopRetriesAfterFailure(t *testing.T) {
	auth := testsupport.NewFakeAuthority()
	auth.FailFetch(errors.New("maintenance"))
	s, st := newSyncer(t, auth, syncer.Options{
		PollInterval:       time.Hour,
		ErrorRetryInterval: 5 * time.Millisecond,
		MaxBackoff:         20 * time.Millisecond,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool { return s.Status().ConsecutiveFailures >= 2 })
	auth.SetProfile(profile(10, inventory.Vault()))
	auth.FailFetch(nil)
	waitFor(t, func() bool { return st.View().Version() > 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
