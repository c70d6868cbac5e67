package testsupport

import (
	"testing"
	"time"

	"vaultkeeper/internal/engine"
	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/store"
	"vaultkeeper/internal/syncer"
)

// NewEngine builds an unstarted engine over the fixture manifest, a fresh
// journal and auth. The engine is closed on cleanup.
func NewEngine(t testing.TB, auth *FakeAuthority) *engine.Engine {
	t.Helper()
	cfg := NewConfig(t)
	eng, err := engine.New(engine.Deps{
		Authority: auth,
		Manifest:  Manifest(),
		Journal:   MustOpenJournal(t, cfg),
		Sync:      syncer.Options{PollInterval: time.Hour},
		Logger:    logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

// MustApply applies snap and fails the test unless it is accepted.
func MustApply(t testing.TB, eng *engine.Engine, snap inventory.Snapshot) {
	t.Helper()
	res, err := eng.ApplySnapshot(snap)
	if err != nil || res != store.Accepted {
		t.Fatalf("ApplySnapshot = %v, %v", res, err)
	}
}
