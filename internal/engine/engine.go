package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/journal"
	"vaultkeeper/internal/loadout"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/manifest"
	"vaultkeeper/internal/mutation"
	"vaultkeeper/internal/services"
	"vaultkeeper/internal/snapcache"
	"vaultkeeper/internal/store"
	"vaultkeeper/internal/syncer"
	"vaultkeeper/internal/transfer"
)

// Authority is everything the engine asks of the remote authority.
type Authority interface {
	syncer.Fetcher
	transfer.Authority
	mutation.Authority
}

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Authority Authority
	Manifest  manifest.Lookup
	// Journal may be nil, in which case operations are not recorded.
	Journal *journal.Store
	// Cache may be nil to disable warm starts.
	Cache  *snapcache.Cache
	Sync   syncer.Options
	Limits transfer.Limits
	// RefreshAfterOperation asks the syncer for an early fetch after
	// transfers and loadout runs.
	RefreshAfterOperation bool
	Logger                *slog.Logger
}

// Engine is the facade the daemon and tests drive.
type Engine struct {
	store     *store.Store
	syncer    *syncer.Syncer
	transfers *transfer.Orchestrator
	mutator   *mutation.Mutator
	loadouts  *loadout.Coordinator
	journal   *journal.Store
	defs      manifest.Lookup
	limits    transfer.Limits
	refresh   bool
	events    *EventHub
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	stopFwd func()
	fwdDone chan struct{}
}

// New wires an engine. Call Start before serving requests.
func New(deps Deps) (*Engine, error) {
	if deps.Authority == nil {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "new", "remote authority is required", nil)
	}
	if deps.Manifest == nil {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "new", "manifest is required", nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	st := store.New(logger)
	sopts := deps.Sync
	sopts.Cache = deps.Cache
	poller := syncer.New(st, deps.Authority, sopts, logger)
	transfers := transfer.New(st, deps.Authority, deps.Manifest, logger)
	mutator := mutation.New(st, deps.Authority, poller, deps.Manifest, logger)

	return &Engine{
		store:     st,
		syncer:    poller,
		transfers: transfers,
		mutator:   mutator,
		loadouts:  loadout.New(st, transfers, mutator, deps.Manifest, deps.Limits, logger),
		journal:   deps.Journal,
		defs:      deps.Manifest,
		limits:    deps.Limits,
		refresh:   deps.RefreshAfterOperation,
		events:    NewEventHub(512),
		logger:    logging.NewComponentLogger(logger, "engine"),
	}, nil
}

// Start closes out interrupted journal rows, loads the snapshot cache, and
// begins polling. It returns once the poll loop is running; the first fetch
// happens in the background.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return store.ErrDisposed
	}
	if e.started {
		return errors.New("engine already started")
	}

	if e.journal != nil {
		if n, err := e.journal.ResetPending(ctx); err != nil {
			logging.WarnWithContext(e.logger, "journal reset failed", "journal_reset_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the journal database in the state directory"),
			)
		} else if n > 0 {
			e.logger.Info("closed interrupted operations",
				logging.String(logging.FieldEventType, "journal_reset"),
				logging.Int64("count", n),
			)
		}
	}

	e.syncer.WarmStart()
	e.startForwarding()
	if err := e.syncer.Start(ctx); err != nil {
		e.stopForwarding()
		return err
	}
	e.started = true
	return nil
}

// Close stops polling and disposes the store. It is safe to call twice.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.syncer.Stop()
	e.stopForwarding()
	e.store.Dispose()
	return nil
}

// startForwarding republishes store changes on the event hub.
func (e *Engine) startForwarding() {
	changes, cancel := e.store.Subscribe(64)
	done := make(chan struct{})
	e.stopFwd = cancel
	e.fwdDone = done
	go func() {
		defer close(done)
		for change := range changes {
			c := change
			e.events.Publish(Event{Type: EventChange, Change: &c})
		}
	}()
}

func (e *Engine) stopForwarding() {
	if e.stopFwd == nil {
		return
	}
	e.stopFwd()
	<-e.fwdDone
	e.stopFwd = nil
}

// Store exposes the canonical store for read-only views.
func (e *Engine) Store() *store.Store { return e.store }

// Events exposes the event hub.
func (e *Engine) Events() *EventHub { return e.events }

// Manifest returns the definition lookup the engine was built with.
func (e *Engine) Manifest() manifest.Lookup { return e.defs }

// ApplySnapshot merges an externally obtained snapshot.
func (e *Engine) ApplySnapshot(snap inventory.Snapshot) (store.Result, error) {
	return e.store.Apply(snap)
}

// View returns the current read-only state.
func (e *Engine) View() store.View { return e.store.View() }

// Items returns every item grouped by location.
func (e *Engine) Items() map[inventory.Location][]inventory.Item {
	return e.store.View().AllItems()
}

// InFlight returns the instances currently moving.
func (e *Engine) InFlight() map[string]store.Transit {
	return e.store.View().InFlight()
}

// Subscribe delivers store changes. Slow subscribers drop changes.
func (e *Engine) Subscribe(buffer int) (<-chan store.Change, func()) {
	return e.store.Subscribe(buffer)
}
