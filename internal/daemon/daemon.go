package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/config"
	"vaultkeeper/internal/engine"
	"vaultkeeper/internal/journal"
	"vaultkeeper/internal/logging"
)

// Daemon owns the engine lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *engine.Engine
	journal *journal.Store
	service *api.InventoryService

	lockPath string
	lock     *flock.Flock
	apiSrv   *apiServer

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// New wires a daemon around an unstarted engine. The journal may be nil.
func New(cfg *config.Config, eng *engine.Engine, jr *journal.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || eng == nil {
		return nil, errors.New("daemon requires config and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		engine:   eng,
		journal:  jr,
		service:  api.NewInventoryService(eng),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.apiSrv = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the lock, starts the engine, and opens the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vaultkeeper daemon is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.engine.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start engine: %w", err)
	}
	if err := d.apiSrv.start(runCtx); err != nil {
		cancel()
		_ = d.engine.Close()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("vaultkeeper daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
	)
	return nil
}

// Stop shuts the API and the engine down and releases the lock. The engine
// cannot be restarted afterwards.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.apiSrv.stop()
	if err := d.engine.Close(); err != nil {
		d.logger.Warn("engine close failed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("vaultkeeper daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and closes the journal.
func (d *Daemon) Close() error {
	d.Stop()
	_ = d.engine.Close()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not run.
func (d *Daemon) Running() bool { return d.running.Load() }

// Service exposes the operation surface shared by both transports.
func (d *Daemon) Service() *api.InventoryService { return d.service }

// Engine exposes the underlying engine.
func (d *Daemon) Engine() *engine.Engine { return d.engine }

// APIAddress returns the bound HTTP address, or "" when the API is off.
func (d *Daemon) APIAddress() string { return d.apiSrv.address() }

// Status returns engine diagnostics plus process information.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := d.service.Status(ctx)
	status.Running = d.running.Load()
	status.PID = os.Getpid()
	status.LockFilePath = d.lockPath
	if d.journal != nil {
		status.JournalPath = d.journal.Path()
	}
	return status
}
