package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vaultkeeper/internal/config"
	"vaultkeeper/internal/daemon"
	"vaultkeeper/internal/engine"
	"vaultkeeper/internal/ipc"
	"vaultkeeper/internal/journal"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/manifest"
	"vaultkeeper/internal/remote"
	"vaultkeeper/internal/snapcache"
	"vaultkeeper/internal/syncer"
	"vaultkeeper/internal/telemetry"
	"vaultkeeper/internal/transfer"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Quiet drops stdout logging; the log file is still written.
	Quiet bool
}

// Run starts the daemon and blocks until ctx ends or the process is signalled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("run_id", uuid.NewString()))

	shutdownTelemetry, err := telemetry.Setup(signalCtx, cfg.Telemetry)
	if err != nil {
		logging.WarnWithContext(logger, "telemetry disabled", "telemetry_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check telemetry.endpoint"),
		)
	}
	defer func() {
		if shutdownTelemetry == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pidPath := filepath.Join(cfg.Paths.StateDir, "vaultkeeper.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	defs, jr, err := openStores(signalCtx, cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "startup failed", "daemon_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check manifest.path and the state directory"),
		)
		return err
	}
	logger.Info("manifest loaded",
		logging.String(logging.FieldEventType, "manifest_loaded"),
		logging.Int("definitions", defs.Len()),
		logging.String("path", cfg.Manifest.Path),
	)

	eng, err := engine.New(engine.Deps{
		Authority: remote.NewFromConfig(cfg, logger),
		Manifest:  defs,
		Journal:   jr,
		Cache:     newCache(cfg, logger),
		Sync: syncer.Options{
			PollInterval:       cfg.PollInterval(),
			ErrorRetryInterval: cfg.ErrorRetryInterval(),
			MaxBackoff:         cfg.MaxBackoff(),
		},
		Limits: transfer.Limits{
			MaxHops:  cfg.Transfer.MaxHopsPerSession,
			MaxMoves: cfg.Transfer.MaxMovesPerSession,
		},
		RefreshAfterOperation: cfg.Sync.RefreshAfterOperation,
		Logger:                logger,
	})
	if err != nil {
		_ = jr.Close()
		return fmt.Errorf("create engine: %w", err)
	}

	d, err := daemon.New(cfg, eng, jr, logger)
	if err != nil {
		_ = eng.Close()
		_ = jr.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other daemon or remove a stale lock file"),
		)
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("vaultkeeper daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// openStores loads the manifest and opens the journal concurrently; the
// manifest load dominates startup on a cold disk.
func openStores(ctx context.Context, cfg *config.Config) (*manifest.Static, *journal.Store, error) {
	var (
		defs *manifest.Static
		jr   *journal.Store
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		defs, err = manifest.Open(gctx, cfg.Manifest.Path)
		return err
	})
	g.Go(func() error {
		var err error
		jr, err = journal.Open(cfg)
		return err
	})
	if err := g.Wait(); err != nil {
		if jr != nil {
			_ = jr.Close()
		}
		return nil, nil, err
	}
	return defs, jr, nil
}

func newCache(cfg *config.Config, logger *slog.Logger) *snapcache.Cache {
	if !cfg.Sync.SnapshotCache {
		return nil
	}
	return snapcache.New(cfg.SnapshotCachePath(), logger)
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	outputs := []string{filepath.Join(cfg.Paths.LogDir, "vaultkeeper.log")}
	if !opts.Quiet {
		outputs = append([]string{"stdout"}, outputs...)
	}
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Development: opts.Development,
	})
}

func writePIDFile(path string) error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
