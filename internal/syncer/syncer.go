package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/services"
	"vaultkeeper/internal/snapcache"
	"vaultkeeper/internal/store"
)

// Fetcher reads the full profile from the remote authority.
type Fetcher interface {
	FetchProfile(ctx context.Context) (inventory.Snapshot, error)
}

// Options tunes the poll loop. Zero durations take defaults.
type Options struct {
	PollInterval       time.Duration
	ErrorRetryInterval time.Duration
	MaxBackoff         time.Duration
	// Cache receives every accepted snapshot. Nil disables write-through.
	Cache *snapcache.Cache
}

const (
	defaultPollInterval  = 30 * time.Second
	defaultErrorInterval = 5 * time.Second
	defaultMaxBackoff    = 5 * time.Minute
)

// Status is a point-in-time summary of sync health.
type Status struct {
	Running             bool      `json:"running"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success"`
	LastResult          string    `json:"last_result,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Fetches             int       `json:"fetches"`
}

// Syncer owns the fetch-and-apply cycle for one store.
type Syncer struct {
	store   *store.Store
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	group   singleflight.Group
	refresh chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	status  Status
}

// New constructs a Syncer. Call Start to begin polling.
func New(st *store.Store, fetcher Fetcher, opts Options, logger *slog.Logger) *Syncer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ErrorRetryInterval <= 0 {
		opts.ErrorRetryInterval = defaultErrorInterval
	}
	if opts.MaxBackoff < opts.ErrorRetryInterval {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.ErrorRetryInterval)
	}
	return &Syncer{
		store:   st,
		fetcher: fetcher,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "syncer"),
		tracer:  otel.Tracer("vaultkeeper/syncer"),
		refresh: make(chan struct{}, 1),
	}
}

// WarmStart loads the cached snapshot into the store. It reports whether a
// cached snapshot was applied. A broken cache is logged and skipped.
func (s *Syncer) WarmStart() bool {
	if s.opts.Cache == nil {
		return false
	}
	snap, header, ok, err := s.opts.Cache.Load()
	if err != nil {
		logging.WarnWithContext(s.logger, "snapshot cache unreadable", "snapshot_cache_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the cache will be rewritten after the next successful sync"),
			logging.String(logging.FieldImpact, "inventory stays empty until the first profile fetch"),
		)
		return false
	}
	if !ok {
		return false
	}
	result, err := s.store.Apply(snap)
	if err != nil {
		logging.WarnWithContext(s.logger, "cached snapshot rejected", "snapshot_cache_rejected",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the snapshot cache if this repeats"),
		)
		return false
	}
	s.logger.Info("warm start from snapshot cache",
		logging.String(logging.FieldEventType, "snapshot_cache_loaded"),
		logging.String(logging.FieldResult, result.String()),
		logging.Int("item_count", header.Items),
		logging.Time("minted", header.Minted),
	)
	return result == store.Accepted
}

// SyncOnce fetches the profile and applies it.
func (s *Syncer) SyncOnce(ctx context.Context) (store.Result, error) {
	ctx, span := s.tracer.Start(ctx, "sync")
	defer span.End()

	s.mu.Lock()
	s.status.LastAttempt = time.Now()
	s.status.Fetches++
	s.mu.Unlock()

	result, err := s.fetchAndApply(ctx)
	s.record(result, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
		return 0, err
	}
	span.SetAttributes(attribute.String("sync.result", result.String()))
	return result, nil
}

func (s *Syncer) fetchAndApply(ctx context.Context) (store.Result, error) {
	snap, err := s.fetcher.FetchProfile(ctx)
	if err != nil {
		return 0, err
	}
	result, err := s.store.Apply(snap)
	if err != nil {
		return 0, err
	}
	if result == store.Accepted && s.opts.Cache != nil {
		if err := s.opts.Cache.Save(snap); err != nil {
			logging.WarnWithContext(s.logger, "snapshot cache write failed", "snapshot_cache_save_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
				logging.String(logging.FieldImpact, "next start will not be warm"),
			)
		}
	}
	return result, nil
}

func (s *Syncer) record(result store.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status.LastError = err.Error()
		s.status.ConsecutiveFailures++
		return
	}
	s.status.LastError = ""
	s.status.ConsecutiveFailures = 0
	s.status.LastSuccess = time.Now()
	s.status.LastResult = result.String()
}

// ForceResync fetches immediately. Callers that arrive while a forced resync
// is already running share its result.
func (s *Syncer) ForceResync(ctx context.Context) error {
	_, err, shared := s.group.Do("resync", func() (any, error) {
		return s.SyncOnce(ctx)
	})
	if shared {
		s.logger.Debug("forced resync coalesced", logging.String(logging.FieldEventType, "resync_coalesced"))
	}
	return err
}

// RequestRefresh wakes the poll loop early. It never blocks; requests made
// while one is already queued collapse into it.
func (s *Syncer) RequestRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Status returns the latest sync information.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start begins the poll loop.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("syncer already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.status.Running = true
	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

// Stop terminates the poll loop and waits for it to exit.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.status.Running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Syncer) run(ctx context.Context) {
	defer s.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.ErrorRetryInterval
	bo.MaxInterval = s.opts.MaxBackoff

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.refresh:
		}

		delay := s.opts.PollInterval
		if _, err := s.SyncOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			delay = bo.NextBackOff()
			s.logFailure(err, delay)
		} else {
			bo.Reset()
		}
		timer.Reset(delay)
	}
}

func (s *Syncer) logFailure(err error, retryIn time.Duration) {
	hint := "check network connectivity; polling continues with backoff"
	if !services.Retryable(err) {
		hint = "check remote credentials and membership settings"
	}
	if errors.Is(err, store.ErrMalformedSnapshot) {
		hint = "the remote payload failed validation; the store was left unchanged"
	}
	logging.WarnWithContext(s.logger, "profile sync failed", "sync_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "inventory may be out of date"),
		logging.Duration("retry_in", retryIn),
	)
}
