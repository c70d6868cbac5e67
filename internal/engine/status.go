package engine

import (
	"context"
	"time"

	"vaultkeeper/internal/journal"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/syncer"
)

// Status summarizes engine health for the status command and API.
type Status struct {
	StoreVersion uint64                 `json:"store_version"`
	Guard        time.Time              `json:"guard"`
	Characters   int                    `json:"characters"`
	Items        int                    `json:"items"`
	InFlight     int                    `json:"in_flight"`
	Definitions  int                    `json:"definitions"`
	Sync         syncer.Status          `json:"sync"`
	Journal      map[journal.Status]int `json:"journal,omitempty"`
	LastEvent    uint64                 `json:"last_event"`
}

// Status returns current engine diagnostics.
func (e *Engine) Status(ctx context.Context) Status {
	view := e.store.View()
	status := Status{
		StoreVersion: view.Version(),
		Guard:        view.Guard(),
		Characters:   len(view.Characters()),
		Items:        view.ItemCount(),
		InFlight:     len(view.InFlight()),
		Sync:         e.syncer.Status(),
		LastEvent:    e.events.Latest(),
	}
	if counter, ok := e.defs.(interface{ Len() int }); ok {
		status.Definitions = counter.Len()
	}
	if e.journal != nil {
		stats, err := e.journal.Stats(ctx)
		if err != nil {
			e.logger.Warn("failed to read journal stats", logging.Error(err))
		}
		status.Journal = stats
	}
	return status
}

// History lists journal rows newest first. It returns nothing when the
// engine runs without a journal.
func (e *Engine) History(ctx context.Context, filter journal.Filter) ([]journal.Entry, error) {
	if e.journal == nil {
		return nil, nil
	}
	return e.journal.List(ctx, filter)
}
