// Package syncer keeps the canonical store fed with authoritative snapshots.
//
// A Syncer polls the remote profile on a fixed interval and backs off
// exponentially while fetches fail. Engine operations can ask for an early
// refresh, and rollbacks force an immediate resync; concurrent forced resyncs
// share one fetch. Accepted snapshots are written through to the snapshot
// cache so the next daemon start is warm.
package syncer
