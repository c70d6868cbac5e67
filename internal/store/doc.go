// Package store holds the canonical view of the item collection.
//
// A Store keeps one immutable state value behind an atomic pointer. Readers
// take a View and never observe a half-applied change; writers serialize on a
// mutex, derive a new state with copy-on-write, and publish it in one step.
//
// Snapshots pass through Apply, which discards anything not strictly newer
// than the staleness guard and otherwise runs the pure merge in merge.go. The
// merge keeps in-flight instances visible at their target location until a
// snapshot confirms arrival. Point mutations (instance patches, socket plugs,
// state bits) and the in-flight registry are the only other ways to change
// state.
package store
