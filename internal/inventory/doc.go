// Package inventory defines the item model shared by the canonical store, the
// transfer orchestrator, and the remote authority boundary.
//
// Items carry their location as a closed Location variant (vault, character
// inventory, or character equipment). Per-instance data lives in ItemInstance,
// whose sockets are keyed by their stable socket index rather than by slice
// position. Snapshot is the validated, normalized form of an authoritative
// profile read; anything that fails Validate never reaches the store.
//
// The package is pure data: it performs no I/O and holds no locks.
package inventory
