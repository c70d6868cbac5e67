// Package engine is the application facade over the inventory engine.
//
// An Engine owns one canonical store and wires the transfer orchestrator,
// socket mutator, loadout coordinator, and syncer around it. Every user
// operation is recorded in the journal and, when configured, followed by a
// coalesced profile refresh. Store changes and loadout progress are
// republished on an in-memory event hub that the daemon streams to clients.
package engine
