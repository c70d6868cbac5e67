// Package daemon runs the long-lived vaultkeeper process.
//
// It takes the single-instance flock, starts the engine (journal recovery,
// snapshot warm start and the poll loop), and serves the HTTP API including
// the long-poll and websocket event feeds. The IPC server in package ipc
// drives the same InventoryService so both transports agree.
//
// Orchestration only: inventory semantics belong to the engine and the
// domain packages beneath it.
package daemon
