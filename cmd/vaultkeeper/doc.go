// Package main hosts the vaultkeeper CLI and the daemon entrypoint.
//
// The cobra command tree turns terminal invocations into IPC calls against a
// running daemon: item listings, transfers, socket and lock changes, loadout
// runs and validation, forced resyncs, and journal history. The daemon
// command itself runs the long-lived process in the foreground.
//
// Keep this package declarative; behaviour lives in the internal packages.
package main
