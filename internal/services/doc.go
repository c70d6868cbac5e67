// Package services defines shared utilities consumed by the engine
// components and the remote integrations.
//
// Key responsibilities:
//   - Context helpers that stamp operation IDs, instance IDs, and character
//     IDs for logging and tracing.
//   - Structured error markers plus the Wrap helper, and Classify, which turns
//     any engine error into the stable kind string recorded in the journal.
//
// Use these helpers when wiring new engine logic so failure reporting stays
// uniform across transfers, socket mutations, and loadout runs.
package services
