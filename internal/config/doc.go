// Package config loads, normalizes, and validates vaultkeeper's TOML
// configuration.
//
// Load decodes the file onto Default(), fills blank secrets from the
// environment, expands paths, and validates the result. CreateSample writes
// the embedded sample_config.toml used by `vaultkeeper config init`.
package config
