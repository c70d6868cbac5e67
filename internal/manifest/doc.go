// Package manifest is the read-only item definition dictionary.
//
// Definitions are loaded once from a SQLite manifest database into memory and
// served synchronously through Lookup. Static is the in-memory form; Open
// loads one from disk and Build writes one, which is how fixtures and the
// `manifest import` path produce a database.
package manifest
