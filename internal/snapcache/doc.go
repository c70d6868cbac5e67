// Package snapcache persists the last accepted snapshot so the daemon can
// show a populated store before its first profile fetch completes.
//
// The file is zstd-compressed: one JSON header line for cheap inspection,
// then the gob-encoded snapshot. A cache written by an older format is
// ignored rather than migrated.
package snapcache
