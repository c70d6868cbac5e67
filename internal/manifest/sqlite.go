package manifest

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

var (
	// ErrSchemaMismatch indicates the manifest was written by another version.
	ErrSchemaMismatch = errors.New("manifest schema version mismatch")
	ErrMissing        = errors.New("manifest database not found")
)

// Hashes are stored as signed 32-bit ids, the way the upstream manifest keys
// its tables, and converted back on load.
func toID(hash uint32) int64 { return int64(int32(hash)) }

func fromID(id int64) uint32 { return uint32(int32(id)) }

// Open loads the manifest database at path into memory.
func Open(ctx context.Context, path string) (*Static, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("stat manifest: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer db.Close()

	var version int
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return nil, fmt.Errorf("read manifest schema version: %w", err)
	}
	if version != schemaVersion {
		return nil, fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}

	defs, err := loadRows[Definition](ctx, db, "SELECT id, json FROM item_definitions")
	if err != nil {
		return nil, fmt.Errorf("load item definitions: %w", err)
	}
	plugSets, err := loadRows[PlugSet](ctx, db, "SELECT id, json FROM plug_set_definitions")
	if err != nil {
		return nil, fmt.Errorf("load plug sets: %w", err)
	}
	return NewStatic(defs, plugSets), nil
}

func loadRows[T any](ctx context.Context, db *sql.DB, query string) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var value T
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", fromID(id), err)
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

// Build writes definitions and plug sets to a new manifest database at path,
// replacing any existing file.
func Build(ctx context.Context, path string, defs []Definition, plugSets []PlugSet) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create manifest directory: %w", err)
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old manifest: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin manifest tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create manifest schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record manifest schema version: %w", err)
	}
	for _, def := range defs {
		if err := insertJSON(ctx, tx, "item_definitions", toID(def.Hash), def); err != nil {
			return err
		}
	}
	for _, ps := range plugSets {
		if err := insertJSON(ctx, tx, "plug_set_definitions", toID(ps.Hash), ps); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}

func insertJSON(ctx context.Context, tx *sql.Tx, table string, id int64, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s row %d: %w", table, fromID(id), err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO "+table+" (id, json) VALUES (?, ?)", id, string(raw)); err != nil {
		return fmt.Errorf("insert %s row %d: %w", table, fromID(id), err)
	}
	return nil
}
