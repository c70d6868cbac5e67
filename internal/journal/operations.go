package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vaultkeeper/internal/services"
)

// timeLayout is fixed width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const entryColumns = "id, kind, status, instance_id, character_id, target, detail_json, error_kind, error_message, created_at, updated_at, duration_ms"

// Begin records a new pending operation and returns it.
func (s *Store) Begin(ctx context.Context, kind Kind, subject Subject) (*Entry, error) {
	if strings.TrimSpace(string(kind)) == "" {
		return nil, services.Wrap(services.ErrValidation, "journal", "begin", "operation kind is required", nil)
	}
	id := uuid.NewString()
	timestamp := s.now().UTC().Format(timeLayout)
	if _, err := s.exec(ctx,
		`INSERT INTO operations (id, kind, status, instance_id, character_id, target, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, kind, StatusPending,
		nullableString(subject.InstanceID),
		nullableString(subject.CharacterID),
		nullableString(subject.Target),
		timestamp, timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert operation: %w", err)
	}
	return s.Get(ctx, id)
}

// Succeed closes a pending operation. detail, when non-nil, is stored as JSON.
func (s *Store) Succeed(ctx context.Context, id string, detail any) error {
	raw, err := marshalDetail(detail)
	if err != nil {
		return err
	}
	return s.finish(ctx, id, StatusSucceeded, raw, "", "")
}

// Fail closes a pending operation with the classified cause.
func (s *Store) Fail(ctx context.Context, id string, cause error, detail any) error {
	raw, err := marshalDetail(detail)
	if err != nil {
		return err
	}
	kind, message := "error", ""
	if cause != nil {
		kind = services.Classify(cause)
		message = cause.Error()
	}
	return s.finish(ctx, id, StatusFailed, raw, kind, message)
}

func (s *Store) finish(ctx context.Context, id string, status Status, detail sql.NullString, errKind, errMessage string) error {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry.Done() {
		return services.Wrap(services.ErrConflict, "journal", "finish",
			fmt.Sprintf("operation %s already %s", id, entry.Status), nil)
	}
	now := s.now().UTC()
	elapsed := now.Sub(entry.CreatedAt)
	if _, err := s.exec(ctx,
		`UPDATE operations
         SET status = ?, detail_json = ?, error_kind = ?, error_message = ?, updated_at = ?, duration_ms = ?
         WHERE id = ? AND status = ?`,
		status, detail,
		nullableString(errKind), nullableString(errMessage),
		now.Format(timeLayout), elapsed.Milliseconds(),
		id, StatusPending,
	); err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	return nil
}

// Get returns the operation with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM operations WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "journal", "get", "no operation "+id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return entry, nil
}

// List returns operations newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.InstanceID != "" {
		clauses = append(clauses, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	query := `SELECT ` + entryColumns + ` FROM operations`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Stats returns a count of operations grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM operations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ResetPending fails every row still pending. Called once at daemon start,
// before any new operation can begin.
func (s *Store) ResetPending(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE operations SET status = ?, error_kind = ?, error_message = ?, updated_at = ?
         WHERE status = ?`,
		StatusFailed, ErrorKindInterrupted, "daemon stopped before the operation finished",
		s.now().UTC().Format(timeLayout), StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("reset pending operations: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes finished operations created before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`DELETE FROM operations WHERE status != ? AND created_at < ?`,
		StatusPending, cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune operations: %w", err)
	}
	return res.RowsAffected()
}

func marshalDetail(detail any) (sql.NullString, error) {
	if detail == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode operation detail: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry       Entry
		instanceID  sql.NullString
		characterID sql.NullString
		target      sql.NullString
		detail      sql.NullString
		errKind     sql.NullString
		errMessage  sql.NullString
		createdRaw  string
		updatedRaw  string
		durationMS  int64
	)
	if err := scanner.Scan(
		&entry.ID, &entry.Kind, &entry.Status,
		&instanceID, &characterID, &target, &detail,
		&errKind, &errMessage,
		&createdRaw, &updatedRaw, &durationMS,
	); err != nil {
		return nil, err
	}
	entry.InstanceID = instanceID.String
	entry.CharacterID = characterID.String
	entry.Target = target.String
	if detail.Valid {
		entry.Detail = json.RawMessage(detail.String)
	}
	entry.ErrorKind = errKind.String
	entry.ErrorMessage = errMessage.String
	entry.CreatedAt = parseTime(createdRaw)
	entry.UpdatedAt = parseTime(updatedRaw)
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	return &entry, nil
}

func parseTime(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
