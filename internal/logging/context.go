package logging

import (
	"context"
	"log/slog"

	"vaultkeeper/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (transfer_failed, snapshot_discarded, ...).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldOperationID is the journal operation identifier.
	FieldOperationID = "operation_id"
	// FieldInstanceID is the item instance identifier.
	FieldInstanceID = "instance_id"
	// FieldCharacterID is the character identifier.
	FieldCharacterID = "character_id"
	// FieldSessionID is the transfer session identifier.
	FieldSessionID = "session_id"
	FieldTarget    = "target"
	FieldResult    = "result"
	// FieldProgressStep and FieldProgressPercent carry loadout progress.
	FieldProgressStep    = "progress_step"
	FieldProgressPercent = "progress_percent"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.OperationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldOperationID, id))
	}
	if id, ok := services.InstanceIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldInstanceID, id))
	}
	if id, ok := services.CharacterIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCharacterID, id))
	}
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
