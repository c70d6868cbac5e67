package services

import "context"

type contextKey string

const (
	operationIDKey contextKey = "operation_id"
	instanceIDKey  contextKey = "instance_id"
	characterIDKey contextKey = "character_id"
	sessionIDKey   contextKey = "session_id"
)

// WithOperationID annotates context with the journal operation identifier.
func WithOperationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, operationIDKey, id)
}

// OperationIDFromContext extracts the operation identifier if present.
func OperationIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, operationIDKey)
}

// WithInstanceID annotates context with the item instance being acted on.
func WithInstanceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, instanceIDKey, id)
}

// InstanceIDFromContext returns the item instance id if present.
func InstanceIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, instanceIDKey)
}

// WithCharacterID annotates context with the character the request targets.
func WithCharacterID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, characterIDKey, id)
}

// CharacterIDFromContext returns the character id if present.
func CharacterIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, characterIDKey)
}

// WithSessionID annotates context with the transfer session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the transfer session id if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, sessionIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
