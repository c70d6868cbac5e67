package api

import (
	"net/http"

	"vaultkeeper/internal/services"
)

// Error is a failed operation in transport form.
type Error struct {
	Kind      string `json:"kind"`
	Message   string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func (e *Error) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return e.Message + " [" + e.Kind + "]"
}

// ErrorKind lets a transported error classify like the original.
func (e *Error) ErrorKind() string { return e.Kind }

// FromError classifies err for transport. Nil yields nil.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:      services.Classify(err),
		Message:   err.Error(),
		Retryable: services.Retryable(err),
	}
}

// HTTPStatus maps an error kind onto a response status.
func HTTPStatus(kind string) int {
	switch kind {
	case "validation", "invalid_state", "malformed":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict", "in_flight", "pending", "session_limit":
		return http.StatusConflict
	case "missing", "partial_equip", "no_route":
		return http.StatusUnprocessableEntity
	case "transfer_failed", "socket_mutation_failed", "rejected", "remote", "auth":
		return http.StatusBadGateway
	case "transient", "maintenance", "rate_limited":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the body of a failed HTTP request. Result carries the
// partial outcome when the operation produced one.
type ErrorResponse struct {
	*Error
	Result any `json:"result,omitempty"`
}
