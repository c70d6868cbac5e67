package remote

import (
	"fmt"
	"net/http"
	"time"

	"vaultkeeper/internal/services"
)

// Kind classifies a remote failure.
type Kind string

const (
	KindAuth         Kind = "auth"
	KindMaintenance  Kind = "maintenance"
	KindRateLimited  Kind = "rate_limited"
	KindInvalidState Kind = "invalid_state"
	KindNotFound     Kind = "not_found"
	KindTransient    Kind = "transient"
	KindMalformed    Kind = "malformed"
	KindRejected     Kind = "rejected"
)

// Platform error codes the engine distinguishes. Everything else non-success
// maps to KindRejected.
const (
	codeSuccess           = 1
	codeSystemDisabled    = 5
	codeWebAuthRequired   = 99
	codeThrottleLimit     = 31
	codeThrottleEndpoint  = 36
	codeThrottleMomentary = 51
	codeAuthCodeInvalid   = 2106
	codeAccessTokenExpire = 2111
	codeItemNotFound      = 1623
	codeActionAtLocation  = 1634
	codeNoRoom            = 1641
	codeUniqueEquip       = 1642
	codeSocketNotAllowed  = 1671
	codeActivityRestricts = 1672
)

func kindForCode(code int) Kind {
	switch code {
	case codeSystemDisabled:
		return KindMaintenance
	case codeWebAuthRequired, codeAuthCodeInvalid, codeAccessTokenExpire:
		return KindAuth
	case codeThrottleLimit, codeThrottleEndpoint, codeThrottleMomentary:
		return KindRateLimited
	case codeItemNotFound:
		return KindNotFound
	case codeActionAtLocation, codeNoRoom, codeUniqueEquip, codeSocketNotAllowed, codeActivityRestricts:
		return KindInvalidState
	default:
		return KindRejected
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusServiceUnavailable:
		return KindMaintenance
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindTransient
	default:
		return KindRejected
	}
}

// Error is a failed remote call.
type Error struct {
	Op         string
	Kind       Kind
	Code       int
	Status     string
	Message    string
	HTTPStatus int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("remote %s: %s", e.Op, e.Kind)
	if e.Status != "" {
		msg += fmt.Sprintf(" (%s %d)", e.Status, e.Code)
	} else if e.HTTPStatus != 0 {
		msg += fmt.Sprintf(" (http %d)", e.HTTPStatus)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) ErrorKind() string { return string(e.Kind) }

// Unwrap exposes both the cause and the services marker matching the kind.
func (e *Error) Unwrap() []error {
	out := []error{marker(e.Kind)}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func marker(kind Kind) error {
	switch kind {
	case KindTransient, KindRateLimited, KindMaintenance:
		return services.ErrTransient
	case KindNotFound:
		return services.ErrNotFound
	case KindMalformed:
		return services.ErrValidation
	default:
		return services.ErrRemote
	}
}
