package journal

import (
	"encoding/json"
	"time"
)

// Kind names the engine operation a row records.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindSocket   Kind = "socket"
	KindLock     Kind = "lock"
	KindLoadout  Kind = "loadout"
	KindResync   Kind = "resync"
)

// Status is the lifecycle state of a journal row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrorKindInterrupted marks rows left pending by a daemon that stopped
// mid-operation.
const ErrorKindInterrupted = "interrupted"

// Subject identifies what an operation acts on. Empty fields are stored NULL.
type Subject struct {
	InstanceID  string
	CharacterID string
	Target      string
}

// Entry is one journal row.
type Entry struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	Status       Status          `json:"status"`
	InstanceID   string          `json:"instance_id,omitempty"`
	CharacterID  string          `json:"character_id,omitempty"`
	Target       string          `json:"target,omitempty"`
	Detail       json.RawMessage `json:"detail,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Duration     time.Duration   `json:"duration"`
}

// Done reports whether the operation reached a terminal status.
func (e Entry) Done() bool {
	return e.Status == StatusSucceeded || e.Status == StatusFailed
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Kind       Kind
	Status     Status
	InstanceID string
	Limit      int
}

const defaultListLimit = 50
