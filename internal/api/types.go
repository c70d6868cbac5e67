package api

import "vaultkeeper/internal/engine"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Item describes one stored item.
type Item struct {
	InstanceID     string `json:"instanceId,omitempty"`
	ItemHash       uint32 `json:"itemHash"`
	Name           string `json:"name,omitempty"`
	ItemType       string `json:"itemType,omitempty"`
	Quantity       int    `json:"quantity"`
	Location       string `json:"location"`
	Locked         bool   `json:"locked"`
	Power          int    `json:"power,omitempty"`
	InFlight       bool   `json:"inFlight"`
	InFlightTarget string `json:"inFlightTarget,omitempty"`
}

// ItemsQuery narrows an item listing. Empty fields match everything.
type ItemsQuery struct {
	Location string `json:"location,omitempty"`
	Name     string `json:"name,omitempty"`
	ItemHash uint32 `json:"itemHash,omitempty"`
	InFlight bool   `json:"inFlight,omitempty"`
}

// ItemsResponse is a consistent listing taken from one store view.
type ItemsResponse struct {
	Version uint64 `json:"version"`
	Guard   string `json:"guard,omitempty"`
	Items   []Item `json:"items"`
}

// Socket describes one socket of an instance.
type Socket struct {
	Index    int    `json:"index"`
	PlugHash uint32 `json:"plugHash"`
	PlugName string `json:"plugName,omitempty"`
	Category string `json:"category,omitempty"`
}

// ItemDetail is an item with its instance data.
type ItemDetail struct {
	Item
	Sockets []Socket       `json:"sockets,omitempty"`
	Stats   map[uint32]int `json:"stats,omitempty"`
}

// TransferRequest moves one instance.
type TransferRequest struct {
	InstanceID string `json:"instanceId"`
	ItemHash   uint32 `json:"itemHash,omitempty"`
	Target     string `json:"target"`
	Equip      bool   `json:"equip,omitempty"`
}

// TransferResponse reports an accepted transfer.
type TransferResponse struct {
	OperationID string   `json:"operationId,omitempty"`
	InstanceID  string   `json:"instanceId"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Hops        []string `json:"hops"`
}

// SocketRequest inserts a plug. Plug names are resolved through the manifest
// when PlugHash is zero.
type SocketRequest struct {
	InstanceID  string `json:"instanceId"`
	SocketIndex int    `json:"socketIndex"`
	PlugHash    uint32 `json:"plugHash,omitempty"`
	Plug        string `json:"plug,omitempty"`
}

// SocketResponse reports a settled socket change.
type SocketResponse struct {
	OperationID string `json:"operationId,omitempty"`
	InstanceID  string `json:"instanceId"`
	SocketIndex int    `json:"socketIndex"`
	Previous    uint32 `json:"previous"`
	Current     uint32 `json:"current"`
	Changed     bool   `json:"changed"`
}

// LockRequest locks or unlocks an instance.
type LockRequest struct {
	InstanceID string `json:"instanceId"`
	Locked     bool   `json:"locked"`
}

// LockResponse reports whether the lock state changed.
type LockResponse struct {
	InstanceID string `json:"instanceId"`
	Locked     bool   `json:"locked"`
	Changed    bool   `json:"changed"`
}

// LoadoutRequest runs or validates a YAML loadout for a character.
type LoadoutRequest struct {
	Definition   string `json:"definition"`
	CharacterID  string `json:"characterId"`
	ValidateOnly bool   `json:"validateOnly,omitempty"`
}

// LoadoutFailure is one component that could not be applied.
type LoadoutFailure struct {
	Component string `json:"component"`
	Phase     string `json:"phase"`
	Reason    string `json:"reason"`
}

// ResolvedComponent is a loadout component matched to an owned instance.
type ResolvedComponent struct {
	Component  string `json:"component"`
	InstanceID string `json:"instanceId"`
	ItemHash   uint32 `json:"itemHash"`
	Location   string `json:"location"`
}

// LoadoutResponse is the itemized result of a run or validation.
type LoadoutResponse struct {
	OperationID string              `json:"operationId,omitempty"`
	Loadout     string              `json:"loadout"`
	CharacterID string              `json:"characterId"`
	Success     bool                `json:"success"`
	Equipped    []string            `json:"equipped"`
	Failed      []LoadoutFailure    `json:"failed"`
	Missing     []string            `json:"missing"`
	Resolved    []ResolvedComponent `json:"resolved,omitempty"`
}

// ResyncResponse reports the store after a forced resync.
type ResyncResponse struct {
	Version uint64 `json:"version"`
	Guard   string `json:"guard,omitempty"`
	Items   int    `json:"items"`
}

// HistoryQuery filters the operation journal.
type HistoryQuery struct {
	Kind       string `json:"kind,omitempty"`
	Status     string `json:"status,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// HistoryEntry is one journal row.
type HistoryEntry struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	InstanceID   string `json:"instanceId,omitempty"`
	CharacterID  string `json:"characterId,omitempty"`
	Target       string `json:"target,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt"`
	DurationMS   int64  `json:"durationMs"`
}

// SyncStatus summarizes the poll loop.
type SyncStatus struct {
	Running             bool   `json:"running"`
	LastSuccess         string `json:"lastSuccess,omitempty"`
	LastResult          string `json:"lastResult,omitempty"`
	LastError           string `json:"lastError,omitempty"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	Fetches             int    `json:"fetches"`
}

// DaemonStatus aggregates runtime information.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LockFilePath string         `json:"lockFilePath,omitempty"`
	JournalPath  string         `json:"journalPath,omitempty"`
	StoreVersion uint64         `json:"storeVersion"`
	Guard        string         `json:"guard,omitempty"`
	Characters   int            `json:"characters"`
	Items        int            `json:"items"`
	InFlight     int            `json:"inFlight"`
	Definitions  int            `json:"definitions"`
	Sync         SyncStatus     `json:"sync"`
	Journal      map[string]int `json:"journal,omitempty"`
	LastEvent    uint64         `json:"lastEvent"`
}

// EventsResponse carries hub events after a sequence.
type EventsResponse struct {
	Events []engine.Event `json:"events"`
	Next   uint64         `json:"next"`
}
