package ipc

import "vaultkeeper/internal/api"

// ServiceName is the registered JSON-RPC receiver name.
const ServiceName = "Vaultkeeper"

// Reply is embedded in every response that can carry an operation failure.
type Reply struct {
	Failure *api.Error `json:"failure,omitempty"`
}

func (r *Reply) setFailure(err error) { r.Failure = api.FromError(err) }

// StatusRequest asks for daemon status.
type StatusRequest struct{}

// StatusResponse wraps daemon status.
type StatusResponse struct {
	api.DaemonStatus
}

// ItemsRequest lists stored items.
type ItemsRequest struct {
	api.ItemsQuery
}

// ItemsResponse wraps an item listing.
type ItemsResponse struct {
	Reply
	api.ItemsResponse
}

// ItemRequest describes one instance.
type ItemRequest struct {
	InstanceID string `json:"instanceId"`
}

// ItemResponse carries instance detail.
type ItemResponse struct {
	Reply
	Item api.ItemDetail `json:"item"`
}

// TransferRequest moves one instance.
type TransferRequest struct {
	api.TransferRequest
}

// TransferResponse reports a transfer.
type TransferResponse struct {
	Reply
	api.TransferResponse
}

// SocketRequest inserts a plug.
type SocketRequest struct {
	api.SocketRequest
}

// SocketResponse reports a socket change.
type SocketResponse struct {
	Reply
	api.SocketResponse
}

// LockRequest sets a lock state.
type LockRequest struct {
	api.LockRequest
}

// LockResponse reports a lock change.
type LockResponse struct {
	Reply
	api.LockResponse
}

// LoadoutRequest runs or validates a loadout.
type LoadoutRequest struct {
	api.LoadoutRequest
}

// LoadoutResponse carries the itemized loadout result.
type LoadoutResponse struct {
	Reply
	api.LoadoutResponse
}

// ResyncRequest forces a profile fetch.
type ResyncRequest struct{}

// ResyncResponse reports the store after a resync.
type ResyncResponse struct {
	Reply
	api.ResyncResponse
}

// HistoryRequest filters the journal.
type HistoryRequest struct {
	api.HistoryQuery
}

// HistoryResponse lists journal rows newest first.
type HistoryResponse struct {
	Reply
	Entries []api.HistoryEntry `json:"entries"`
}

// EventsRequest fetches hub events after Since. With WaitMillis set the call
// blocks until an event arrives or the wait elapses.
type EventsRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	WaitMillis int    `json:"waitMillis"`
}

// EventsResponse carries hub events.
type EventsResponse struct {
	api.EventsResponse
}
