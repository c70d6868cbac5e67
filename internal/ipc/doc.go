// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket and
// ships the matching client used by the CLI.
//
// Every call delegates to the daemon's api.InventoryService, so the socket
// and the HTTP API share DTOs and behaviour. Operation failures travel inside
// the response as an api.Error rather than as an RPC error, which keeps the
// classified kind and any partial result intact across the wire; the client
// turns them back into returned errors.
package ipc
