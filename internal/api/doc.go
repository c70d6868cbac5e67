// Package api defines wire-format types and converters for the IPC and HTTP
// API layer, plus InventoryService, which runs engine operations on behalf of
// both transports.
//
// # Key Types
//
// Item: transport representation of one stored item with its definition name,
// location string, and in-flight target.
//
// TransferRequest/SocketRequest/LockRequest/LoadoutRequest: operation inputs.
// Locations travel as their text form ("vault", "inventory:<id>",
// "equipped:<id>"); loadouts travel as YAML text.
//
// DaemonStatus: engine, sync, and journal diagnostics.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Failed operations return an Error carrying the
// classified kind, so clients can tell a conflict from a remote rejection
// without parsing messages. HTTPStatus maps those kinds onto status codes.
package api
