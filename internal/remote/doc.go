// Package remote talks to the remote authority's HTTP platform API.
//
// Every response arrives in the platform envelope ({Response, ErrorCode,
// ErrorStatus, Message, ThrottleSeconds}); non-success codes become *Error
// values with a Kind the rest of the engine can act on. Profile payloads are
// checked against an embedded JSON schema and converted into a validated
// inventory.Snapshot before anything else sees them.
package remote
