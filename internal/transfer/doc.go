// Package transfer moves one item instance between locations.
//
// PlanRoute is pure: it turns a (from, to) pair into the hops the remote
// authority understands, routing through the vault when no direct move
// exists. Orchestrator executes a plan hop by hop, registering the instance
// in flight on the store before each remote call and clearing the mark when
// the plan ends. A given instance has at most one transfer running at a
// time; a second request is rejected with ErrInFlight.
package transfer
