// Package mutation changes one socket plug, or the lock bit, on one item
// instance.
//
// Each change is optimistic: the store shows the new value before the
// authority answers. Success keeps it. Failure puts the previous value back
// and forces a full resync so the visible state is truthful again. The
// decisions live in Transition, a pure function over Phase and Event; the
// Mutator only performs the effects it returns.
package mutation
