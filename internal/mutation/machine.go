package mutation

import (
	"errors"
	"fmt"
)

// Phase is where one instance sits in its mutation lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseConfirmed
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Event drives a transition.
type Event int

const (
	EventRequest Event = iota + 1
	EventRemoteSuccess
	EventRemoteFailure
	EventSettle
)

func (e Event) String() string {
	switch e {
	case EventRequest:
		return "request"
	case EventRemoteSuccess:
		return "remote_success"
	case EventRemoteFailure:
		return "remote_failure"
	case EventSettle:
		return "settle"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Effect is a side effect the caller must perform, in order.
type Effect int

const (
	EffectApplyOverride Effect = iota + 1
	EffectCallRemote
	EffectRevert
	EffectForceResync
)

func (e Effect) String() string {
	switch e {
	case EffectApplyOverride:
		return "apply_override"
	case EffectCallRemote:
		return "call_remote"
	case EffectRevert:
		return "revert"
	case EffectForceResync:
		return "force_resync"
	default:
		return fmt.Sprintf("effect(%d)", int(e))
	}
}

var (
	// ErrMutationPending rejects a request for an instance whose previous
	// mutation has not settled.
	ErrMutationPending = errors.New("mutation already pending for instance")
	// ErrInvalidTransition reports an event that makes no sense in the
	// current phase.
	ErrInvalidTransition = errors.New("invalid mutation transition")
)

// Transition returns the next phase and the effects to run. It has no side
// effects of its own.
func Transition(phase Phase, event Event) (Phase, []Effect, error) {
	switch {
	case phase == PhaseIdle && event == EventRequest:
		return PhasePending, []Effect{EffectApplyOverride, EffectCallRemote}, nil
	case phase != PhaseIdle && event == EventRequest:
		return phase, nil, ErrMutationPending
	case phase == PhasePending && event == EventRemoteSuccess:
		return PhaseConfirmed, nil, nil
	case phase == PhasePending && event == EventRemoteFailure:
		return PhaseRolledBack, []Effect{EffectRevert, EffectForceResync}, nil
	case (phase == PhaseConfirmed || phase == PhaseRolledBack) && event == EventSettle:
		return PhaseIdle, nil, nil
	default:
		return phase, nil, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, phase)
	}
}
