package transfer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrSessionLimit means the session has used up its hop or move budget.
	ErrSessionLimit = errors.New("transfer session limit reached")
	// ErrDuplicateMove means the session already moved this instance.
	ErrDuplicateMove = errors.New("instance already moved in this session")
)

// Limits bounds one session. Zero fields are unlimited.
type Limits struct {
	MaxHops  int
	MaxMoves int
}

// Session is the budget of one user action. It stops runaway plans and
// keeps a batch from moving the same instance twice. Safe for concurrent use.
type Session struct {
	ID     string
	limits Limits

	mu    sync.Mutex
	hops  int
	moves map[string]struct{}
}

// NewSession starts a session with a fresh id.
func NewSession(limits Limits) *Session {
	return &Session{ID: uuid.NewString(), limits: limits, moves: make(map[string]struct{})}
}

// reserve charges the session for one transfer of instanceID taking hops
// remote calls. Nothing is charged when it fails.
func (s *Session) reserve(instanceID string, hops int) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.moves[instanceID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateMove, instanceID)
	}
	if s.limits.MaxMoves > 0 && len(s.moves)+1 > s.limits.MaxMoves {
		return fmt.Errorf("%w: %d moves", ErrSessionLimit, s.limits.MaxMoves)
	}
	if s.limits.MaxHops > 0 && s.hops+hops > s.limits.MaxHops {
		return fmt.Errorf("%w: %d hops", ErrSessionLimit, s.limits.MaxHops)
	}
	s.moves[instanceID] = struct{}{}
	s.hops += hops
	return nil
}

// Usage returns the hops and moves charged so far.
func (s *Session) Usage() (hops, moves int) {
	if s == nil {
		return 0, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hops, len(s.moves)
}
