package engine

import (
	"context"
	"sync"
	"time"

	"vaultkeeper/internal/store"
)

// EventType names what an Event carries.
type EventType string

const (
	EventChange    EventType = "change"
	EventProgress  EventType = "progress"
	EventOperation EventType = "operation"
)

// Progress is one loadout progress report.
type Progress struct {
	OperationID string  `json:"operationId"`
	Loadout     string  `json:"loadout"`
	Step        string  `json:"step"`
	Percent     float64 `json:"percent"`
}

// OperationEvent announces a finished operation.
type OperationEvent struct {
	OperationID string `json:"operationId"`
	Kind        string `json:"kind"`
	InstanceID  string `json:"instanceId,omitempty"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// Event is one entry in the hub. Exactly one payload field is set.
type Event struct {
	Sequence  uint64          `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Type      EventType       `json:"type"`
	Change    *store.Change   `json:"change,omitempty"`
	Progress  *Progress       `json:"progress,omitempty"`
	Operation *OperationEvent `json:"operation,omitempty"`
}

// EventHub keeps a bounded buffer of recent events and wakes waiters when
// new ones arrive. Readers track their own position by sequence, so a slow
// reader misses old events instead of blocking publishers.
type EventHub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
}

// NewEventHub constructs a hub holding at most capacity events.
func NewEventHub(capacity int) *EventHub {
	if capacity <= 0 {
		capacity = 256
	}
	h := &EventHub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends evt and assigns its sequence.
func (h *EventHub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Fetch returns buffered events with sequence greater than since, plus the
// latest sequence. When wait is true it blocks until an event is available or
// ctx ends.
func (h *EventHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	stopWake := make(chan struct{})
	if wait && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-stopWake:
			}
		}()
	}
	defer close(stopWake)

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		events, next := h.afterLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, next, ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
	}
}

// Latest returns the sequence of the newest event.
func (h *EventHub) Latest() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq
}

func (h *EventHub) afterLocked(since uint64, limit int) ([]Event, uint64) {
	start := len(h.buffer)
	for i, evt := range h.buffer {
		if evt.Sequence > since {
			start = i
			break
		}
	}
	end := min(start+limit, len(h.buffer))
	if start == end {
		return nil, h.nextSeq
	}
	out := make([]Event, end-start)
	copy(out, h.buffer[start:end])
	return out, h.nextSeq
}
