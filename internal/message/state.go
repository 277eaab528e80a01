package message

import (
	"fmt"
	"sync"
	"time"
)

// State is a Message's position in its lifecycle (spec.md 3).
type State int

const (
	StateCreated State = iota
	StateQueued
	StateWritten
	StateAwaitingReply
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateQueued:
		return "Queued"
	case StateWritten:
		return "Written"
	case StateAwaitingReply:
		return "AwaitingReply"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// legal records the allowed forward transitions. Created -> Queued ->
// Written -> AwaitingReply -> {Completed, Failed, Cancelled} is the happy
// path; Cancelled and Failed are reachable from any non-terminal state
// since a deadline or connection failure can land at any stage.
var legal = map[State][]State{
	StateCreated:       {StateQueued, StateFailed, StateCancelled},
	StateQueued:        {StateWritten, StateFailed, StateCancelled},
	StateWritten:       {StateAwaitingReply, StateCompleted, StateFailed, StateCancelled},
	StateAwaitingReply: {StateCompleted, StateFailed, StateCancelled},
}

// Lifecycle tracks a Message's state transitions and the monotonic tick at
// which each was first observed, enforcing spec.md 3's invariant: ticks are
// non-decreasing across transitions and each transition is observed at
// most once.
type Lifecycle struct {
	mu sync.Mutex

	state State

	CreationTick  time.Time
	EnqueueTick   time.Time
	SendTick      time.Time
	ResponseTick  time.Time
	CompleteTick  time.Time
}

// NewLifecycle returns a Lifecycle in StateCreated with CreationTick set to
// now.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateCreated, CreationTick: time.Now()}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Transition moves the lifecycle to next, stamping the corresponding tick.
// It returns an error if next is not reachable from the current state or if
// the current state is already terminal (at-most-once completion, spec.md
// 8).
func (l *Lifecycle) Transition(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.terminal() {
		return fmt.Errorf("message: already %v, cannot transition to %v", l.state, next)
	}

	ok := false
	for _, allowed := range legal[l.state] {
		if allowed == next {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("message: illegal transition %v -> %v", l.state, next)
	}

	now := time.Now()
	switch next {
	case StateQueued:
		l.EnqueueTick = now
	case StateWritten:
		l.SendTick = now
	case StateCompleted, StateFailed, StateCancelled:
		if l.state == StateAwaitingReply {
			l.ResponseTick = now
		}
		l.CompleteTick = now
	}
	l.state = next
	return nil
}
