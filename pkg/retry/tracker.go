package retry

import (
	"sync"
	"time"

	"github.com/jzx17/resilience/pkg/classify"
	"github.com/jzx17/resilience/pkg/types"
)

// AttemptState is a snapshot of the attempts made for one resource load
type AttemptState struct {
	AttemptCount    int
	LastAttemptTime time.Time     // zero until the first increment
	LastErrorKind   classify.Kind // classify.None until an error is recorded
	ErrorHistory    []string      // append-only, oldest first
}

// HasAttempted reports whether any attempt was recorded since the last reset
func (s AttemptState) HasAttempted() bool {
	return !s.LastAttemptTime.IsZero()
}

// Tracker counts failed attempts and keeps their error history
type Tracker struct {
	mu    sync.Mutex
	clock types.Clock
	state AttemptState
}

// NewTracker creates a tracker stamping attempts with clock
func NewTracker(clock types.Clock) *Tracker {
	return &Tracker{clock: types.OrReal(clock)}
}

// Increment records one attempt. A nil err is a silent increment: the count and
// timestamp move, the error kind and history stay as they were.
func (t *Tracker) Increment(err error) AttemptState {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.AttemptCount++
	t.state.LastAttemptTime = t.clock.Now()

	if fault := classify.Normalize(err); fault != nil {
		t.state.LastErrorKind = fault.Kind
		t.state.ErrorHistory = append(t.state.ErrorHistory, fault.Message)
	}

	return t.snapshot()
}

// Reset returns the tracker to its initial state
func (t *Tracker) Reset() AttemptState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = AttemptState{}
	return t.snapshot()
}

// ShouldRetry reports whether another attempt fits the policy
func (t *Tracker) ShouldRetry(p Policy) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.AttemptCount < p.MaxAttempts
}

// State returns a copy of the current state
func (t *Tracker) State() AttemptState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Tracker) snapshot() AttemptState {
	out := t.state
	if t.state.ErrorHistory != nil {
		out.ErrorHistory = make([]string, len(t.state.ErrorHistory))
		copy(out.ErrorHistory, t.state.ErrorHistory)
	} else {
		out.ErrorHistory = []string{}
	}
	return out
}
