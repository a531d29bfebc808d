package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/jzx17/resilience/internal/testutils"
	"github.com/jzx17/resilience/pkg/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Increment(t *testing.T) {
	mc := testutils.NewMockClock(t)
	tracker := NewTracker(mc.Clock)

	initial := tracker.State()
	assert.Equal(t, 0, initial.AttemptCount)
	assert.False(t, initial.HasAttempted())
	assert.Equal(t, classify.None, initial.LastErrorKind)
	assert.Empty(t, initial.ErrorHistory)

	state := tracker.Increment(errors.New("network request failed"))
	assert.Equal(t, 1, state.AttemptCount)
	assert.Equal(t, mc.Now(), state.LastAttemptTime)
	assert.Equal(t, classify.Network, state.LastErrorKind)
	assert.Equal(t, []string{"network request failed"}, state.ErrorHistory)

	mc.Step(time.Second)
	state = tracker.Increment(errors.New("JWT expired"))
	assert.Equal(t, 2, state.AttemptCount)
	assert.Equal(t, mc.Now(), state.LastAttemptTime)
	assert.Equal(t, classify.Auth, state.LastErrorKind)
	assert.Equal(t, []string{"network request failed", "JWT expired"}, state.ErrorHistory)
}

func TestTracker_SilentIncrement(t *testing.T) {
	mc := testutils.NewMockClock(t)
	tracker := NewTracker(mc.Clock)

	tracker.Increment(errors.New("request timeout"))
	before := tracker.State()

	mc.Step(time.Second)
	after := tracker.Increment(nil)

	assert.Equal(t, before.AttemptCount+1, after.AttemptCount)
	assert.True(t, after.LastAttemptTime.After(before.LastAttemptTime))
	assert.Equal(t, before.LastErrorKind, after.LastErrorKind)
	assert.Equal(t, before.ErrorHistory, after.ErrorHistory)
}

func TestTracker_SilentIncrementFromZero(t *testing.T) {
	tracker := NewTracker(testutils.NewMockClock(t).Clock)

	state := tracker.Increment(nil)
	assert.Equal(t, 1, state.AttemptCount)
	assert.Equal(t, classify.None, state.LastErrorKind)
	assert.Empty(t, state.ErrorHistory)
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker(testutils.NewMockClock(t).Clock)

	// Reset is idempotent and independent of prior state
	for round := 0; round < 3; round++ {
		for i := 0; i < round+1; i++ {
			tracker.Increment(errors.New("cors blocked"))
		}
		state := tracker.Reset()
		assert.Equal(t, 0, state.AttemptCount)
		assert.True(t, state.LastAttemptTime.IsZero())
		assert.Equal(t, classify.None, state.LastErrorKind)
		assert.Empty(t, state.ErrorHistory)
	}

	state := tracker.Reset()
	assert.Equal(t, 0, state.AttemptCount)
}

func TestTracker_ShouldRetryBoundary(t *testing.T) {
	tracker := NewTracker(testutils.NewMockClock(t).Clock)
	p := NewPolicy(WithMaxAttempts(3))

	for i := 0; i < p.MaxAttempts; i++ {
		require.True(t, tracker.ShouldRetry(p), "attempt count %d", i)
		tracker.Increment(errors.New("fail"))
	}
	assert.Equal(t, p.MaxAttempts, tracker.State().AttemptCount)
	assert.False(t, tracker.ShouldRetry(p))
}

func TestTracker_SnapshotIsolation(t *testing.T) {
	tracker := NewTracker(testutils.NewMockClock(t).Clock)
	tracker.Increment(errors.New("first"))

	snap := tracker.State()
	snap.ErrorHistory[0] = "mutated"

	assert.Equal(t, "first", tracker.State().ErrorHistory[0])
}
