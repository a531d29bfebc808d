package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/jzx17/resilience/pkg/types"
	"github.com/stretchr/testify/require"
)

// MockClock couples a quartz mock with the types.Clock view handed to components
type MockClock struct {
	*quartz.Mock
	Clock types.Clock
	t     testing.TB
}

// NewMockClock creates a mock clock for testing
func NewMockClock(t testing.TB) *MockClock {
	mock := quartz.NewMock(t)
	return &MockClock{Mock: mock, Clock: types.FromQuartz(mock), t: t}
}

// Step advances the clock by d and waits for every callback fired by the advance
func (m *MockClock) Step(d time.Duration) {
	m.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Mock.Advance(d).MustWait(ctx)
}

// StepBy advances the clock n times by d, waiting for callbacks after each step
func (m *MockClock) StepBy(d time.Duration, n int) {
	m.t.Helper()
	for i := 0; i < n; i++ {
		m.Step(d)
	}
}

// AwaitTimer waits until a timer is pending exactly d in the future.
// Components arm timers from goroutines, so tests poll before advancing.
func (m *MockClock) AwaitTimer(d time.Duration) {
	m.t.Helper()
	require.Eventually(m.t, func() bool {
		next, ok := m.Mock.Peek()
		return ok && next == d
	}, 2*time.Second, time.Millisecond, "expected a timer due in %v", d)
}

// AwaitNoTimer waits until no timer is pending
func (m *MockClock) AwaitNoTimer() {
	m.t.Helper()
	require.Eventually(m.t, func() bool {
		_, ok := m.Mock.Peek()
		return !ok
	}, 2*time.Second, time.Millisecond, "expected no pending timers")
}
