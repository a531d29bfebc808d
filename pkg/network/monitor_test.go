package network

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jzx17/resilience/internal/testutils"
	"github.com/jzx17/resilience/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// scriptedProber answers with whatever the test configured last
type scriptedProber struct {
	mu    sync.Mutex
	rtt   time.Duration
	err   error
	calls int
}

func (p *scriptedProber) set(rtt time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rtt, p.err = rtt, err
}

func (p *scriptedProber) Probe(context.Context) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.rtt, p.err
}

func (p *scriptedProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestMonitor(t *testing.T, prober Prober, opts ...Option) (*Monitor, *testutils.MockClock) {
	t.Helper()
	mc := testutils.NewMockClock(t)
	opts = append([]Option{WithClock(mc.Clock), WithLogger(testutils.DiscardLogger())}, opts...)
	m := NewMonitor(prober, opts...)
	t.Cleanup(m.Stop)
	return m, mc
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "online", Online.String())
	assert.Equal(t, "offline", Offline.String())
	assert.Equal(t, "limited", Limited.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestMonitor_StartUsesLinkState(t *testing.T) {
	t.Run("link up", func(t *testing.T) {
		m, _ := newTestMonitor(t, &scriptedProber{}, WithLinkChecker(LinkFunc(func() bool { return true })))
		require.NoError(t, m.Start(testutils.Context(t)))
		assert.Equal(t, Online, m.State())
		assert.True(t, m.Snapshot().Running)
	})

	t.Run("link down", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		metrics, err := NewMetrics(reg)
		require.NoError(t, err)
		m, _ := newTestMonitor(t, &scriptedProber{},
			WithLinkChecker(LinkFunc(func() bool { return false })), WithMetrics(metrics))

		var transitions testutils.Recorder[Transition]
		m.Subscribe(transitions.Add)
		require.NoError(t, m.Start(testutils.Context(t)))

		assert.Equal(t, Offline, m.State())
		require.Equal(t, 1, transitions.Len())
		tr := transitions.Values()[0]
		assert.Equal(t, Online, tr.From)
		assert.Equal(t, Offline, tr.To)
		assert.False(t, tr.Restored)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("online", "offline")))
	})

	t.Run("start twice", func(t *testing.T) {
		m, mc := newTestMonitor(t, &scriptedProber{})
		ctx := testutils.Context(t)
		require.NoError(t, m.Start(ctx))
		require.NoError(t, m.Start(ctx))
		mc.AwaitTimer(30 * time.Second)
	})
}

func TestMonitor_ProbeOutcome(t *testing.T) {
	tests := []struct {
		name string
		rtt  time.Duration
		err  error
		want State
	}{
		{name: "fast", rtt: 120 * time.Millisecond, want: Online},
		{name: "at threshold", rtt: 2 * time.Second, want: Online},
		{name: "slow", rtt: 2500 * time.Millisecond, want: Limited},
		{name: "error", err: errors.New("connection refused"), want: Limited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &scriptedProber{}
			prober.set(tt.rtt, tt.err)
			m, _ := newTestMonitor(t, prober)

			assert.Equal(t, tt.want, m.Check(testutils.Context(t)))
			snap := m.Snapshot()
			assert.False(t, snap.LastProbe.IsZero())
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), snap.LastError)
			} else {
				assert.Equal(t, tt.rtt, snap.LastRTT)
				assert.Empty(t, snap.LastError)
			}
		})
	}
}

func TestMonitor_ProbePanicIsContained(t *testing.T) {
	m, _ := newTestMonitor(t, ProbeFunc(func(context.Context) (time.Duration, error) {
		panic("boom")
	}))

	assert.NotPanics(t, func() {
		assert.Equal(t, Limited, m.Check(testutils.Context(t)))
	})
	assert.Contains(t, m.Snapshot().LastError, "probe panicked")
}

func TestMonitor_HandleOfflineIsSynchronous(t *testing.T) {
	m, _ := newTestMonitor(t, &scriptedProber{})
	var transitions testutils.Recorder[Transition]
	m.Subscribe(transitions.Add)

	m.HandleOffline()

	assert.Equal(t, Offline, m.State())
	require.Equal(t, 1, transitions.Len())
	tr := transitions.Values()[0]
	assert.Equal(t, Online, tr.From)
	assert.Equal(t, Offline, tr.To)
	assert.False(t, tr.Restored)

	// repeated offline events are not transitions
	m.HandleOffline()
	assert.Equal(t, 1, transitions.Len())
}

func TestMonitor_OfflineDiscardsInFlightProbe(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	m, _ := newTestMonitor(t, ProbeFunc(func(context.Context) (time.Duration, error) {
		close(entered)
		<-release
		return 10 * time.Millisecond, nil
	}))
	m.HandleOffline()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.HandleOnline(context.Background())
	}()

	<-entered
	m.HandleOffline()
	assert.Equal(t, Offline, m.State())

	close(release)
	<-done
	assert.Equal(t, Offline, m.State(), "stale probe result must not override the offline event")
}

func TestMonitor_HandleOnlineRestores(t *testing.T) {
	tests := []struct {
		name string
		rtt  time.Duration
		want State
	}{
		{name: "healthy", rtt: 50 * time.Millisecond, want: Online},
		{name: "slow", rtt: 3 * time.Second, want: Limited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &scriptedProber{}
			prober.set(tt.rtt, nil)
			m, _ := newTestMonitor(t, prober)
			m.HandleOffline()

			var transitions testutils.Recorder[Transition]
			m.Subscribe(transitions.Add)
			m.HandleOnline(testutils.Context(t))

			assert.Equal(t, tt.want, m.State())
			require.Equal(t, 1, transitions.Len())
			tr := transitions.Values()[0]
			assert.Equal(t, Offline, tr.From)
			assert.Equal(t, tt.want, tr.To)
			assert.True(t, tr.Restored)
		})
	}
}

func TestMonitor_HandleOnlineWithLinkDown(t *testing.T) {
	prober := &scriptedProber{}
	m, _ := newTestMonitor(t, prober, WithLinkChecker(LinkFunc(func() bool { return false })))

	m.HandleOnline(testutils.Context(t))

	assert.Equal(t, Offline, m.State())
	assert.Zero(t, prober.count(), "no probe without a link")
}

func TestMonitor_ProbeIntervals(t *testing.T) {
	prober := &scriptedProber{}
	prober.set(100*time.Millisecond, nil)
	m, mc := newTestMonitor(t, prober)
	require.NoError(t, m.Start(testutils.Context(t)))

	mc.AwaitTimer(30 * time.Second)

	// slow probe switches to the limited cadence
	prober.set(2500*time.Millisecond, nil)
	mc.Step(30 * time.Second)
	assert.Equal(t, Limited, m.State())
	mc.AwaitTimer(10 * time.Second)

	// still slow, keeps the fast cadence
	mc.Step(10 * time.Second)
	assert.Equal(t, Limited, m.State())
	mc.AwaitTimer(10 * time.Second)

	prober.set(100*time.Millisecond, nil)
	mc.Step(10 * time.Second)
	assert.Equal(t, Online, m.State())
	mc.AwaitTimer(30 * time.Second)
	assert.Equal(t, 3, prober.count())
}

func TestMonitor_StopCancelsProbing(t *testing.T) {
	prober := &scriptedProber{}
	m, mc := newTestMonitor(t, prober)
	require.NoError(t, m.Start(testutils.Context(t)))
	mc.AwaitTimer(30 * time.Second)

	m.Stop()
	m.Stop()

	mc.AwaitNoTimer()
	assert.False(t, m.Snapshot().Running)
	assert.Zero(t, prober.count())
}

func TestMonitor_SubscribersInOrder(t *testing.T) {
	m, _ := newTestMonitor(t, &scriptedProber{})

	var order testutils.Recorder[string]
	m.Subscribe(func(Transition) { order.Add("first") })
	m.Subscribe(func(Transition) { order.Add("second") })
	unsubscribe := m.Subscribe(func(Transition) { order.Add("third") })
	unsubscribe()
	unsubscribe()

	m.HandleOffline()
	assert.Equal(t, []string{"first", "second"}, order.Values())
}

func TestMonitor_UnsubscribeDuringNotification(t *testing.T) {
	m, _ := newTestMonitor(t, &scriptedProber{})

	calls := atomic.NewInt32(0)
	var unsubscribe func()
	unsubscribe = m.Subscribe(func(Transition) {
		calls.Inc()
		unsubscribe()
	})

	m.HandleOffline()
	m.HandleOnline(testutils.Context(t))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMonitor_WaitOnline(t *testing.T) {
	t.Run("already online", func(t *testing.T) {
		m, _ := newTestMonitor(t, &scriptedProber{})
		assert.NoError(t, m.WaitOnline(testutils.Context(t)))
	})

	t.Run("restored", func(t *testing.T) {
		m, _ := newTestMonitor(t, &scriptedProber{})
		m.HandleOffline()

		errs := make(chan error, 1)
		go func() { errs <- m.WaitOnline(testutils.Context(t)) }()
		testutils.AssertNever(t, func() bool { return len(errs) > 0 })

		m.HandleOnline(testutils.Context(t))
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("WaitOnline did not return after restore")
		}
	})

	t.Run("monitor stopped", func(t *testing.T) {
		m, _ := newTestMonitor(t, &scriptedProber{})
		require.NoError(t, m.Start(testutils.Context(t)))
		m.HandleOffline()

		errs := make(chan error, 1)
		go func() { errs <- m.WaitOnline(testutils.Context(t)) }()
		testutils.AssertNever(t, func() bool { return len(errs) > 0 })

		m.Stop()
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, types.ErrMonitorStopped)
		case <-time.After(2 * time.Second):
			t.Fatal("WaitOnline did not return after stop")
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		m, _ := newTestMonitor(t, &scriptedProber{})
		m.HandleOffline()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := m.WaitOnline(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMonitor_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	prober := &scriptedProber{}
	prober.set(3*time.Second, nil)
	m, _ := newTestMonitor(t, prober, WithMetrics(metrics))

	m.Check(testutils.Context(t))
	assert.Equal(t, float64(Limited), testutil.ToFloat64(metrics.state))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("online", "limited")))

	prober.set(0, errors.New("fetch failed"))
	m.Check(testutils.Context(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.probeErrors))

	m.HandleOffline()
	assert.Equal(t, float64(Offline), testutil.ToFloat64(metrics.state))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}
