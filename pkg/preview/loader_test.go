package preview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jzx17/resilience/internal/testutils"
	"github.com/jzx17/resilience/pkg/classify"
	"github.com/jzx17/resilience/pkg/network"
	"github.com/jzx17/resilience/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyProvider fails until failures runs out, then returns url
type flakyProvider struct {
	mu       sync.Mutex
	failures []error
	url      string
	paths    []string
}

func (p *flakyProvider) ResourceURL(_ context.Context, path string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		return "", err
	}
	return p.url, nil
}

func (p *flakyProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.paths)
}

func newTestCoordinator(t *testing.T, mc *testutils.MockClock, opts ...retry.CoordinatorOption) *retry.Coordinator {
	t.Helper()
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 15 * time.Second}
	opts = append([]retry.CoordinatorOption{
		retry.WithClock(mc.Clock),
		retry.WithScheduler(retry.NewScheduler(func(int64) int64 { return 0 })),
		retry.WithLogger(testutils.DiscardLogger()),
	}, opts...)
	coord, err := retry.NewCoordinator(policy, opts...)
	require.NoError(t, err)
	return coord
}

type loadResult struct {
	url string
	err error
}

func TestLoader_RetriesTransientFailures(t *testing.T) {
	mc := testutils.NewMockClock(t)
	provider := &flakyProvider{
		failures: []error{errors.New("Failed to fetch"), errors.New("request timeout")},
		url:      "https://cdn.example.com/signed/form.pdf?token=abc",
	}
	loader := NewLoader(provider, newTestCoordinator(t, mc), WithLoaderLogger(testutils.DiscardLogger()))

	done := make(chan loadResult, 1)
	go func() {
		url, err := loader.Load(testutils.Context(t), "/clients/42/form.pdf")
		done <- loadResult{url, err}
	}()

	mc.AwaitTimer(2 * time.Second)
	mc.Step(2 * time.Second)
	mc.AwaitTimer(4 * time.Second)
	mc.Step(4 * time.Second)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, provider.url, res.url)
	assert.Equal(t, []string{"clients/42/form.pdf", "clients/42/form.pdf", "clients/42/form.pdf"}, provider.paths)
}

func TestLoader_GivesUp(t *testing.T) {
	mc := testutils.NewMockClock(t)
	provider := &flakyProvider{failures: []error{
		errors.New("connection reset"),
		errors.New("connection reset"),
		errors.New("invalid JWT"),
	}}
	loader := NewLoader(provider, newTestCoordinator(t, mc), WithLoaderLogger(testutils.DiscardLogger()))

	done := make(chan loadResult, 1)
	go func() {
		url, err := loader.Load(testutils.Context(t), "a.pdf")
		done <- loadResult{url, err}
	}()

	mc.AwaitTimer(2 * time.Second)
	mc.Step(2 * time.Second)
	mc.AwaitTimer(4 * time.Second)
	mc.Step(4 * time.Second)

	res := <-done
	var failure *retry.Failure
	require.ErrorAs(t, res.err, &failure)
	assert.Equal(t, 3, failure.AttemptCount)
	assert.Equal(t, classify.Auth, failure.LastErrorKind)
	assert.Equal(t, []string{"connection reset", "connection reset", "invalid JWT"}, failure.ErrorStack)
}

func TestLoader_EmptyPath(t *testing.T) {
	mc := testutils.NewMockClock(t)
	provider := &flakyProvider{}
	loader := NewLoader(provider, newTestCoordinator(t, mc))

	_, err := loader.Load(testutils.Context(t), " / ")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = loader.Start(testutils.Context(t), "", retry.Callbacks[string]{})
	assert.ErrorIs(t, err, ErrEmptyPath)
	assert.Zero(t, provider.calls())
}

func TestLoader_PolicyOverride(t *testing.T) {
	mc := testutils.NewMockClock(t)
	provider := &flakyProvider{failures: []error{errors.New("Failed to fetch")}}
	loader := NewLoader(provider, newTestCoordinator(t, mc),
		WithLoaderLogger(testutils.DiscardLogger()),
		WithLoaderPolicy(retry.Policy{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: time.Second}))

	_, err := loader.Load(testutils.Context(t), "a.pdf")
	var failure *retry.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, failure.MaxAttempts)
	assert.Equal(t, classify.Network, failure.LastErrorKind)
}

func TestLoader_SuspendsWhileOffline(t *testing.T) {
	mc := testutils.NewMockClock(t)
	monitor := network.NewMonitor(network.ProbeFunc(func(context.Context) (time.Duration, error) {
		return 50 * time.Millisecond, nil
	}), network.WithClock(mc.Clock), network.WithLogger(testutils.DiscardLogger()))
	monitor.HandleOffline()

	provider := &flakyProvider{
		failures: []error{errors.New("Failed to fetch")},
		url:      "https://cdn.example.com/a.pdf",
	}
	loader := NewLoader(provider, newTestCoordinator(t, mc, retry.WithConnectivity(monitor)),
		WithLoaderLogger(testutils.DiscardLogger()))

	var suspends testutils.Recorder[retry.AttemptState]
	var values testutils.Recorder[string]
	seq, err := loader.Start(testutils.Context(t), "a.pdf", retry.Callbacks[string]{
		OnSuspend: suspends.Add,
		OnSuccess: values.Add,
	})
	require.NoError(t, err)
	defer seq.Cancel()

	testutils.AssertEventually(t, func() bool { return suspends.Len() == 1 })
	assert.Equal(t, retry.StatusSuspended, seq.Status())
	assert.Equal(t, 1, suspends.Values()[0].AttemptCount)
	mc.AwaitNoTimer()

	monitor.HandleOnline(testutils.Context(t))

	testutils.AssertEventually(t, func() bool { return values.Len() == 1 })
	assert.Equal(t, provider.url, values.Values()[0])
	assert.Equal(t, 2, provider.calls())
}
