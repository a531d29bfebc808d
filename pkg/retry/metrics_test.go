package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jzx17/resilience/internal/testutils"
	"github.com/jzx17/resilience/pkg/classify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetricsHandler(reg)
	require.NoError(t, err)
	ctx := context.Background()

	m.OnRetryScheduled(ctx, "s", AttemptState{LastErrorKind: classify.Network}, 2*time.Second)
	m.OnRetryScheduled(ctx, "s", AttemptState{LastErrorKind: classify.Network}, 4*time.Second)
	m.OnSuspended(ctx, "s", AttemptState{})
	m.OnRetrySuccess(ctx, "s", 3, time.Second)
	m.OnMaxAttemptsReached(ctx, "s", &Failure{LastErrorKind: classify.Auth})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scheduled.WithLabelValues("network")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suspensions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.successes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("auth")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.attempts))
}

func TestMetricsHandler_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetricsHandler(reg)
	require.NoError(t, err)

	_, err = NewMetricsHandler(reg)
	assert.Error(t, err)
}

func TestMetricsHandler_WiredIntoCoordinator(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetricsHandler(reg)
	require.NoError(t, err)

	mc := testutils.NewMockClock(t)
	coord, err := NewCoordinator(NewPolicy(WithMaxAttempts(1)),
		WithClock(mc.Clock),
		WithEventHandler(MultiEventHandler{m, NewLogEventHandler(testutils.DiscardLogger())}),
	)
	require.NoError(t, err)

	_, err = Execute(coord, testutils.Context(t), func(ctx context.Context) (string, error) {
		return "", errors.New("blocked by CORS policy")
	})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("cors")))
}
