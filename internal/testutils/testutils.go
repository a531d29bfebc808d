// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
)

// Context returns a context that is cancelled when the test ends
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Logger returns a logger writing through t.Log, shown only for failing tests
func Logger(t testing.TB) *slog.Logger {
	return slogt.New(t)
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Recorder collects values delivered to callbacks from other goroutines
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

// Add records a value
func (r *Recorder[T]) Add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

// Values returns a copy of the recorded values
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}

// Len returns the number of recorded values
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// AssertEventually waits for condition to be true
func AssertEventually(t testing.TB, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Eventually(t, condition, 2*time.Second, time.Millisecond, msgAndArgs...)
}

// AssertNever checks that condition stays false for a short window
func AssertNever(t testing.TB, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Never(t, condition, 50*time.Millisecond, 5*time.Millisecond, msgAndArgs...)
}
