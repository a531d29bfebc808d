// Package retry provides the retry coordinator
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jzx17/resilience/pkg/network"
	"github.com/jzx17/resilience/pkg/types"
	"go.uber.org/atomic"
)

// Connectivity is the read-only view of the network monitor a coordinator needs
type Connectivity interface {
	State() network.State
	Subscribe(fn func(network.Transition)) (unsubscribe func())
}

// Operation is the function type to retry
type Operation[T any] func(ctx context.Context) (T, error)

// Callbacks receive the outcome of a sequence. Every field is optional.
// None of them is called once the sequence has been cancelled.
type Callbacks[T any] struct {
	// OnRetry fires after a failed attempt when the next one is scheduled
	OnRetry func(state AttemptState, delay time.Duration)
	// OnSuspend fires when retrying pauses until the network comes back
	OnSuspend func(state AttemptState)
	// OnSuccess fires with the value of the first successful attempt
	OnSuccess func(value T)
	// OnFailure fires once the policy allows no further attempt
	OnFailure func(failure *Failure)
}

// Stats contains retry statistics across every sequence of a coordinator
type Stats struct {
	TotalAttempts   int64         // operation invocations
	TotalRetries    int64         // attempts scheduled after a failure
	TotalSuccesses  int64         // sequences that succeeded
	TotalFailures   int64         // sequences that gave up
	TotalSuspends   int64         // offline suspensions
	TotalRetryDelay time.Duration // sum of scheduled backoff delays
	LastRetryTime   time.Time
}

// Coordinator runs operations under a retry policy, backing off between
// attempts and pausing while the network is offline
type Coordinator struct {
	policy    Policy
	clock     types.Clock
	network   Connectivity
	scheduler *Scheduler
	handler   EventHandler
	logger    *slog.Logger

	statsMu sync.Mutex
	stats   Stats
}

// CoordinatorOption is a configuration option for the coordinator
type CoordinatorOption func(*Coordinator)

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) CoordinatorOption {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithConnectivity makes sequences suspend while the network is offline
func WithConnectivity(conn Connectivity) CoordinatorOption {
	return func(c *Coordinator) {
		c.network = conn
	}
}

// WithScheduler replaces the backoff scheduler, mostly to control jitter
func WithScheduler(s *Scheduler) CoordinatorOption {
	return func(c *Coordinator) {
		c.scheduler = s
	}
}

// WithEventHandler sets the event handler
func WithEventHandler(handler EventHandler) CoordinatorOption {
	return func(c *Coordinator) {
		c.handler = handler
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a coordinator with a default policy for its sequences
func NewCoordinator(policy Policy, opts ...CoordinatorOption) (*Coordinator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		policy:    policy,
		scheduler: defaultScheduler,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.clock = types.OrReal(c.clock)
	if c.handler == nil {
		c.handler = NewLogEventHandler(c.logger)
	}
	return c, nil
}

// Policy returns the default policy
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Stats returns a copy of the statistics
func (c *Coordinator) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// ResetStats resets statistics
func (c *Coordinator) ResetStats() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = Stats{}
}

func (c *Coordinator) updateStats(fn func(*Stats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	fn(&c.stats)
}

func (c *Coordinator) offline() bool {
	return c.network != nil && c.network.State() == network.Offline
}

// delayFor applies the backoff, honoring a longer server-suggested delay
func (c *Coordinator) delayFor(attempt int, p Policy, err error) time.Duration {
	delay := c.scheduler.NextDelay(attempt, p)
	if hint := types.GetRetryDelay(err); hint > delay {
		delay = min(hint, p.MaxDelay)
	}
	return delay
}

// Status is the lifecycle position of a sequence
type Status int

const (
	// StatusRunning means an attempt is in flight
	StatusRunning Status = iota
	// StatusWaiting means the next attempt waits for its backoff delay
	StatusWaiting
	// StatusSuspended means the next attempt waits for connectivity
	StatusSuspended
	// StatusSucceeded means an attempt returned a value
	StatusSucceeded
	// StatusFailed means the policy gave up
	StatusFailed
	// StatusCancelled means the owner cancelled the sequence
	StatusCancelled
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusWaiting:
		return "waiting"
	case StatusSuspended:
		return "suspended"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further attempt will happen on its own
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Sequence is one retried load. It owns its attempt tracker.
type Sequence[T any] struct {
	id      string
	c       *Coordinator
	op      Operation[T]
	cb      Callbacks[T]
	policy  Policy
	parent  context.Context
	tracker *Tracker

	// gen identifies the current run; Cancel and Retry move it so that late
	// attempts and callbacks from an earlier run are dropped
	gen *atomic.Uint64

	mu          sync.Mutex
	status      Status
	ctx         context.Context
	cancel      context.CancelFunc
	timer       types.Timer
	unsubscribe func()
	stopParent  func() bool
	lastErr     error
	started     time.Time
}

// SequenceOption configures a single sequence
type SequenceOption func(*sequenceOptions)

type sequenceOptions struct {
	policy *Policy
	name   string
}

// WithPolicy overrides the coordinator's policy for one sequence
func WithPolicy(p Policy) SequenceOption {
	return func(o *sequenceOptions) {
		o.policy = &p
	}
}

// WithName prefixes the sequence id used in logs and events
func WithName(name string) SequenceOption {
	return func(o *sequenceOptions) {
		o.name = name
	}
}

// Start begins retrying op in the background and returns the sequence handle.
// Cancelling ctx cancels the sequence.
func Start[T any](c *Coordinator, ctx context.Context, op Operation[T], cb Callbacks[T], opts ...SequenceOption) (*Sequence[T], error) {
	o := sequenceOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	policy := c.policy
	if o.policy != nil {
		if err := o.policy.Validate(); err != nil {
			return nil, err
		}
		policy = *o.policy
	}

	id := uuid.NewString()
	if o.name != "" {
		id = o.name + "-" + id[:8]
	}

	s := &Sequence[T]{
		id:      id,
		c:       c,
		op:      op,
		cb:      cb,
		policy:  policy,
		parent:  ctx,
		tracker: NewTracker(c.clock),
		gen:     atomic.NewUint64(0),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.launchLocked()
	return s, nil
}

// Execute retries op and blocks until it succeeds, gives up, or ctx ends.
// Giving up returns a *Failure.
func Execute[T any](c *Coordinator, ctx context.Context, op Operation[T], opts ...SequenceOption) (T, error) {
	var zero T

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	seq, err := Start(c, ctx, op, Callbacks[T]{
		OnSuccess: func(v T) { done <- outcome{value: v} },
		OnFailure: func(f *Failure) { done <- outcome{err: f} },
	}, opts...)
	if err != nil {
		return zero, err
	}

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		seq.Cancel()
		return zero, fmt.Errorf("%w: %w", types.ErrSequenceCancelled, ctx.Err())
	}
}

// ID returns the sequence identifier used in logs and events
func (s *Sequence[T]) ID() string {
	return s.id
}

// Status returns the lifecycle position of the sequence
func (s *Sequence[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns the attempt state, for "Retrying (n)" indicators
func (s *Sequence[T]) State() AttemptState {
	return s.tracker.State()
}

// Cancel stops the sequence. No attempt starts and no callback fires afterwards.
// Safe to call at any time, including after completion.
func (s *Sequence[T]) Cancel() {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.status = StatusCancelled
	s.gen.Inc()
	unsubscribe := s.haltLocked()
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.c.logger.Debug("Retry sequence cancelled", "sequence", s.id)
}

// Reset clears the attempt tracker. Pending attempts keep their schedule.
func (s *Sequence[T]) Reset() AttemptState {
	return s.tracker.Reset()
}

// Bump records a silent attempt, such as a viewer frame reload that failed
// without an error message. It counts toward the policy but leaves the
// error kind and history untouched. A bump never moves the count past
// MaxAttempts; one that uses up the policy while a retry is pending ends the
// sequence with a Failure instead of letting the pending attempt run.
func (s *Sequence[T]) Bump() AttemptState {
	s.mu.Lock()
	if !s.tracker.ShouldRetry(s.policy) {
		s.mu.Unlock()
		return s.tracker.State()
	}
	state := s.tracker.Increment(nil)
	pending := s.status == StatusWaiting || s.status == StatusSuspended
	if !pending || s.tracker.ShouldRetry(s.policy) {
		s.mu.Unlock()
		return state
	}
	s.failAndUnlock(s.gen.Load(), s.ctx, state, s.lastErr, false)
	return state
}

// Retry restarts a finished sequence from a fresh tracker, as a manual
// "Retry" button does after a terminal failure
func (s *Sequence[T]) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Terminal() {
		return types.ErrSequenceRunning
	}
	if err := s.parent.Err(); err != nil {
		return err
	}

	s.gen.Inc()
	s.tracker.Reset()
	s.launchLocked()
	return nil
}

// launchLocked starts a new run; s.mu must be held
func (s *Sequence[T]) launchLocked() {
	s.ctx, s.cancel = context.WithCancel(s.parent)
	s.status = StatusRunning
	s.lastErr = nil
	s.started = s.c.clock.Now()
	s.stopParent = context.AfterFunc(s.parent, s.Cancel)

	gen := s.gen.Load()
	go s.attempt(gen, false)
}

// haltLocked releases the run's timer, context and parent hook; s.mu must be held.
// The returned unsubscribe must be called without the lock.
func (s *Sequence[T]) haltLocked() func() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.stopParent != nil {
		s.stopParent()
		s.stopParent = nil
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	return unsubscribe
}

// deliver runs fn unless the run it belongs to has been cancelled or replaced
func (s *Sequence[T]) deliver(gen uint64, fn func()) {
	if fn == nil || s.gen.Load() != gen {
		return
	}
	fn()
}

// attempt invokes the operation once. A deferred attempt (backoff timer or
// resume) re-checks the budget and the network before calling op.
func (s *Sequence[T]) attempt(gen uint64, deferred bool) {
	s.mu.Lock()
	if s.gen.Load() != gen || s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if deferred {
		if !s.tracker.ShouldRetry(s.policy) {
			s.failAndUnlock(gen, s.ctx, s.tracker.State(), s.lastErr, false)
			return
		}
		if s.c.offline() {
			s.suspendAndUnlock(gen, s.ctx, s.tracker.State())
			return
		}
	}
	s.status = StatusRunning
	ctx := s.ctx
	s.mu.Unlock()

	s.c.updateStats(func(st *Stats) { st.TotalAttempts++ })
	value, err := s.invoke(ctx)

	s.mu.Lock()
	if s.gen.Load() != gen || s.status.Terminal() {
		s.mu.Unlock()
		return
	}

	if err == nil {
		attempts := s.tracker.State().AttemptCount + 1
		s.tracker.Reset()
		s.status = StatusSucceeded
		s.haltLocked()
		duration := s.c.clock.Since(s.started)
		s.mu.Unlock()

		s.c.updateStats(func(st *Stats) { st.TotalSuccesses++ })
		s.c.handler.OnRetrySuccess(context.WithoutCancel(ctx), s.id, attempts, duration)
		s.deliver(gen, func() {
			if s.cb.OnSuccess != nil {
				s.cb.OnSuccess(value)
			}
		})
		return
	}

	s.lastErr = err
	state := s.tracker.Increment(err)
	permanent := types.IsPermanent(err)

	if permanent || !s.tracker.ShouldRetry(s.policy) {
		s.failAndUnlock(gen, ctx, state, err, permanent)
		return
	}

	if s.c.offline() {
		s.suspendAndUnlock(gen, ctx, state)
		return
	}

	delay := s.c.delayFor(state.AttemptCount, s.policy, err)
	s.status = StatusWaiting
	s.timer = s.c.clock.AfterFunc(delay, func() { s.attempt(gen, true) })
	s.mu.Unlock()

	s.c.updateStats(func(st *Stats) {
		st.TotalRetries++
		st.TotalRetryDelay += delay
		st.LastRetryTime = s.c.clock.Now()
	})
	s.c.handler.OnRetryScheduled(ctx, s.id, state, delay)
	s.deliver(gen, func() {
		if s.cb.OnRetry != nil {
			s.cb.OnRetry(state, delay)
		}
	})
}

// failAndUnlock ends the run with a Failure; s.mu must be held and is released
func (s *Sequence[T]) failAndUnlock(gen uint64, ctx context.Context, state AttemptState, err error, permanent bool) {
	failure := newFailure(state, s.policy, err, permanent)
	s.status = StatusFailed
	unsubscribe := s.haltLocked()
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.c.updateStats(func(st *Stats) { st.TotalFailures++ })
	s.c.handler.OnMaxAttemptsReached(context.WithoutCancel(ctx), s.id, failure)
	s.deliver(gen, func() {
		if s.cb.OnFailure != nil {
			s.cb.OnFailure(failure)
		}
	})
}

// suspendAndUnlock parks the run until the network is back; s.mu must be held
// and is released
func (s *Sequence[T]) suspendAndUnlock(gen uint64, ctx context.Context, state AttemptState) {
	s.status = StatusSuspended
	s.suspendLocked(gen)
	s.mu.Unlock()

	s.c.updateStats(func(st *Stats) { st.TotalSuspends++ })
	s.c.handler.OnSuspended(ctx, s.id, state)
	s.deliver(gen, func() {
		if s.cb.OnSuspend != nil {
			s.cb.OnSuspend(state)
		}
	})
	s.recheckConnectivity(gen)
}

// invoke runs the operation, turning a panic into an error
func (s *Sequence[T]) invoke(ctx context.Context) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return s.op(ctx)
}

// suspendLocked waits for a restored transition; s.mu must be held
func (s *Sequence[T]) suspendLocked(gen uint64) {
	s.unsubscribe = s.c.network.Subscribe(func(tr network.Transition) {
		if tr.To != network.Offline {
			s.resume(gen)
		}
	})
}

// recheckConnectivity covers a restore that happened before the subscription existed
func (s *Sequence[T]) recheckConnectivity(gen uint64) {
	if !s.c.offline() {
		s.resume(gen)
	}
}

// resume restarts attempts immediately; time spent offline does not count as backoff
func (s *Sequence[T]) resume(gen uint64) {
	s.mu.Lock()
	if s.gen.Load() != gen || s.status != StatusSuspended {
		s.mu.Unlock()
		return
	}
	s.status = StatusRunning
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	ctx := s.ctx
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.c.handler.OnResumed(ctx, s.id, s.tracker.State())
	go s.attempt(gen, true)
}
