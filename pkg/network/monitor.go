package network

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jzx17/resilience/pkg/types"
	"go.uber.org/atomic"
)

// Config holds the probing schedule and thresholds
type Config struct {
	// HealthyInterval is the probe period while online or offline
	HealthyInterval time.Duration `yaml:"healthy_interval"`
	// LimitedInterval is the faster probe period while limited
	LimitedInterval time.Duration `yaml:"limited_interval"`
	// ProbeTimeout bounds a single probe
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// LatencyThreshold is the round trip above which the network counts as limited
	LatencyThreshold time.Duration `yaml:"latency_threshold"`
}

// DefaultConfig returns the standard probing schedule
func DefaultConfig() Config {
	return Config{
		HealthyInterval:  30 * time.Second,
		LimitedInterval:  10 * time.Second,
		ProbeTimeout:     5 * time.Second,
		LatencyThreshold: 2 * time.Second,
	}
}

// Monitor owns the process-wide network state. It combines link events
// (HandleOnline/HandleOffline) with periodic liveness probes. Consumers read the
// state or subscribe to transitions; only the monitor writes it.
type Monitor struct {
	cfg     Config
	prober  Prober
	link    LinkChecker
	clock   types.Clock
	logger  *slog.Logger
	metrics *Metrics

	running *atomic.Bool

	// notifyMu keeps transitions delivered in the order they happened
	notifyMu sync.Mutex

	mu        sync.Mutex
	state     State
	linkUp    bool
	gen       uint64 // bumped by every offline event, invalidates in-flight probes
	lastRTT   time.Duration
	lastProbe time.Time
	lastError string
	timer     types.Timer
	ctx       context.Context
	cancel    context.CancelFunc
	stopped   chan struct{} // closed by Stop, wakes WaitOnline
	subs      map[uint64]func(Transition)
	nextSub   uint64
}

// Option is a configuration option for the monitor
type Option func(*Monitor)

// WithConfig sets the probing schedule
func WithConfig(cfg Config) Option {
	return func(m *Monitor) {
		m.cfg = cfg
	}
}

// WithLinkChecker sets the link-level connectivity source
func WithLinkChecker(link LinkChecker) Option {
	return func(m *Monitor) {
		m.link = link
	}
}

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithMetrics records state and probe latency
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// NewMonitor creates a monitor that probes with prober
func NewMonitor(prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:     DefaultConfig(),
		prober:  prober,
		logger:  slog.Default(),
		running: atomic.NewBool(false),
		linkUp:  true,
		stopped: make(chan struct{}),
		subs:    make(map[uint64]func(Transition)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.clock = types.OrReal(m.clock)
	return m
}

// Start initializes the state from the link checker and begins periodic probing.
// Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CAS(false, true) {
		return nil
	}

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	select {
	case <-m.stopped:
		m.stopped = make(chan struct{})
	default:
	}
	var (
		tr      Transition
		changed bool
	)
	if !m.linkOnline() {
		m.gen++
		tr, changed = m.transitionLocked(Offline)
	}
	state := m.state
	m.armLocked()
	m.mu.Unlock()

	m.metrics.observeState(state)
	m.logger.Info("Network monitor started", "state", state.String(),
		"interval", m.cfg.HealthyInterval)
	if changed {
		m.notify(tr)
	}
	return nil
}

// Stop ends periodic probing. Subscriptions stay registered.
func (m *Monitor) Stop() {
	if !m.running.CAS(true, false) {
		return
	}

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	close(m.stopped)
	m.mu.Unlock()

	m.logger.Info("Network monitor stopped")
}

// State returns the current network state
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the state together with the last probe results
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:     m.state,
		Running:   m.running.Load(),
		LastRTT:   m.lastRTT,
		LastProbe: m.lastProbe,
		LastError: m.lastError,
	}
}

// Subscribe registers fn for every transition. fn runs on the goroutine that
// caused the transition and may call the returned unsubscribe.
func (m *Monitor) Subscribe(fn func(Transition)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
		})
	}
}

// WaitOnline blocks until the state is not offline, the monitor stops or ctx ends
func (m *Monitor) WaitOnline(ctx context.Context) error {
	restored := make(chan struct{})
	var once sync.Once
	unsubscribe := m.Subscribe(func(tr Transition) {
		if tr.To != Offline {
			once.Do(func() { close(restored) })
		}
	})
	defer unsubscribe()

	m.mu.Lock()
	state, stopped := m.state, m.stopped
	m.mu.Unlock()
	if state != Offline {
		return nil
	}

	select {
	case <-restored:
		return nil
	case <-stopped:
		return types.ErrMonitorStopped
	case <-ctx.Done():
		return fmt.Errorf("waiting for connectivity: %w", ctx.Err())
	}
}

// HandleOffline records a link-down event. The state becomes offline before it
// returns and any probe still in flight is discarded.
func (m *Monitor) HandleOffline() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	m.gen++
	m.linkUp = false
	tr, changed := m.transitionLocked(Offline)
	m.mu.Unlock()

	if changed {
		m.logger.Warn("Network offline")
		m.notify(tr)
	}
}

// HandleOnline records a link-up event and probes immediately. It blocks for
// at most the probe timeout.
func (m *Monitor) HandleOnline(ctx context.Context) {
	m.mu.Lock()
	m.linkUp = true
	m.mu.Unlock()

	m.check(ctx)

	m.mu.Lock()
	m.armLocked()
	m.mu.Unlock()
}

// Check runs one probe cycle now
func (m *Monitor) Check(ctx context.Context) State {
	m.check(ctx)
	return m.State()
}

func (m *Monitor) tick() {
	if !m.running.Load() {
		return
	}

	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()

	m.check(ctx)

	m.mu.Lock()
	m.armLocked()
	m.mu.Unlock()
}

// armLocked schedules the next probe from the current state; m.mu must be held
func (m *Monitor) armLocked() {
	if !m.running.Load() {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	interval := m.cfg.HealthyInterval
	if m.state == Limited {
		interval = m.cfg.LimitedInterval
	}
	m.timer = m.clock.AfterFunc(interval, m.tick)
}

// linkOnline reports link-level connectivity; m.mu must be held
func (m *Monitor) linkOnline() bool {
	return m.linkUp && (m.link == nil || m.link.Online())
}

// check probes once and applies the result. Probe failures never escape.
func (m *Monitor) check(ctx context.Context) {
	m.mu.Lock()
	gen := m.gen
	online := m.linkOnline()
	m.mu.Unlock()

	if !online {
		m.apply(gen, Offline, 0, nil)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	rtt, err := m.safeProbe(probeCtx)
	cancel()

	next := Online
	if err != nil || rtt > m.cfg.LatencyThreshold {
		next = Limited
	}
	m.metrics.observeProbe(rtt, err)
	m.apply(gen, next, rtt, err)
}

func (m *Monitor) safeProbe(ctx context.Context) (rtt time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	if m.prober == nil {
		return 0, nil
	}
	return m.prober.Probe(ctx)
}

// apply sets the probe outcome unless an offline event happened meanwhile
func (m *Monitor) apply(gen uint64, next State, rtt time.Duration, probeErr error) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		m.logger.Debug("Discarding stale probe result", "state", next.String())
		return
	}
	if next != Offline {
		m.lastProbe = m.clock.Now()
		if probeErr != nil {
			m.lastError = probeErr.Error()
		} else {
			m.lastRTT = rtt
			m.lastError = ""
		}
	}
	tr, changed := m.transitionLocked(next)
	m.mu.Unlock()

	if !changed {
		return
	}
	switch {
	case probeErr != nil:
		m.logger.Warn("Network limited", "error", probeErr)
	case next == Limited:
		m.logger.Warn("Network limited", "rtt", rtt, "threshold", m.cfg.LatencyThreshold)
	case tr.Restored:
		m.logger.Info("Network restored", "state", next.String(), "rtt", rtt)
	default:
		m.logger.Info("Network state changed", "from", tr.From.String(), "to", next.String())
	}
	m.notify(tr)
}

// transitionLocked moves to next; m.mu must be held
func (m *Monitor) transitionLocked(next State) (Transition, bool) {
	prev := m.state
	if prev == next {
		return Transition{}, false
	}
	m.state = next
	m.metrics.observeTransition(prev, next)
	return Transition{
		From:     prev,
		To:       next,
		At:       m.clock.Now(),
		Restored: prev == Offline,
	}, true
}

// notify delivers tr to subscribers in registration order; m.notifyMu must be held
func (m *Monitor) notify(tr Transition) {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Transition), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(tr)
	}
}
