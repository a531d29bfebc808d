// Package stuck flags long-running asynchronous operations that have exceeded an
// expected duration. It only observes: it never cancels or retries the operation.
package stuck

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jzx17/resilience/pkg/types"
)

// State is the detector lifecycle
type State int

const (
	// Idle means no operation is tracked
	Idle State = iota
	// Tracking means an operation is running within its threshold
	Tracking
	// Stuck means the tracked operation has exceeded its threshold
	Stuck
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	case Stuck:
		return "stuck"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the detector
type Status struct {
	State     State
	StartedAt time.Time     // zero while idle
	Elapsed   time.Duration // measured at the last check
	IsStuck   bool
	// MinutesStuck is the whole minutes elapsed when the last check ran
	MinutesStuck int
}

// Config holds the watchdog timing
type Config struct {
	Threshold     time.Duration `yaml:"threshold"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// DefaultConfig flags operations after two minutes, checking every ten seconds
func DefaultConfig() Config {
	return Config{
		Threshold:     2 * time.Minute,
		CheckInterval: 10 * time.Second,
	}
}

// Detector is a time-based watchdog for a single operation
type Detector struct {
	cfg     Config
	clock   types.Clock
	logger  *slog.Logger
	onStuck func(Status)

	mu        sync.Mutex
	state     State
	startedAt time.Time
	elapsed   time.Duration
	minutes   int
	session   uint64
	timer     types.Timer
}

// Option is a configuration option for the detector
type Option func(*Detector)

// WithConfig sets threshold and check interval
func WithConfig(cfg Config) Option {
	return func(d *Detector) {
		d.cfg = cfg
	}
}

// WithThreshold sets the duration after which the operation counts as stuck
func WithThreshold(threshold time.Duration) Option {
	return func(d *Detector) {
		d.cfg.Threshold = threshold
	}
}

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) Option {
	return func(d *Detector) {
		d.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// OnStuck registers fn, called once per tracking session when it becomes stuck
func OnStuck(fn func(Status)) Option {
	return func(d *Detector) {
		d.onStuck = fn
	}
}

// NewDetector creates an idle detector. A non-positive check interval falls
// back to the default.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		cfg:    DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cfg.CheckInterval <= 0 {
		d.cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	d.clock = types.OrReal(d.clock)
	return d
}

// StartTracking records the start time and arms the periodic check.
// It is a no-op unless the detector is idle.
func (d *Detector) StartTracking() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Idle {
		return
	}
	d.state = Tracking
	d.startedAt = d.clock.Now()
	d.elapsed = 0
	d.minutes = 0
	d.session++
	d.armLocked(d.session)
}

// StopTracking returns to idle from any state and clears the counters
func (d *Detector) StopTracking() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.session++
	d.state = Idle
	d.startedAt = time.Time{}
	d.elapsed = 0
	d.minutes = 0
}

// Restart stops tracking and starts a fresh session
func (d *Detector) Restart() {
	d.StopTracking()
	d.StartTracking()
}

// Check evaluates the elapsed time immediately
func (d *Detector) Check() Status {
	d.mu.Lock()
	status, fire := d.checkLocked()
	d.mu.Unlock()

	if fire {
		d.fireStuck(status)
	}
	return status
}

// Status returns the result of the last check
func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusLocked()
}

// IsStuck reports whether the tracked operation has been flagged
func (d *Detector) IsStuck() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == Stuck
}

func (d *Detector) armLocked(session uint64) {
	d.timer = d.clock.AfterFunc(d.cfg.CheckInterval, func() {
		d.tick(session)
	})
}

func (d *Detector) tick(session uint64) {
	d.mu.Lock()
	if session != d.session {
		d.mu.Unlock()
		return
	}
	status, fire := d.checkLocked()
	d.armLocked(session)
	d.mu.Unlock()

	if fire {
		d.fireStuck(status)
	}
}

// checkLocked updates elapsed time; fire is set on the tracking to stuck edge
func (d *Detector) checkLocked() (status Status, fire bool) {
	if d.state == Idle {
		return d.statusLocked(), false
	}

	d.elapsed = d.clock.Since(d.startedAt)
	d.minutes = int(d.elapsed / time.Minute)
	if d.state == Tracking && d.elapsed >= d.cfg.Threshold {
		d.state = Stuck
		fire = true
	}
	return d.statusLocked(), fire
}

func (d *Detector) statusLocked() Status {
	status := Status{
		State:     d.state,
		StartedAt: d.startedAt,
		Elapsed:   d.elapsed,
		IsStuck:   d.state == Stuck,
	}
	if status.IsStuck {
		status.MinutesStuck = d.minutes
	}
	return status
}

func (d *Detector) fireStuck(status Status) {
	d.logger.Warn("Operation appears stuck",
		"elapsed", status.Elapsed,
		"threshold", d.cfg.Threshold)
	if d.onStuck != nil {
		d.onStuck(status)
	}
}
