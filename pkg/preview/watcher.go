package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jzx17/resilience/pkg/retry"
	"github.com/jzx17/resilience/pkg/stuck"
	"github.com/jzx17/resilience/pkg/types"
	"go.uber.org/atomic"
)

var (
	// ErrAnalysisFailed is returned when the analysis job itself reports failure
	ErrAnalysisFailed = errors.New("document analysis failed")

	// ErrAlreadyWatching is returned when Watch is called while another job is watched
	ErrAlreadyWatching = errors.New("analysis watcher already running")
)

// JobStatus is the server-side state of an analysis job
type JobStatus string

// Analysis job states reported by the status endpoint
const (
	// JobPending is queued and not started
	JobPending JobStatus = "pending"
	// JobProcessing is running
	JobProcessing JobStatus = "processing"
	// JobCompleted finished successfully
	JobCompleted JobStatus = "completed"
	// JobFailed finished with an error
	JobFailed JobStatus = "failed"
)

// Done reports whether the job will not change anymore
func (s JobStatus) Done() bool {
	return s == JobCompleted || s == JobFailed
}

// StatusFunc fetches the current status of an analysis job
type StatusFunc func(ctx context.Context, jobID string) (JobStatus, error)

// Update is delivered after every successful poll
type Update struct {
	JobID  string
	Status JobStatus
	Stuck  stuck.Status
}

// AnalysisWatcher polls an analysis job until it finishes. Failed polls are
// retried through the coordinator; a stuck detector runs while the job is pending.
type AnalysisWatcher struct {
	poll     StatusFunc
	coord    *retry.Coordinator
	detector *stuck.Detector
	clock    types.Clock
	interval time.Duration
	logger   *slog.Logger
	onUpdate func(Update)

	stuckCfg stuck.Config
	onStuck  func(stuck.Status)

	watching *atomic.Bool
}

// WatcherOption configures an AnalysisWatcher
type WatcherOption func(*AnalysisWatcher)

// WithPollInterval sets the time between status polls
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *AnalysisWatcher) {
		w.interval = d
	}
}

// WithWatcherClock sets the clock for polling and the stuck detector
func WithWatcherClock(clock types.Clock) WatcherOption {
	return func(w *AnalysisWatcher) {
		w.clock = clock
	}
}

// WithWatcherLogger sets the logger
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *AnalysisWatcher) {
		w.logger = logger
	}
}

// WithStuckConfig sets the stuck detector timing
func WithStuckConfig(cfg stuck.Config) WatcherOption {
	return func(w *AnalysisWatcher) {
		w.stuckCfg = cfg
	}
}

// OnUpdate registers fn for every successful poll
func OnUpdate(fn func(Update)) WatcherOption {
	return func(w *AnalysisWatcher) {
		w.onUpdate = fn
	}
}

// OnAnalysisStuck registers fn, called when the job has been pending too long
func OnAnalysisStuck(fn func(stuck.Status)) WatcherOption {
	return func(w *AnalysisWatcher) {
		w.onStuck = fn
	}
}

// NewAnalysisWatcher creates a watcher polling with poll
func NewAnalysisWatcher(poll StatusFunc, coord *retry.Coordinator, opts ...WatcherOption) *AnalysisWatcher {
	w := &AnalysisWatcher{
		poll:     poll,
		coord:    coord,
		interval: 5 * time.Second,
		logger:   slog.Default(),
		stuckCfg: stuck.DefaultConfig(),
		watching: atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.clock = types.OrReal(w.clock)

	detectorOpts := []stuck.Option{
		stuck.WithConfig(w.stuckCfg),
		stuck.WithClock(w.clock),
		stuck.WithLogger(w.logger),
	}
	if w.onStuck != nil {
		detectorOpts = append(detectorOpts, stuck.OnStuck(w.onStuck))
	}
	w.detector = stuck.NewDetector(detectorOpts...)
	return w
}

// Watch polls jobID until it completes, fails, polling gives up or ctx ends
func (w *AnalysisWatcher) Watch(ctx context.Context, jobID string) (JobStatus, error) {
	if !w.watching.CAS(false, true) {
		return "", ErrAlreadyWatching
	}
	defer w.watching.Store(false)

	w.detector.StartTracking()
	defer w.detector.StopTracking()

	for {
		// the next poll is due one interval after this one started
		due := make(chan struct{})
		timer := w.clock.AfterFunc(w.interval, func() { close(due) })

		status, err := retry.Execute(w.coord, ctx, func(ctx context.Context) (JobStatus, error) {
			return w.poll(ctx, jobID)
		}, retry.WithName("analysis"))
		if err != nil {
			timer.Stop()
			return "", fmt.Errorf("polling analysis %s: %w", jobID, err)
		}

		if w.onUpdate != nil {
			w.onUpdate(Update{JobID: jobID, Status: status, Stuck: w.detector.Status()})
		}

		switch status {
		case JobCompleted:
			timer.Stop()
			w.logger.Info("Analysis completed", "job", jobID)
			return status, nil
		case JobFailed:
			timer.Stop()
			return status, fmt.Errorf("%w: job %s", ErrAnalysisFailed, jobID)
		}

		select {
		case <-due:
		case <-ctx.Done():
			timer.Stop()
			return status, ctx.Err()
		}
	}
}

// Restart clears the stuck flag and restarts the watchdog, as after the user
// restarts a slow analysis
func (w *AnalysisWatcher) Restart() {
	if !w.watching.Load() {
		return
	}
	w.detector.Restart()
}

// Stuck returns the watchdog status of the current job
func (w *AnalysisWatcher) Stuck() stuck.Status {
	return w.detector.Status()
}
