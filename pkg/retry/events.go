package retry

import (
	"context"
	"log/slog"
	"time"
)

// EventHandler handles retry events. Implementations must not block.
type EventHandler interface {
	OnRetryScheduled(ctx context.Context, seq string, state AttemptState, delay time.Duration)
	OnSuspended(ctx context.Context, seq string, state AttemptState)
	OnResumed(ctx context.Context, seq string, state AttemptState)
	OnRetrySuccess(ctx context.Context, seq string, attempts int, duration time.Duration)
	OnMaxAttemptsReached(ctx context.Context, seq string, failure *Failure)
}

// LogEventHandler logs retry events with slog
type LogEventHandler struct {
	logger *slog.Logger
}

// NewLogEventHandler creates a logging event handler, nil uses slog.Default()
func NewLogEventHandler(logger *slog.Logger) *LogEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventHandler{logger: logger}
}

// OnRetryScheduled handles retry attempt events
func (h *LogEventHandler) OnRetryScheduled(ctx context.Context, seq string, state AttemptState, delay time.Duration) {
	h.logger.DebugContext(ctx, "Retry scheduled",
		"sequence", seq,
		"attempt", state.AttemptCount,
		"kind", state.LastErrorKind.String(),
		"delay", delay)
}

// OnSuspended handles offline suspension events
func (h *LogEventHandler) OnSuspended(ctx context.Context, seq string, state AttemptState) {
	h.logger.InfoContext(ctx, "Retry suspended while offline",
		"sequence", seq,
		"attempt", state.AttemptCount)
}

// OnResumed handles resumption after connectivity returns
func (h *LogEventHandler) OnResumed(ctx context.Context, seq string, state AttemptState) {
	h.logger.InfoContext(ctx, "Retry resumed after connectivity restored",
		"sequence", seq,
		"attempt", state.AttemptCount)
}

// OnRetrySuccess handles retry success events
func (h *LogEventHandler) OnRetrySuccess(ctx context.Context, seq string, attempts int, duration time.Duration) {
	if attempts <= 1 {
		return
	}
	h.logger.InfoContext(ctx, "Retry succeeded",
		"sequence", seq,
		"attempts", attempts,
		"duration", duration)
}

// OnMaxAttemptsReached handles terminal failures
func (h *LogEventHandler) OnMaxAttemptsReached(ctx context.Context, seq string, failure *Failure) {
	h.logger.WarnContext(ctx, "Giving up",
		"sequence", seq,
		"attempts", failure.AttemptCount,
		"max_attempts", failure.MaxAttempts,
		"kind", failure.LastErrorKind.String(),
		"permanent", failure.Permanent,
		"error", failure.Err)
}

// MultiEventHandler fans events out to several handlers in order
type MultiEventHandler []EventHandler

// OnRetryScheduled forwards to every handler
func (m MultiEventHandler) OnRetryScheduled(ctx context.Context, seq string, state AttemptState, delay time.Duration) {
	for _, h := range m {
		h.OnRetryScheduled(ctx, seq, state, delay)
	}
}

// OnSuspended forwards to every handler
func (m MultiEventHandler) OnSuspended(ctx context.Context, seq string, state AttemptState) {
	for _, h := range m {
		h.OnSuspended(ctx, seq, state)
	}
}

// OnResumed forwards to every handler
func (m MultiEventHandler) OnResumed(ctx context.Context, seq string, state AttemptState) {
	for _, h := range m {
		h.OnResumed(ctx, seq, state)
	}
}

// OnRetrySuccess forwards to every handler
func (m MultiEventHandler) OnRetrySuccess(ctx context.Context, seq string, attempts int, duration time.Duration) {
	for _, h := range m {
		h.OnRetrySuccess(ctx, seq, attempts, duration)
	}
}

// OnMaxAttemptsReached forwards to every handler
func (m MultiEventHandler) OnMaxAttemptsReached(ctx context.Context, seq string, failure *Failure) {
	for _, h := range m {
		h.OnMaxAttemptsReached(ctx, seq, failure)
	}
}
