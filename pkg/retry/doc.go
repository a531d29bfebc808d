// Package retry makes unreliable resource loads robust: fetching signed preview
// URLs, polling document analysis jobs, and similar calls that fail transiently.
//
// Key Features:
//
// 1. Backoff scheduling:
//   - delay = min(MaxDelay, BaseDelay*2^attempt + rand[0, Jitter])
//   - Injectable jitter source for deterministic tests
//
// 2. Attempt tracking:
//   - Attempt count, last attempt time, last error kind, error history
//   - Silent increments that leave the error history untouched
//
// 3. Retry coordination:
//   - Asynchronous sequences with cancellation and manual retry
//   - Suspension while the network monitor reports offline, resuming
//     immediately once connectivity returns
//   - Terminal *Failure carrying full diagnostics
//
// 4. Observability:
//   - EventHandler hooks with slog and Prometheus implementations
//   - Per-coordinator statistics
//
// Basic usage example:
//
//	coord, err := retry.NewCoordinator(retry.DefaultPolicy(),
//		retry.WithConnectivity(monitor))
//
//	url, err := retry.Execute(coord, ctx, func(ctx context.Context) (string, error) {
//		return provider.ResourceURL(ctx, "clients/42/form-47.pdf")
//	})
//
// Asynchronous usage with a UI indicator:
//
//	seq, err := retry.Start(coord, ctx, load, retry.Callbacks[string]{
//		OnRetry:   func(s retry.AttemptState, d time.Duration) { showRetrying(s.AttemptCount) },
//		OnSuccess: render,
//		OnFailure: func(f *retry.Failure) { showError(f.Diagnostics()) },
//	})
//	defer seq.Cancel()
//
// Error handling:
//
// Every failure is classified (network, auth, timeout, cors, other) for
// diagnostics only; all kinds are retried up to MaxAttempts. Wrap an error with
// types.Permanent to stop immediately.
//
// Thread safety:
//
// All public types and methods are safe for concurrent use. A tracker belongs to
// exactly one sequence.
package retry
