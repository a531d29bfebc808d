// Package preview loads document previews over unreliable networks: signed
// resource URLs are fetched through a retry coordinator, and long-running
// analysis jobs are polled under a stuck-operation watchdog.
package preview

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jzx17/resilience/pkg/retry"
)

// ErrEmptyPath is returned for a load without a storage path
var ErrEmptyPath = errors.New("empty resource path")

// URLProvider issues a time-limited URL for a stored file
type URLProvider interface {
	ResourceURL(ctx context.Context, path string) (string, error)
}

// URLProviderFunc adapts a function to URLProvider
type URLProviderFunc func(ctx context.Context, path string) (string, error)

// ResourceURL calls f(ctx, path)
func (f URLProviderFunc) ResourceURL(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Loader fetches preview URLs, retrying transient failures
type Loader struct {
	provider URLProvider
	coord    *retry.Coordinator
	logger   *slog.Logger
	seqOpts  []retry.SequenceOption
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithLoaderPolicy overrides the coordinator policy for preview loads
func WithLoaderPolicy(p retry.Policy) LoaderOption {
	return func(l *Loader) {
		l.seqOpts = append(l.seqOpts, retry.WithPolicy(p))
	}
}

// NewLoader creates a loader that resolves URLs with provider
func NewLoader(provider URLProvider, coord *retry.Coordinator, opts ...LoaderOption) *Loader {
	l := &Loader{
		provider: provider,
		coord:    coord,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns a URL for path, blocking through retries. Giving up returns a
// *retry.Failure with the attempt history.
func (l *Loader) Load(ctx context.Context, path string) (string, error) {
	path, err := cleanPath(path)
	if err != nil {
		return "", err
	}

	url, err := retry.Execute(l.coord, ctx, l.operation(path), l.options()...)
	if err != nil {
		l.logger.Warn("Preview load failed", "path", path, "error", err)
		return "", err
	}
	l.logger.Debug("Preview URL loaded", "path", path)
	return url, nil
}

// Start loads path in the background. The returned sequence drives a
// "Retrying (n)" indicator and a manual retry button.
func (l *Loader) Start(ctx context.Context, path string, cb retry.Callbacks[string]) (*retry.Sequence[string], error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	return retry.Start(l.coord, ctx, l.operation(path), cb, l.options()...)
}

func (l *Loader) operation(path string) retry.Operation[string] {
	return func(ctx context.Context) (string, error) {
		return l.provider.ResourceURL(ctx, path)
	}
}

func (l *Loader) options() []retry.SequenceOption {
	return append([]retry.SequenceOption{retry.WithName("preview")}, l.seqOpts...)
}

func cleanPath(path string) (string, error) {
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return "", ErrEmptyPath
	}
	return path, nil
}
