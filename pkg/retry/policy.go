// Package retry provides retry mechanism strategies and implementations
package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/jzx17/resilience/pkg/types"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 15 * time.Second
	defaultJitter      = 400 * time.Millisecond
)

// Policy defines how many attempts a load gets and how long to wait between them
type Policy struct {
	// MaxAttempts is the number of failures tolerated before giving up
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelay is the delay unit doubled on every failure
	BaseDelay time.Duration `yaml:"base_delay"`
	// MaxDelay caps every computed delay
	MaxDelay time.Duration `yaml:"max_delay"`
	// Jitter is the upper bound of the random delay added to each backoff
	Jitter time.Duration `yaml:"jitter"`
}

// DefaultPolicy returns the policy used for preview URL loads
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Jitter:      defaultJitter,
	}
}

// NewPolicy creates a policy from the defaults with options applied
func NewPolicy(opts ...PolicyOption) Policy {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Validate reports every field that cannot be scheduled
func (p Policy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("base delay must not be negative, got %v", p.BaseDelay))
	}
	if p.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("max delay must not be negative, got %v", p.MaxDelay))
	}
	if p.Jitter < 0 {
		errs = append(errs, fmt.Errorf("jitter must not be negative, got %v", p.Jitter))
	}
	if p.BaseDelay > p.MaxDelay {
		errs = append(errs, fmt.Errorf("base delay %v exceeds max delay %v", p.BaseDelay, p.MaxDelay))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", types.ErrInvalidPolicy, errors.Join(errs...))
	}
	return nil
}

// PolicyOption is a configuration option for retry policies
type PolicyOption func(*Policy)

// WithMaxAttempts sets the number of tolerated failures
func WithMaxAttempts(n int) PolicyOption {
	return func(p *Policy) {
		p.MaxAttempts = n
	}
}

// WithBaseDelay sets the backoff unit
func WithBaseDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.BaseDelay = d
	}
}

// WithMaxDelay sets the maximum delay time
func WithMaxDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.MaxDelay = d
	}
}

// WithJitter sets the jitter upper bound, zero disables jitter
func WithJitter(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.Jitter = d
	}
}
