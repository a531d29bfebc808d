package retry

import (
	"fmt"
	"strings"
	"time"

	"github.com/jzx17/resilience/pkg/classify"
)

// Failure is the terminal error of a retry sequence. It carries everything a
// caller needs to render a diagnostic message.
type Failure struct {
	AttemptCount  int
	MaxAttempts   int
	LastAttempt   time.Time
	LastErrorKind classify.Kind
	ErrorStack    []string
	// Permanent is set when the operation asked not to be retried
	Permanent bool
	// Err is the error returned by the last attempt
	Err error
}

func newFailure(state AttemptState, p Policy, err error, permanent bool) *Failure {
	return &Failure{
		AttemptCount:  state.AttemptCount,
		MaxAttempts:   p.MaxAttempts,
		LastAttempt:   state.LastAttemptTime,
		LastErrorKind: state.LastErrorKind,
		ErrorStack:    state.ErrorHistory,
		Permanent:     permanent,
		Err:           err,
	}
}

// Error implements the error interface
func (f *Failure) Error() string {
	return fmt.Sprintf("giving up after %d/%d attempts (%s): %v",
		f.AttemptCount, f.MaxAttempts, f.LastErrorKind, f.Err)
}

// Unwrap returns the last attempt's error
func (f *Failure) Unwrap() error {
	return f.Err
}

// Diagnostics renders the failure as a multi-line message for support output
func (f *Failure) Diagnostics() string {
	var b strings.Builder
	fmt.Fprintf(&b, "attempts: %d of %d\n", f.AttemptCount, f.MaxAttempts)
	if !f.LastAttempt.IsZero() {
		fmt.Fprintf(&b, "last attempt: %s\n", f.LastAttempt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "last error kind: %s\n", f.LastErrorKind)
	for i, msg := range f.ErrorStack {
		fmt.Fprintf(&b, "  #%d %s\n", i+1, msg)
	}
	return b.String()
}
