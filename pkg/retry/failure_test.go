package retry

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jzx17/resilience/pkg/classify"
	"github.com/stretchr/testify/assert"
)

func TestFailure_Error(t *testing.T) {
	last := errors.New("jwt expired")
	f := newFailure(AttemptState{
		AttemptCount:    3,
		LastAttemptTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LastErrorKind:   classify.Auth,
		ErrorHistory:    []string{"network down", "jwt expired", "jwt expired"},
	}, NewPolicy(WithMaxAttempts(3)), last, false)

	assert.Equal(t, "giving up after 3/3 attempts (auth): jwt expired", f.Error())
	assert.ErrorIs(t, f, last)

	diag := f.Diagnostics()
	assert.True(t, strings.HasPrefix(diag, "attempts: 3 of 3\n"))
	assert.Contains(t, diag, "last attempt: 2026-03-01T12:00:00Z")
	assert.Contains(t, diag, "last error kind: auth")
	assert.Contains(t, diag, "  #1 network down\n")
	assert.Contains(t, diag, "  #3 jwt expired\n")
}
