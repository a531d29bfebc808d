package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageShape struct{ msg string }

func (m messageShape) Message() string { return m.msg }

type stringerShape struct{}

func (stringerShape) String() string { return "cors preflight failed" }

func TestNormalize(t *testing.T) {
	cause := errors.New("Failed to fetch")

	tests := []struct {
		name    string
		input   any
		message string
		kind    Kind
		cause   error
	}{
		{"string", "jwt expired", "jwt expired", Auth, nil},
		{"error", cause, "Failed to fetch", Network, cause},
		{"message carrier", messageShape{msg: "request timeout"}, "request timeout", Timeout, nil},
		{"stringer", stringerShape{}, "cors preflight failed", CORS, nil},
		{"other value", 42, "42", Other, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fault := Normalize(tt.input)
			require.NotNil(t, fault)
			assert.Equal(t, tt.message, fault.Message)
			assert.Equal(t, tt.kind, fault.Kind)
			assert.Equal(t, tt.cause, fault.Cause)
		})
	}
}

func TestNormalize_Nil(t *testing.T) {
	assert.Nil(t, Normalize(nil))
}

func TestNormalize_FaultPassThrough(t *testing.T) {
	fault := NewFault(Auth, "session expired", nil)
	assert.Same(t, fault, Normalize(fault))
}

func TestFault_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	fault := Normalize(cause)

	assert.ErrorIs(t, fault, cause)
	assert.Equal(t, "connection refused", fault.Error())
}
