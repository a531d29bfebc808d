package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/jzx17/resilience/pkg/types"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", p.BaseDelay)
	}
	if p.MaxDelay != 15*time.Second {
		t.Errorf("MaxDelay = %v, want 15s", p.MaxDelay)
	}
	if p.Jitter != 400*time.Millisecond {
		t.Errorf("Jitter = %v, want 400ms", p.Jitter)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
}

func TestNewPolicy_Options(t *testing.T) {
	p := NewPolicy(
		WithMaxAttempts(5),
		WithBaseDelay(500*time.Millisecond),
		WithMaxDelay(10*time.Second),
		WithJitter(0),
	)

	want := Policy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
	if p != want {
		t.Errorf("NewPolicy() = %+v, want %+v", p, want)
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"valid", DefaultPolicy(), false},
		{"single attempt", NewPolicy(WithMaxAttempts(1)), false},
		{"zero attempts", NewPolicy(WithMaxAttempts(0)), true},
		{"negative base", NewPolicy(WithBaseDelay(-time.Second)), true},
		{"negative jitter", NewPolicy(WithJitter(-time.Millisecond)), true},
		{"base above max", NewPolicy(WithBaseDelay(time.Minute)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, types.ErrInvalidPolicy) {
				t.Errorf("expected ErrInvalidPolicy, got %v", err)
			}
		})
	}
}
