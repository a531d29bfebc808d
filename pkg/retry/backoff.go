// Package retry provides backoff algorithm implementations
package retry

import (
	"math/rand/v2"
	"sync"
	"time"
)

// JitterSource returns a pseudo-random value in [0, n)
type JitterSource func(n int64) int64

// Scheduler computes the delay before the next attempt
type Scheduler struct {
	mu     sync.Mutex
	jitter JitterSource
}

// NewScheduler creates a scheduler; a nil source uses math/rand
func NewScheduler(source JitterSource) *Scheduler {
	if source == nil {
		source = rand.Int64N
	}
	return &Scheduler{jitter: source}
}

var defaultScheduler = NewScheduler(nil)

// NextDelay returns min(MaxDelay, BaseDelay*2^attempt + rand[0, Jitter]).
// attempt is the number of failures so far and must not be negative.
func NextDelay(attempt int, p Policy) time.Duration {
	return defaultScheduler.NextDelay(attempt, p)
}

// NextDelay calculates the delay for the given failure count
func (s *Scheduler) NextDelay(attempt int, p Policy) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.MaxDelay <= 0 {
		return 0
	}

	delay := exponential(p.BaseDelay, attempt, p.MaxDelay)
	if delay >= p.MaxDelay {
		return p.MaxDelay
	}

	if p.Jitter > 0 {
		delay += s.randomJitter(p.Jitter)
	}

	// limit maximum delay
	if delay > p.MaxDelay || delay < 0 {
		delay = p.MaxDelay
	}
	return delay
}

// randomJitter returns a value in [0, jitter]
func (s *Scheduler) randomJitter(jitter time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.jitter(int64(jitter) + 1))
}

// exponential computes base*2^attempt, saturating at limit instead of overflowing
func exponential(base time.Duration, attempt int, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if delay > limit/2 {
			return limit
		}
		delay *= 2
	}
	return delay
}
