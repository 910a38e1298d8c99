package supervisor

import (
	"math"
	"time"
)

// BackoffConfig holds the configuration for restart backoff.
type BackoffConfig struct {
	Initial time.Duration // first delay (default: 1s)
	Max     time.Duration // cap (default: 30s)
	Factor  float64       // multiplier per attempt (default: 2.0)
}

// DefaultBackoffConfig returns the restart policy defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial: 1 * time.Second,
		Max:     30 * time.Second,
		Factor:  2.0,
	}
}

// Backoff calculates exponential restart delays: 1s, 2s, 4s, … capped.
type Backoff struct {
	config   BackoffConfig
	attempts int
}

// NewBackoff creates a Backoff calculator.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{config: cfg}
}

// Next returns the next delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	delay := float64(b.config.Initial) * math.Pow(b.config.Factor, float64(b.attempts))
	if delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}
	return time.Duration(delay)
}

// Reset resets the attempt counter to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// stableRunThreshold is the minimum loop uptime before backoff resets.
// A loop that survived this long before crashing restarts from the
// initial delay rather than continuing the exponential ramp.
const stableRunThreshold = 30 * time.Second

// shouldReset determines if backoff should be reset based on how long
// the loop ran before failing.
func shouldReset(uptime time.Duration) bool {
	return uptime >= stableRunThreshold
}
