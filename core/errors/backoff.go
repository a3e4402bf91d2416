package errors

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy configures exponential backoff between retry attempts.
type BackoffPolicy struct {
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the growth factor per attempt (default 2.0).
	Multiplier float64 `yaml:"multiplier"`

	// JitterPercent is the random jitter applied to each delay (0.1 = ±10%).
	JitterPercent float64 `yaml:"jitter_percent"`
}

// DefaultBackoffPolicy returns the default retry backoff.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.1,
	}
}

// Delay computes the backoff before the given attempt: the second attempt
// waits BaseDelay and each further attempt multiplies it, capped at MaxDelay.
// Attempt 1 is the first invocation and has no delay.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	factor := math.Pow(multiplier, float64(attempt-2))
	delay := time.Duration(float64(p.BaseDelay) * factor)
	return capDelay(delay, p.MaxDelay)
}

// DelayWithJitter computes the backoff and applies the policy's jitter.
// Jitter only ever extends the delay so the exponential lower bound holds.
func (p BackoffPolicy) DelayWithJitter(attempt int) time.Duration {
	delay := p.Delay(attempt)
	if delay <= 0 || p.JitterPercent <= 0 {
		return delay
	}

	jitter := time.Duration(rand.Float64() * p.JitterPercent * float64(delay))
	return capDelay(delay+jitter, p.MaxDelay)
}

func capDelay(delay, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}
