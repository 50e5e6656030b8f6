package classify

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff multipliers per classification. Usage limits reset on longer
// cycles than rate limits, so they back off more aggressively.
const (
	usageLimitMultiplier = 2.0
	rateLimitMultiplier  = 1.5

	transientMaxRetries = 2
)

// Policy decides whether a classified failure is retried and how long
// to wait before the next attempt.
type Policy struct {
	MaxAttempts    int           // retry ceiling for rate/usage limits
	BaseDelay      time.Duration // first backoff interval
	TransientDelay time.Duration // fixed delay for transient retries
	UsageLimitCap  time.Duration // backoff ceiling for usage limits
	DefaultCap     time.Duration // backoff ceiling for everything else
	Jitter         bool          // add ±0-30% randomization to delays
}

// DefaultPolicy mirrors the observed production settings: usage-limit
// waits of up to 5 hours, everything else capped at 15 minutes.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		BaseDelay:      30 * time.Second,
		TransientDelay: 5 * time.Second,
		UsageLimitCap:  5 * time.Hour,
		DefaultCap:     15 * time.Minute,
		Jitter:         true,
	}
}

// ShouldRetry reports whether another attempt is allowed. attempt is
// zero-based: attempt 0 is the first failure.
//
// Fatal errors halt the task immediately. Timeouts are task-specific
// and surface immediately as well. Transient failures get at most two
// retries regardless of MaxAttempts.
func (p Policy) ShouldRetry(class Classification, attempt int) bool {
	switch class {
	case Fatal, Timeout:
		return false
	case RateLimit, UsageLimit:
		return attempt < p.MaxAttempts
	default:
		limit := transientMaxRetries
		if p.MaxAttempts < limit {
			limit = p.MaxAttempts
		}
		return attempt < limit
	}
}

// Delay computes the wait before retry number attempt (zero-based).
// Rate/usage limits follow BaseDelay * multiplier^attempt, jittered
// when enabled, clamped to the classification's ceiling. Transient
// failures use the short fixed delay. Non-retryable classes return 0.
func (p Policy) Delay(class Classification, attempt int) time.Duration {
	switch class {
	case Fatal, Timeout:
		return 0
	case RateLimit, UsageLimit:
		return p.exponential(class, attempt)
	default:
		return p.TransientDelay
	}
}

func (p Policy) exponential(class Classification, attempt int) time.Duration {
	ceiling := p.DefaultCap
	multiplier := rateLimitMultiplier
	if class == UsageLimit {
		ceiling = p.UsageLimitCap
		multiplier = usageLimitMultiplier
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.Multiplier = multiplier
	bo.MaxInterval = ceiling
	bo.MaxElapsedTime = 0 // the policy, not elapsed time, bounds retries
	bo.RandomizationFactor = 0
	if p.Jitter {
		bo.RandomizationFactor = 0.3
	}
	bo.Reset()

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = bo.NextBackOff()
	}
	if d > ceiling {
		d = ceiling
	}
	return d
}
