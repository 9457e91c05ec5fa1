package submission

import (
	"math/rand"
	"time"
)

// Default retry configuration. All of these are tunable via config; the
// defaults only apply when a knob is left unset.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 30 * time.Second
	DefaultMaxDelay    = time.Hour
	DefaultJitter      = 0.2
)

// BackoffPolicy computes retry delays: base * 2^attempt, capped at MaxDelay,
// with +/-Jitter applied so retries across tenants sharing a scheduling tick
// do not thunder in unison.
type BackoffPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter is the fractional spread, e.g. 0.2 for +/-20%
	Jitter float64
}

// DefaultBackoffPolicy returns the default retry schedule
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
		Jitter:    DefaultJitter,
	}
}

// Delay returns the wait before the given attempt number may run again
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = DefaultMaxDelay
	}

	// Shift overflows long before attempt counts get this high in practice;
	// clamp instead of trusting the exponent.
	d := max
	if attempt < 30 {
		d = base << uint(attempt)
		if d > max || d < 0 {
			d = max
		}
	}

	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread + rand.Float64()*2*spread)
	}
	return d
}
