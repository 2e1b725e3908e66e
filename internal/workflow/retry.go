package workflow

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds how long a labelled control is polled for. A
// Multiplier of 1 gives a fixed interval.
type RetryPolicy struct {
	Attempts    int
	Interval    time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	Jitter      bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, Interval: time.Second, Multiplier: 1.0}
}

// Delay returns the pause after failed attempt N (1-based).
func (p RetryPolicy) Delay(attempt int, rng *rand.Rand) time.Duration {
	if p.Interval <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	delay := float64(p.Interval) * math.Pow(mult, float64(attempt-1))
	if p.MaxInterval > 0 && delay > float64(p.MaxInterval) {
		delay = float64(p.MaxInterval)
	}
	if p.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
