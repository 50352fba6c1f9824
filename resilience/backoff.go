package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig configures exponential backoff delays between retries of the
// same downstream target.
type BackoffConfig struct {
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Jitter adds randomness to each delay (0.0 to 1.0). Zero keeps delays
	// deterministic.
	Jitter float64
}

// DefaultBackoffConfig returns sensible defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
	}
}

// Delay computes the backoff before retrying after the given attempt
// (1-based): min(BaseDelay * 2^(attempt-1), MaxDelay).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	base := c.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := c.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	d := float64(base) * math.Pow(2, float64(attempt-1))

	if c.Jitter > 0 {
		jitterRange := d * c.Jitter
		d += (rand.Float64()*2 - 1) * jitterRange
	}

	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	if d < 0 {
		d = float64(base)
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is done, whichever comes first. The wait is
// a timer select, so one caller's backoff never blocks other goroutines.
func Sleep(ctx context.Context, d time.Duration) error {
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
