package resilience

import (
	"errors"
	"sync"
	"time"
)

// Common rate limiter errors.
var (
	ErrRateLimited = errors.New("rate limit exceeded")
)

// SlidingWindowConfig configures a sliding-window rate limiter.
type SlidingWindowConfig struct {
	// Name identifies this limiter for metrics/logging.
	Name string
	// Limit is the maximum number of admitted calls within Window.
	Limit int
	// Window is the sliding time window.
	Window time.Duration
	// OnLimit is called when a call is denied.
	OnLimit func(name string)

	// now is overridable for tests.
	now func() time.Time
}

// DefaultSlidingWindowConfig returns sensible defaults.
func DefaultSlidingWindowConfig(name string) SlidingWindowConfig {
	return SlidingWindowConfig{
		Name:   name,
		Limit:  30,
		Window: time.Minute,
	}
}

// SlidingWindow implements a sliding-window-log rate limiter. Unlike a fixed
// bucket, admission counts only the calls made within the last Window from
// "now", so bursts at bucket boundaries cannot double the admitted rate.
//
// The log holds at most Limit timestamps, so the prune cost per admission
// check stays O(Limit).
type SlidingWindow struct {
	config SlidingWindowConfig

	mu    sync.Mutex
	calls []time.Time
}

// NewSlidingWindow creates a new sliding-window rate limiter.
func NewSlidingWindow(config SlidingWindowConfig) *SlidingWindow {
	if config.Limit <= 0 {
		config.Limit = 30
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.now == nil {
		config.now = time.Now
	}
	return &SlidingWindow{
		config: config,
		calls:  make([]time.Time, 0, config.Limit),
	}
}

// Allow checks whether a call may be admitted. The prune, count and record
// happen as one atomic unit so concurrent callers cannot both admit on a
// stale count.
//
// When denied, retryAfter reports how long until the oldest retained call
// slides out of the window and a slot frees up.
func (sw *SlidingWindow) Allow() (retryAfter time.Duration, ok bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.config.now()
	sw.prune(now)

	if len(sw.calls) >= sw.config.Limit {
		if sw.config.OnLimit != nil {
			sw.config.OnLimit(sw.config.Name)
		}
		return sw.config.Window - now.Sub(sw.calls[0]), false
	}

	sw.calls = append(sw.calls, now)
	return 0, true
}

// Execute runs fn if the window admits a call, otherwise returns
// ErrRateLimited without invoking fn.
func (sw *SlidingWindow) Execute(fn func() error) error {
	if _, ok := sw.Allow(); !ok {
		return ErrRateLimited
	}
	return fn()
}

// Remaining returns how many calls the window would still admit.
func (sw *SlidingWindow) Remaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(sw.config.now())
	return sw.config.Limit - len(sw.calls)
}

// Limit returns the configured call limit.
func (sw *SlidingWindow) Limit() int { return sw.config.Limit }

// Window returns the configured window duration.
func (sw *SlidingWindow) Window() time.Duration { return sw.config.Window }

// prune drops timestamps older than now - Window. Callers must hold mu.
func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.config.Window)
	i := 0
	for i < len(sw.calls) && !sw.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.calls = append(sw.calls[:0], sw.calls[i:]...)
	}
}
