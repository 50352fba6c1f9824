package resilience

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock returns a now() func backed by a mutable time value.
func fakeClock(start time.Time) (now func() time.Time, advance func(time.Duration)) {
	var mu sync.Mutex
	current := start
	now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance = func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(d)
	}
	return now, advance
}

func TestSlidingWindow_AllowsUpToLimit(t *testing.T) {
	now, _ := fakeClock(time.Unix(1000, 0))
	sw := NewSlidingWindow(SlidingWindowConfig{Name: "test", Limit: 5, Window: time.Minute, now: now})

	for i := 0; i < 5; i++ {
		if _, ok := sw.Allow(); !ok {
			t.Errorf("call %d should be admitted", i)
		}
	}
}

func TestSlidingWindow_DeniesOverLimit(t *testing.T) {
	now, advance := fakeClock(time.Unix(1000, 0))
	sw := NewSlidingWindow(SlidingWindowConfig{Name: "test", Limit: 3, Window: time.Minute, now: now})

	for i := 0; i < 3; i++ {
		sw.Allow()
		advance(time.Second)
	}

	retryAfter, ok := sw.Allow()
	if ok {
		t.Fatal("4th call within the window should be denied")
	}
	// Oldest call was 3s ago, so the slot frees in window - 3s.
	if want := time.Minute - 3*time.Second; retryAfter != want {
		t.Errorf("expected retryAfter %v, got %v", want, retryAfter)
	}
}

func TestSlidingWindow_SlidesNotFixed(t *testing.T) {
	now, advance := fakeClock(time.Unix(1000, 0))
	sw := NewSlidingWindow(SlidingWindowConfig{Name: "test", Limit: 2, Window: time.Minute, now: now})

	sw.Allow()
	advance(30 * time.Second)
	sw.Allow()

	if _, ok := sw.Allow(); ok {
		t.Fatal("limit reached, call should be denied")
	}

	// 31s later the first call (61s old) has slid out; the second (31s old)
	// is still inside. One slot is free; a fixed bucket reset would free both.
	advance(31 * time.Second)
	if _, ok := sw.Allow(); !ok {
		t.Error("expected a slot after the earliest call slid out of the window")
	}
	if _, ok := sw.Allow(); ok {
		t.Error("expected only one slot to have freed")
	}
}

func TestSlidingWindow_Remaining(t *testing.T) {
	now, advance := fakeClock(time.Unix(1000, 0))
	sw := NewSlidingWindow(SlidingWindowConfig{Name: "test", Limit: 4, Window: time.Minute, now: now})

	if got := sw.Remaining(); got != 4 {
		t.Errorf("expected 4 remaining, got %d", got)
	}
	sw.Allow()
	sw.Allow()
	if got := sw.Remaining(); got != 2 {
		t.Errorf("expected 2 remaining, got %d", got)
	}
	advance(2 * time.Minute)
	if got := sw.Remaining(); got != 4 {
		t.Errorf("expected 4 remaining after window elapsed, got %d", got)
	}
}

func TestSlidingWindow_Execute(t *testing.T) {
	now, _ := fakeClock(time.Unix(1000, 0))
	sw := NewSlidingWindow(SlidingWindowConfig{Name: "test", Limit: 1, Window: time.Minute, now: now})

	var called bool
	if err := sw.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("function was not called")
	}

	err := sw.Execute(func() error {
		t.Error("function should not have been called over the limit")
		return nil
	})
	if err != ErrRateLimited {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestSlidingWindow_OnLimitHook(t *testing.T) {
	now, _ := fakeClock(time.Unix(1000, 0))
	var limited atomic.Int32
	sw := NewSlidingWindow(SlidingWindowConfig{
		Name:    "test",
		Limit:   1,
		Window:  time.Minute,
		OnLimit: func(string) { limited.Add(1) },
		now:     now,
	})

	sw.Allow()
	sw.Allow()
	sw.Allow()
	if got := limited.Load(); got != 2 {
		t.Errorf("expected OnLimit called twice, got %d", got)
	}
}

func TestSlidingWindow_ConcurrentAdmission(t *testing.T) {
	sw := NewSlidingWindow(SlidingWindowConfig{Name: "test", Limit: 10, Window: time.Minute})

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := sw.Allow(); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 10 {
		t.Errorf("expected exactly 10 admissions under concurrency, got %d", got)
	}
}
