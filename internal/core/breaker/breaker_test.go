package breaker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBreaker_AvailableByDefault(t *testing.T) {
	b := New(0)
	if !b.Allow() {
		t.Fatal("new breaker should allow")
	}
	if b.State() != StateAvailable {
		t.Fatalf("State() = %s", b.State())
	}
	if b.Window() != DefaultRetryWindow {
		t.Fatalf("Window() = %v", b.Window())
	}
}

func TestBreaker_TripBlocksUntilWindowElapses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := New(10 * time.Second).WithClock(clock.Now)

	deadline := b.Trip()
	if !deadline.Equal(time.Unix(1010, 0)) {
		t.Fatalf("unexpected deadline %v", deadline)
	}

	for i := 0; i < 5; i++ {
		if b.Allow() {
			t.Fatalf("attempt %d inside the window should be skipped", i)
		}
	}

	clock.Advance(10 * time.Second)
	if b.Allow() {
		t.Fatal("the deadline itself is still inside the window")
	}

	clock.Advance(time.Millisecond)
	if !b.Allow() {
		t.Fatal("first attempt after the window should probe")
	}
	if b.Allow() {
		t.Fatal("only one probe may run while the store state is unknown")
	}

	b.Succeed()
	if !b.Allow() || b.State() != StateAvailable {
		t.Fatal("breaker should be available after a successful probe")
	}
}

func TestBreaker_FailedProbeRestartsWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New(30 * time.Second).WithClock(clock.Now)

	b.Trip()
	clock.Advance(31 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe")
	}
	b.Trip()
	clock.Advance(29 * time.Second)
	if b.Allow() {
		t.Fatal("failed probe should restart the window")
	}
	until, ok := b.Until()
	if !ok || !until.Equal(time.Unix(61, 0)) {
		t.Fatalf("Until() = %v, %v", until, ok)
	}
}

func TestBreaker_ReleaseLetsNextCallerProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New(10 * time.Second).WithClock(clock.Now)

	b.Trip()
	clock.Advance(11 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe")
	}
	if b.Allow() {
		t.Fatal("second caller should wait for the probe")
	}

	b.Release()
	if until, ok := b.Until(); !ok || !until.Equal(clock.Now()) {
		t.Fatalf("Until() = %v, %v", until, ok)
	}
	if !b.Allow() {
		t.Fatal("released probe should hand over to the next caller")
	}
	if b.State() != StateUnavailable {
		t.Fatalf("State() = %s", b.State())
	}
}

func TestBreaker_ReleaseWithoutProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New(10 * time.Second).WithClock(clock.Now)

	b.Release()
	if b.State() != StateAvailable {
		t.Fatalf("State() = %s", b.State())
	}

	b.Trip()
	b.Release()
	if b.Allow() {
		t.Fatal("release must not shorten a tripped window")
	}

	clock.Advance(11 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe")
	}
	b.Trip()
	b.Release()
	if b.Allow() {
		t.Fatal("release after a failed probe must keep the new window")
	}
}

func TestBreaker_SingleProbeUnderContention(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New(time.Second).WithClock(clock.Now)
	b.Trip()
	clock.Advance(2 * time.Second)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 1 {
		t.Fatalf("expected exactly one probe, got %d", allowed.Load())
	}
}
