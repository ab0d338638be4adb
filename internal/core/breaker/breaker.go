// Package breaker gates store access after a failed connection attempt.
package breaker

import (
	"sync/atomic"
	"time"
)

// DefaultRetryWindow is how long the store is considered down after a failed open.
const DefaultRetryWindow = 10 * time.Second

// State is the externally visible breaker state.
type State string

const (
	StateAvailable   State = "available"
	StateUnavailable State = "unavailable"
)

// Breaker has two states: available, and unavailable until a deadline. The deadline is kept in
// a single atomic so concurrent writers never serialize on a lock.
type Breaker struct {
	// until is 0 when available, otherwise the deadline in unix nanoseconds.
	until atomic.Int64
	// probe is the deadline set by the caller currently probing, or 0.
	probe  atomic.Int64
	window time.Duration
	now    func() time.Time
}

// New creates an available breaker. A non-positive window uses DefaultRetryWindow.
func New(window time.Duration) *Breaker {
	if window <= 0 {
		window = DefaultRetryWindow
	}
	return &Breaker{window: window, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow reports whether a connection attempt may proceed. Inside the window it returns false.
// Once the window has elapsed exactly one caller wins the probe; the deadline is pushed
// forward for the others until that probe reports back.
func (b *Breaker) Allow() bool {
	for {
		u := b.until.Load()
		if u == 0 {
			return true
		}
		now := b.now().UnixNano()
		if now <= u {
			return false
		}
		next := now + int64(b.window)
		if b.until.CompareAndSwap(u, next) {
			b.probe.Store(next)
			return true
		}
	}
}

// Release ends a probe that never reached the store, so the next caller probes again.
// It does nothing when no probe is running or the deadline has since changed.
func (b *Breaker) Release() {
	p := b.probe.Swap(0)
	if p == 0 {
		return
	}
	// 1 is a deadline that has always passed while still reading as unavailable.
	b.until.CompareAndSwap(p, 1)
}

// Succeed marks the store available.
func (b *Breaker) Succeed() {
	b.probe.Store(0)
	b.until.Store(0)
}

// Trip marks the store unavailable for one retry window from now.
func (b *Breaker) Trip() time.Time {
	deadline := b.now().Add(b.window)
	b.probe.Store(0)
	b.until.Store(deadline.UnixNano())
	return deadline
}

// State returns the current state.
func (b *Breaker) State() State {
	if b.until.Load() == 0 {
		return StateAvailable
	}
	return StateUnavailable
}

// Until returns the deadline when unavailable.
func (b *Breaker) Until() (time.Time, bool) {
	u := b.until.Load()
	switch u {
	case 0:
		return time.Time{}, false
	case 1:
		return b.now(), true
	}
	return time.Unix(0, u), true
}

// Window returns the configured retry window.
func (b *Breaker) Window() time.Duration {
	return b.window
}
