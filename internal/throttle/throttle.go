// Package throttle bounds how often an action runs while keeping the most
// recent argument.
package throttle

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer a Throttle uses.
type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Throttle invokes fn at most once per interval. A call inside the interval
// is deferred to the end of it; further calls before then only replace the
// pending argument, so bursts deliver their first and last values.
type Throttle[T any] struct {
	interval time.Duration
	fn       func(T)
	clock    Clock

	mu      sync.Mutex
	last    time.Time
	fired   bool
	pending T
	timer   Timer
}

func New[T any](interval time.Duration, fn func(T)) *Throttle[T] {
	return NewWithClock(interval, fn, SystemClock)
}

func NewWithClock[T any](interval time.Duration, fn func(T), clock Clock) *Throttle[T] {
	return &Throttle[T]{interval: interval, fn: fn, clock: clock}
}

// Call runs fn(v) now if the interval has elapsed since the last invocation,
// otherwise schedules it. Immediate invocations run on the caller's
// goroutine; deferred ones on the clock's timer goroutine.
func (t *Throttle[T]) Call(v T) {
	t.mu.Lock()
	now := t.clock.Now()
	if t.timer == nil && (!t.fired || now.Sub(t.last) >= t.interval) {
		t.last = now
		t.fired = true
		t.mu.Unlock()
		t.fn(v)
		return
	}
	t.pending = v
	if t.timer == nil {
		wait := t.interval - now.Sub(t.last)
		if wait < 0 {
			wait = 0
		}
		t.timer = t.clock.AfterFunc(wait, t.fire)
	}
	t.mu.Unlock()
}

// Flush runs a pending invocation immediately, if any.
func (t *Throttle[T]) Flush() {
	t.mu.Lock()
	if t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.timer.Stop()
	t.mu.Unlock()
	t.fire()
}

// Cancel drops a pending invocation.
func (t *Throttle[T]) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	var zero T
	t.pending = zero
}

// Pending reports whether a deferred invocation is scheduled.
func (t *Throttle[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

func (t *Throttle[T]) fire() {
	t.mu.Lock()
	if t.timer == nil {
		t.mu.Unlock()
		return
	}
	v := t.pending
	var zero T
	t.pending = zero
	t.timer = nil
	t.last = t.clock.Now()
	t.fired = true
	t.mu.Unlock()
	t.fn(v)
}
