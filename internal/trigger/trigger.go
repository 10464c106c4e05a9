// Package trigger provides a coalescing trigger: bursts of Trigger calls
// collapse into one emission per quiet window, each emission carrying a
// strictly increasing token.
//
// The same type drives per-account balance refresh and per-form fee
// estimation. Consumers compare the token of a completed fetch against
// IsCurrent before applying its result, which discards replies that arrive
// out of order.
package trigger

import (
	"sync"
	"time"
)

// DefaultWindow is the debounce window used for balance refresh.
const DefaultWindow = 720 * time.Millisecond

// EmitFunc receives the token of an emission. It runs on the timer's
// goroutine.
type EmitFunc func(token uint64)

// Option configures a Trigger.
type Option func(*Trigger)

// WithClock sets the clock used for scheduling.
func WithClock(c Clock) Option {
	return func(t *Trigger) {
		if c != nil {
			t.clock = c
		}
	}
}

// Trigger is a trailing-edge debouncer with fetch tokens.
// It is safe for concurrent use.
type Trigger struct {
	mu sync.Mutex

	clock  Clock
	window time.Duration
	emit   EmitFunc

	timer      Timer
	generation uint64 // bumped whenever the pending timer is replaced or cancelled
	token      uint64 // latest issued token; anything lower is superseded

	lastEmittedAt time.Time
	disposed      bool
}

// New creates a Trigger that calls emit once per quiet window.
// A non-positive window falls back to DefaultWindow.
func New(window time.Duration, emit EmitFunc, opts ...Option) *Trigger {
	if window <= 0 {
		window = DefaultWindow
	}
	t := &Trigger{
		clock:  SystemClock(),
		window: window,
		emit:   emit,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Trigger records intent. Calls within the window reset it.
func (t *Trigger) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		return
	}
	t.stopLocked()

	gen := t.generation
	t.timer = t.clock.AfterFunc(t.window, func() { t.fire(gen) })
}

// FireNow drops any pending window and returns a fresh token for a fetch
// the caller runs immediately. It returns 0 once disposed.
func (t *Trigger) FireNow() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		return 0
	}
	t.stopLocked()
	return t.nextLocked()
}

// Cancel drops any pending window and supersedes the current token.
func (t *Trigger) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		return
	}
	t.stopLocked()
	t.token++
}

// Dispose cancels pending work. Every token becomes stale and later calls
// are ignored. Safe to call more than once.
func (t *Trigger) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		return
	}
	t.stopLocked()
	t.token++
	t.disposed = true
}

// IsCurrent reports whether token is the latest issued one and the trigger
// is still live.
func (t *Trigger) IsCurrent(token uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return !t.disposed && token != 0 && token == t.token
}

// Pending reports whether a window is open.
func (t *Trigger) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.timer != nil
}

// LastEmittedAt returns the time of the most recent emission or FireNow.
func (t *Trigger) LastEmittedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastEmittedAt
}

// Disposed reports whether Dispose has been called.
func (t *Trigger) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.disposed
}

func (t *Trigger) fire(gen uint64) {
	t.mu.Lock()
	if t.disposed || gen != t.generation {
		// Stopped or replaced after the timer had already fired.
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.generation++
	token := t.nextLocked()
	emit := t.emit
	t.mu.Unlock()

	if emit != nil {
		emit(token)
	}
}

func (t *Trigger) nextLocked() uint64 {
	t.token++
	t.lastEmittedAt = t.clock.Now()
	return t.token
}

func (t *Trigger) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.generation++
}
