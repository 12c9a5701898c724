// Package countdown provides the cancelable, one-second-resolution timers
// shared by OTP expiry, payment timeout and notification TTL.
package countdown

import (
	"sync"
	"time"
)

// Resolution is the tick granularity of a Countdown.
const Resolution = time.Second

// Countdown ticks once per second until its budget is spent.
// A Countdown owns at most one run at a time.
type Countdown struct {
	clock Clock

	mu        sync.Mutex
	gen       uint64
	pending   Stopper
	running   bool
	remaining time.Duration
}

func New(clock Clock) *Countdown {
	if clock == nil {
		clock = RealClock{}
	}
	return &Countdown{clock: clock}
}

// Start begins a new run, cancelling any previous one first.
// onTick receives the remaining whole seconds after each elapsed second,
// onElapsed fires once when nothing remains. Either callback may be nil.
func (c *Countdown) Start(total time.Duration, onTick func(remaining time.Duration), onElapsed func()) {
	total = total.Round(Resolution)
	if total < Resolution {
		total = Resolution
	}

	c.mu.Lock()
	c.stopLocked()
	c.gen++
	gen := c.gen
	c.running = true
	c.remaining = total
	c.pending = c.clock.AfterFunc(Resolution, func() { c.tick(gen, onTick, onElapsed) })
	c.mu.Unlock()
}

func (c *Countdown) tick(gen uint64, onTick func(time.Duration), onElapsed func()) {
	c.mu.Lock()
	if gen != c.gen || !c.running {
		c.mu.Unlock()
		return
	}
	c.remaining -= Resolution
	remaining := c.remaining
	done := remaining <= 0
	if done {
		c.running = false
		c.pending = nil
	} else {
		c.pending = c.clock.AfterFunc(Resolution, func() { c.tick(gen, onTick, onElapsed) })
	}
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if !done {
		return
	}
	// Cancel may have raced with the final tick.
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if !stale && onElapsed != nil {
		onElapsed()
	}
}

// Cancel stops the current run. A timer that already fired but has not
// reached the generation check is discarded, so onElapsed does not fire for a
// cancelled run unless it was already executing when Cancel was called.
// Callbacks must not be assumed finished when Cancel returns: callers whose
// state outlives a run re-check it under their own lock.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	c.stopLocked()
	c.gen++
	c.mu.Unlock()
}

func (c *Countdown) stopLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.running = false
	c.remaining = 0
}

// Running reports whether a run is in progress.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Remaining returns the time left in the current run, zero when idle.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}
