// Package countdowntest provides a manually advanced clock for tests.
package countdowntest

import (
	"sort"
	"sync"
	"time"

	"nextchapter-billing/internal/countdown"
)

var _ countdown.Clock = (*Clock)(nil)

// Clock fires due callbacks synchronously, in deadline order, from Advance.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*timer
}

type timer struct {
	clock *Clock
	when  time.Time
	seq   uint64
	f     func()
	done  bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// New returns a clock frozen at start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) countdown.Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{clock: c, when: c.now.Add(d), seq: c.seq, f: f}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves time forward by d, running every callback that falls due,
// including ones scheduled by callbacks along the way.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			// A callback may have advanced the clock past target already.
			if c.now.Before(target) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		next.done = true
		if next.when.After(c.now) {
			c.now = next.when
		}
		c.mu.Unlock()
		next.f()
	}
}

func (c *Clock) nextDueLocked(target time.Time) *timer {
	live := c.pending[:0]
	for _, t := range c.pending {
		if !t.done {
			live = append(live, t)
		}
	}
	c.pending = live
	sort.SliceStable(c.pending, func(i, j int) bool {
		if c.pending[i].when.Equal(c.pending[j].when) {
			return c.pending[i].seq < c.pending[j].seq
		}
		return c.pending[i].when.Before(c.pending[j].when)
	})
	if len(c.pending) == 0 || c.pending[0].when.After(target) {
		return nil
	}
	return c.pending[0]
}

// Pending reports how many callbacks are still scheduled.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.pending {
		if !t.done {
			n++
		}
	}
	return n
}
