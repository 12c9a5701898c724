package countdown

import (
	"sync"
	"time"
)

// Task is a cancelable one-shot scheduled callback.
type Task struct {
	mu        sync.Mutex
	stopper   Stopper
	cancelled bool
}

// Schedule runs f after d unless the returned Task is cancelled first.
func Schedule(clock Clock, d time.Duration, f func()) *Task {
	if clock == nil {
		clock = RealClock{}
	}
	t := &Task{}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopper = clock.AfterFunc(d, func() {
		t.mu.Lock()
		cancelled := t.cancelled
		t.mu.Unlock()
		if !cancelled {
			f()
		}
	})
	return t
}

// Cancel prevents the callback from running. Safe to call on a nil Task.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	if t.stopper != nil {
		t.stopper.Stop()
	}
}
