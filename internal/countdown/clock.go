package countdown

import "time"

// Stopper cancels a pending callback. Stop reports whether the call prevented it from firing.
type Stopper interface {
	Stop() bool
}

// Clock is the time source used by every timer in the pipeline.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// RealClock runs callbacks on the process clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}
