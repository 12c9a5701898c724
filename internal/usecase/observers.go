package usecase

import "sync"

// observers is a small listener registry. Listeners run outside the lock,
// in registration order, on the goroutine that emits.
type observers[T any] struct {
	mu   sync.Mutex
	next int
	fns  []observer[T]
}

type observer[T any] struct {
	id int
	fn func(T)
}

func (o *observers[T]) add(fn func(T)) (remove func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.fns = append(o.fns, observer[T]{id: id, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, ob := range o.fns {
			if ob.id == id {
				o.fns = append(o.fns[:i:i], o.fns[i+1:]...)
				return
			}
		}
	}
}

func (o *observers[T]) emit(v T) {
	o.mu.Lock()
	fns := make([]func(T), 0, len(o.fns))
	for _, ob := range o.fns {
		fns = append(fns, ob.fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
