package testutil

import (
	"sync"
	"time"
)

// Recorder collects callback deliveries from any goroutine.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
	signal chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{signal: make(chan struct{}, 1)}
}

// Record appends v. Its signature fits store callbacks via a closure.
func (r *Recorder[T]) Record(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Values returns a copy of everything recorded.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

// Len returns the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Last returns the most recent value.
func (r *Recorder[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if len(r.values) == 0 {
		return zero, false
	}
	return r.values[len(r.values)-1], true
}

// WaitLen waits until at least n values are recorded or timeout elapses.
// It reports whether n was reached.
func (r *Recorder[T]) WaitLen(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if r.Len() >= n {
			return true
		}
		select {
		case <-r.signal:
		case <-deadline:
			return r.Len() >= n
		}
	}
}
