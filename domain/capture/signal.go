package capture

import (
	"sync"
	"time"
)

// RequestSignal is a resettable binary gate a consumer uses to ask the worker
// for exactly one frame. Repeated Set calls before Clear coalesce into one
// pending request. Wait never consumes the signal; only Clear does.
type RequestSignal struct {
	mu    sync.Mutex
	set   bool
	ready chan struct{} // closed while set
}

// NewRequestSignal returns a cleared signal.
func NewRequestSignal() *RequestSignal {
	return &RequestSignal{ready: make(chan struct{})}
}

// Set marks a request pending and wakes any waiter. Idempotent.
func (r *RequestSignal) Set() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return
	}
	r.set = true
	close(r.ready)
}

// Clear drops the pending request, if any.
func (r *RequestSignal) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		return
	}
	r.set = false
	r.ready = make(chan struct{})
}

// IsSet reports whether a request is pending.
func (r *RequestSignal) IsSet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set
}

// Wait blocks until the signal is set or timeout elapses and reports whether
// it was observed set. A non-positive timeout only checks the current state.
func (r *RequestSignal) Wait(timeout time.Duration) bool {
	r.mu.Lock()
	if r.set {
		r.mu.Unlock()
		return true
	}
	ready := r.ready
	r.mu.Unlock()
	if timeout <= 0 {
		return false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ready:
		return true
	case <-t.C:
		return false
	}
}
