package pool

import (
	"context"
	"sync"
)

// Handle tracks one admitted unit of work.
type Handle struct {
	name string
	done chan struct{}
	err  error

	mu        sync.Mutex
	callbacks []func(*Handle)
	finished  bool
}

func newHandle(name string) *Handle {
	return &Handle{name: name, done: make(chan struct{})}
}

// Name returns the name the work was submitted under.
func (h *Handle) Name() string {
	return h.name
}

// Done is closed once the work has completed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the work error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the work completes or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnDone registers fn to run after completion. If the work has already
// completed, fn runs immediately on the calling goroutine.
func (h *Handle) OnDone(fn func(*Handle)) {
	h.mu.Lock()
	if !h.finished {
		h.callbacks = append(h.callbacks, fn)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	fn(h)
}

func (h *Handle) complete(err error) {
	h.mu.Lock()
	h.err = err
	h.finished = true
	callbacks := h.callbacks
	h.callbacks = nil
	h.mu.Unlock()

	close(h.done)
	for _, fn := range callbacks {
		fn(h)
	}
}
