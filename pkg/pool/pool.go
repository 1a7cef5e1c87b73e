package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/gate"
	"github.com/jdziat/firmware-jobs/pkg/security"
)

// Work is one unit of work executed by a pool worker.
type Work func(ctx context.Context) error

type task struct {
	ctx    context.Context
	work   Work
	handle *Handle
}

// Pool is a fixed-size worker pool gated by a reject-on-full admission gate.
type Pool struct {
	gate    *gate.Gate
	workers int
	tasks   chan *task
	logger  *slog.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New creates a pool and starts its workers.
// Workers are clamped to [1, security.MaxWorkers].
func New(workers int, opts ...Option) *Pool {
	workers = security.ClampWorkers(workers)

	var config Config
	for _, opt := range opts {
		opt.applyPool(&config)
	}
	if config.Gate == nil {
		config.Gate = gate.New(workers)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	p := &Pool{
		gate:    config.Gate,
		workers: workers,
		tasks:   make(chan *task, workers),
		logger:  config.Logger,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.processLoop()
	}
	return p
}

// Gate returns the admission gate guarding the pool.
func (p *Pool) Gate() *gate.Gate {
	return p.gate
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit admits work and hands it to a worker without blocking.
// It returns core.ErrAdmissionRejected when the gate is saturated and
// core.ErrPoolClosed when the pool is shutting down. Cancelling ctx after
// Submit returns does not cancel the work; its values are kept.
func (p *Pool) Submit(ctx context.Context, name string, work Work) (*Handle, error) {
	if !p.gate.TryAcquire() {
		p.logger.ErrorContext(ctx, "executor queue full", "work", name,
			"outstanding", p.gate.Outstanding(), "capacity", p.gate.Capacity())
		return nil, core.ErrAdmissionRejected
	}

	t := &task{
		ctx:    context.WithoutCancel(ctx),
		work:   work,
		handle: newHandle(name),
	}

	if err := p.handoff(t); err != nil {
		p.gate.Release()
		p.logger.ErrorContext(ctx, "executor task could not be submitted", "work", name, "error", err)
		return nil, err
	}

	p.logger.DebugContext(ctx, "work submitted", "work", name)
	return t.handle, nil
}

func (p *Pool) handoff(t *task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return core.ErrPoolClosed
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		// only reachable when the gate is larger than the pool
		return fmt.Errorf("fwjobs: no free worker for %q", t.handle.name)
	}
}

func (p *Pool) processLoop() {
	defer p.wg.Done()

	for t := range p.tasks {
		p.execute(t)
	}
}

func (p *Pool) execute(t *task) {
	var err error
	defer func() {
		p.gate.Release()
		t.handle.complete(err)
	}()

	err = p.run(t)
	if err != nil {
		p.logger.DebugContext(t.ctx, "work returned error", "work", t.handle.name, "error", err)
	}
}

func (p *Pool) run(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			p.logger.ErrorContext(t.ctx, "work panicked", "work", t.handle.name, "panic", r)
		}
	}()
	return t.work(t.ctx)
}

// Shutdown stops accepting work. With wait set it blocks until all
// admitted work has finished; otherwise workers drain in the background.
// Calling Shutdown more than once is safe.
func (p *Pool) Shutdown(wait bool) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	if wait {
		p.wg.Wait()
	}
}
