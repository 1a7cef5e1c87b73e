package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jdziat/firmware-jobs/pkg/config"
	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/gate"
	"github.com/jdziat/firmware-jobs/pkg/logtail"
	"github.com/jdziat/firmware-jobs/pkg/pool"
	"github.com/jdziat/firmware-jobs/pkg/runner"
	"github.com/jdziat/firmware-jobs/pkg/schedule"
	"github.com/jdziat/firmware-jobs/pkg/security"
	"github.com/jdziat/firmware-jobs/pkg/supervisor"
	"github.com/jdziat/firmware-jobs/pkg/sweep"
)

// Service is the firmware analysis execution core.
type Service struct {
	storage    core.Storage
	gate       *gate.Gate
	pool       *pool.Pool
	runner     *runner.Runner
	supervisor *supervisor.Supervisor
	sweeper    *sweep.Sweeper
	logger     *slog.Logger

	mu         sync.RWMutex
	eventSubs  []chan core.Event
	onFinished []func(context.Context, *core.JobFinished)
}

// New wires a Service on top of storage. The staging and log roots are
// created if missing.
func New(storage core.Storage, opts ...Option) (*Service, error) {
	st := defaultSettings()
	for _, opt := range opts {
		opt.apply(&st)
	}
	for _, dir := range []string{st.activeRoot, st.logRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	workers := security.ClampWorkers(st.workers)
	s := &Service{
		storage: storage,
		gate:    gate.New(workers),
		logger:  st.logger,
	}
	emit := core.Emitter(s.Emit)

	s.pool = pool.New(workers, pool.WithGate(s.gate), pool.WithLogger(st.logger))

	runnerOpts := []runner.Option{runner.WithEmitter(emit), runner.WithLogger(st.logger)}
	if st.reportName != "" {
		runnerOpts = append(runnerOpts, runner.WithReportName(st.reportName))
	}
	if st.waitDelay > 0 {
		runnerOpts = append(runnerOpts, runner.WithWaitDelay(st.waitDelay))
	}
	s.runner = runner.New(storage, st.logRoot, runnerOpts...)

	supOpts := []supervisor.Option{supervisor.WithEmitter(emit), supervisor.WithLogger(st.logger)}
	if st.tail {
		tailOpts := []logtail.Option{
			logtail.WithInterval(st.tailInterval),
			logtail.WithEmitter(emit),
			logtail.WithLogger(st.logger),
		}
		if st.logName != "" {
			tailOpts = append(tailOpts, logtail.WithLogName(st.logName))
		}
		supOpts = append(supOpts, supervisor.WithTailer(logtail.New(storage, st.logRoot, tailOpts...)))
	}
	s.supervisor = supervisor.New(storage, s.pool, s.runner, st.activeRoot, st.invocation, supOpts...)

	if st.sweep != nil {
		s.sweeper = sweep.New(storage, st.activeRoot,
			sweep.WithSchedule(st.sweep),
			sweep.WithMaxAge(st.sweepMaxAge),
			sweep.WithLogger(st.logger),
		)
	}
	return s, nil
}

// FromConfig builds a Service from a loaded configuration.
func FromConfig(storage core.Storage, cfg config.Config, logger *slog.Logger) (*Service, error) {
	a := cfg.Analysis
	opts := []Option{
		WithWorkers(a.Workers),
		WithDirs(a.ActiveRoot, a.LogRoot),
		WithInvocation(supervisor.Invocation{ToolDir: a.ToolDir, Command: a.Command, Sudo: a.Sudo}),
		WithReportName(a.ReportName),
		WithLogger(logger),
	}
	if a.Tail {
		opts = append(opts, WithTailing(a.LogName, a.TailInterval))
	}
	if cfg.Sweep.Enabled {
		sched, err := schedule.Parse(cfg.Sweep.Schedule)
		if err != nil {
			return nil, fmt.Errorf("sweep schedule: %w", err)
		}
		opts = append(opts, WithSweep(sched, cfg.Sweep.MaxAge))
	}
	return New(storage, opts...)
}

// Start begins background maintenance. Submissions are accepted without it.
func (s *Service) Start(ctx context.Context) {
	if s.sweeper != nil {
		s.sweeper.Start(ctx)
	}
}

// Shutdown stops accepting work. With wait set it blocks until every
// admitted analysis has been finalized.
func (s *Service) Shutdown(wait bool) {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	s.pool.Shutdown(wait)
}

// Submit stages artifact and admits its analysis without waiting for it.
// See supervisor.Supervisor.SubmitAnalysis for the errors returned.
func (s *Service) Submit(ctx context.Context, sub supervisor.Submission, artifact string) (*pool.Handle, error) {
	return s.supervisor.SubmitAnalysis(ctx, sub, artifact)
}

// Outstanding returns the number of admitted, unfinished work items.
func (s *Service) Outstanding() int64 {
	return s.gate.Outstanding()
}

// Capacity returns the admission limit.
func (s *Service) Capacity() int64 {
	return s.gate.Capacity()
}

// Storage returns the underlying storage.
func (s *Service) Storage() core.Storage {
	return s.storage
}

// Runner returns the process runner.
func (s *Service) Runner() *runner.Runner {
	return s.runner
}

// Job returns a job by id.
func (s *Service) Job(ctx context.Context, id string) (*core.Job, error) {
	return s.storage.GetJob(ctx, id)
}

// Result returns the stored result of a job.
func (s *Service) Result(ctx context.Context, id string) (*core.Result, error) {
	return s.storage.GetResult(ctx, id)
}

// Jobs lists jobs, newest first. An empty status matches all.
func (s *Service) Jobs(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	return s.storage.ListJobs(ctx, status, limit)
}

// OnFinished registers a callback invoked after each job is finalized.
// Callbacks run on the worker that ran the job.
func (s *Service) OnFinished(fn func(context.Context, *core.JobFinished)) {
	s.mu.Lock()
	s.onFinished = append(s.onFinished, fn)
	s.mu.Unlock()
}

// Events returns a channel for receiving service events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (s *Service) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	s.mu.Lock()
	s.eventSubs = append(s.eventSubs, ch)
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events.
// The channel is not closed.
func (s *Service) Unsubscribe(ch <-chan core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.eventSubs {
		if sub == ch {
			s.eventSubs = append(s.eventSubs[:i], s.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all subscribers, dropping it for those that are full.
func (s *Service) Emit(e core.Event) {
	s.mu.RLock()
	subs := make([]chan core.Event, len(s.eventSubs))
	copy(subs, s.eventSubs)
	hooks := make([]func(context.Context, *core.JobFinished), len(s.onFinished))
	copy(hooks, s.onFinished)
	s.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}

	if fin, ok := e.(*core.JobFinished); ok {
		for _, fn := range hooks {
			s.callHook(fn, fin)
		}
	}
}

func (s *Service) callHook(fn func(context.Context, *core.JobFinished), e *core.JobFinished) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("finish hook panicked", "job_id", e.JobID, "panic", r)
		}
	}()
	fn(context.Background(), e)
}
