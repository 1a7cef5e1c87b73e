package sweep

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/schedule"
)

// Option configures a Sweeper.
type Option interface {
	apply(*Sweeper)
}

type optionFunc func(*Sweeper)

func (f optionFunc) apply(s *Sweeper) { f(s) }

// WithSchedule sets when sweeps run. Default: every hour.
func WithSchedule(sched schedule.Schedule) Option {
	return optionFunc(func(s *Sweeper) {
		s.schedule = sched
	})
}

// WithMaxAge sets how old a directory must be before it is considered.
// Default: 24h.
func WithMaxAge(d time.Duration) Option {
	return optionFunc(func(s *Sweeper) {
		s.maxAge = d
	})
}

// WithLogger sets the sweeper logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Sweeper) {
		s.logger = l
	})
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(s *Sweeper) {
		s.now = now
	})
}

// Sweeper removes leftover staging directories.
type Sweeper struct {
	storage    core.Storage
	activeRoot string
	schedule   schedule.Schedule
	maxAge     time.Duration
	logger     *slog.Logger
	now        func() time.Time

	cron *cron.Cron
}

// New creates a Sweeper for activeRoot.
func New(storage core.Storage, activeRoot string, opts ...Option) *Sweeper {
	s := &Sweeper{
		storage:    storage,
		activeRoot: activeRoot,
		schedule:   schedule.Every(time.Hour),
		maxAge:     24 * time.Hour,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Start runs Sweep on the schedule until Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.cron = cron.New(cron.WithLogger(cronLogger{s.logger}))
	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("staging sweep failed", "error", err)
		}
	}))
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep removes stale directories once and returns their paths.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.activeRoot)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-s.maxAge)
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		id := entry.Name()
		if !s.abandoned(ctx, id) {
			continue
		}

		dir := filepath.Join(s.activeRoot, id)
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Error("removing stale staging directory", "dir", dir, "error", err)
			continue
		}
		s.logger.Info("removed stale staging directory", "dir", dir, "job_id", id)
		removed = append(removed, dir)
	}
	return removed, nil
}

// abandoned reports whether no live job owns the directory.
func (s *Sweeper) abandoned(ctx context.Context, id string) bool {
	job, err := s.storage.GetJob(ctx, id)
	if errors.Is(err, core.ErrJobNotFound) {
		return true
	}
	if err != nil {
		s.logger.Warn("looking up staging owner", "job_id", id, "error", err)
		return false
	}
	return job.Finished
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
