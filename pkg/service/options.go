package service

import (
	"log/slog"
	"time"

	"github.com/jdziat/firmware-jobs/pkg/schedule"
	"github.com/jdziat/firmware-jobs/pkg/supervisor"
)

// Option configures a Service.
type Option interface {
	apply(*settings)
}

type optionFunc func(*settings)

func (f optionFunc) apply(s *settings) { f(s) }

type settings struct {
	workers      int
	activeRoot   string
	logRoot      string
	invocation   supervisor.Invocation
	reportName   string
	logName      string
	tail         bool
	tailInterval time.Duration
	waitDelay    time.Duration
	sweep        schedule.Schedule
	sweepMaxAge  time.Duration
	logger       *slog.Logger
}

func defaultSettings() settings {
	return settings{
		workers:      4,
		activeRoot:   "active",
		logRoot:      "logs",
		invocation:   supervisor.Invocation{Command: "./emba.sh", Sudo: true},
		tailInterval: 2 * time.Second,
		sweepMaxAge:  24 * time.Hour,
		logger:       slog.Default(),
	}
}

// WithWorkers sets the pool size and admission capacity. Default: 4.
func WithWorkers(n int) Option {
	return optionFunc(func(s *settings) {
		s.workers = n
	})
}

// WithDirs sets where artifacts are staged and where analysis logs live.
func WithDirs(activeRoot, logRoot string) Option {
	return optionFunc(func(s *settings) {
		s.activeRoot = activeRoot
		s.logRoot = logRoot
	})
}

// WithInvocation sets the analysis tool prefix.
func WithInvocation(inv supervisor.Invocation) Option {
	return optionFunc(func(s *settings) {
		s.invocation = inv
	})
}

// WithReportName overrides the report file looked for after each run.
func WithReportName(name string) Option {
	return optionFunc(func(s *settings) {
		s.reportName = name
	})
}

// WithTailing follows the named log file of every job at interval.
func WithTailing(logName string, interval time.Duration) Option {
	return optionFunc(func(s *settings) {
		s.tail = true
		s.logName = logName
		if interval > 0 {
			s.tailInterval = interval
		}
	})
}

// WithWaitDelay bounds how long output pipes are drained after exit.
func WithWaitDelay(d time.Duration) Option {
	return optionFunc(func(s *settings) {
		s.waitDelay = d
	})
}

// WithSweep removes abandoned staging directories older than maxAge on sched.
func WithSweep(sched schedule.Schedule, maxAge time.Duration) Option {
	return optionFunc(func(s *settings) {
		s.sweep = sched
		if maxAge > 0 {
			s.sweepMaxAge = maxAge
		}
	})
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *settings) {
		if l != nil {
			s.logger = l
		}
	})
}
