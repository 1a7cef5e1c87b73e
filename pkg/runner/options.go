package runner

import (
	"log/slog"
	"time"

	"github.com/jdziat/firmware-jobs/pkg/core"
)

// DefaultReportName is the aggregated report written by the analysis tool.
const DefaultReportName = "f50_base_aggregator.csv"

// Option configures a Runner.
type Option interface {
	apply(*Runner)
}

type optionFunc func(*Runner)

func (f optionFunc) apply(r *Runner) { f(r) }

// WithReportName overrides the report file name looked up under
// <log root>/<job id>/.
func WithReportName(name string) Option {
	return optionFunc(func(r *Runner) {
		r.reportName = name
	})
}

// WithEmitter sets the receiver of JobStarted and JobFinished events.
func WithEmitter(emit core.Emitter) Option {
	return optionFunc(func(r *Runner) {
		r.emit = emit
	})
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(r *Runner) {
		r.logger = l
	})
}

// WithWaitDelay bounds how long Run waits for output after the process
// exits, for example when a detached helper still holds stdout open.
func WithWaitDelay(d time.Duration) Option {
	return optionFunc(func(r *Runner) {
		r.waitDelay = d
	})
}

// WithOutputTail sets how many trailing output lines are kept for the
// failure log. Zero disables capture.
func WithOutputTail(lines int) Option {
	return optionFunc(func(r *Runner) {
		r.tailLines = lines
	})
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(r *Runner) {
		r.now = now
	})
}
