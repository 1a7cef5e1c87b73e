package supervisor

import (
	"log/slog"
	"time"

	"github.com/jdziat/firmware-jobs/pkg/core"
)

// Option configures a Supervisor.
type Option interface {
	apply(*Supervisor)
}

type optionFunc func(*Supervisor)

func (f optionFunc) apply(s *Supervisor) { f(s) }

// WithTailer submits a log tailer alongside every admitted analysis.
func WithTailer(t Tailer) Option {
	return optionFunc(func(s *Supervisor) {
		s.tailer = t
	})
}

// WithEmitter sets the receiver of JobSubmitted and JobRejected events.
func WithEmitter(emit core.Emitter) Option {
	return optionFunc(func(s *Supervisor) {
		s.emit = emit
	})
}

// WithLogger sets the supervisor logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Supervisor) {
		s.logger = l
	})
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(s *Supervisor) {
		s.now = now
	})
}
