package pool

import (
	"log/slog"

	"github.com/jdziat/firmware-jobs/pkg/gate"
)

// Option configures a Pool.
type Option interface {
	applyPool(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) applyPool(c *Config) { f(c) }

// Config holds pool configuration.
type Config struct {
	Gate   *gate.Gate
	Logger *slog.Logger
}

// WithGate shares an existing gate instead of creating one sized to the pool.
func WithGate(g *gate.Gate) Option {
	return optionFunc(func(c *Config) {
		c.Gate = g
	})
}

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}
