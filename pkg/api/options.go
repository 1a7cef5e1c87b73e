package api

import (
	"log/slog"
	"net/http"
	"os"
)

// Option configures the API handler.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	middleware     func(http.Handler) http.Handler
	logger         *slog.Logger
	uploadDir      string
	maxUploadBytes int64
}

func defaultConfig() *config {
	return &config{
		logger:         slog.Default(),
		uploadDir:      os.TempDir(),
		maxUploadBytes: 2 << 30,
	}
}

// WithMiddleware wraps the handler with middleware (auth, logging, etc.).
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return optionFunc(func(c *config) {
		c.middleware = mw
	})
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}

// WithUploadDir sets where uploads are buffered before staging.
func WithUploadDir(dir string) Option {
	return optionFunc(func(c *config) {
		c.uploadDir = dir
	})
}

// WithMaxUploadBytes limits the request body of an upload. Default: 2 GiB.
func WithMaxUploadBytes(n int64) Option {
	return optionFunc(func(c *config) {
		if n > 0 {
			c.maxUploadBytes = n
		}
	})
}
