package worker

import (
	"log/slog"

	"github.com/caffeineduck/tib/job"
)

type Option func(*config)

type config struct {
	registry *job.Registry
	logger   *slog.Logger
}

func defaultConfig() config {
	return config{logger: slog.Default()}
}

// WithRegistry fixes the languages on offer. Without it the bootstrap
// message decides whether debug languages are included.
func WithRegistry(r *job.Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
