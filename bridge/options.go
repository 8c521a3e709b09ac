package bridge

import (
	"log/slog"

	"github.com/caffeineduck/tib/protocol"
)

// Option configures a Thread.
type Option func(*config)

type config struct {
	limit  int
	logger *slog.Logger
	id     string
}

func defaultConfig() config {
	return config{
		limit:  protocol.OutLimit,
		logger: slog.Default(),
	}
}

// WithLimit sets the per-stream accumulator capacity in bytes.
func WithLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.limit = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithID tags log lines with an identifier for the context.
func WithID(id string) Option {
	return func(c *config) {
		c.id = id
	}
}
