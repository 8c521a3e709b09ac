package supervisor

import (
	"log/slog"
	"time"

	"github.com/caffeineduck/tib/protocol"
)

type Option func(*config)

type config struct {
	limit            int
	clock            func() time.Time
	logger           *slog.Logger
	debug            bool
	bootstrapTimeout time.Duration
}

func defaultConfig() config {
	return config{
		limit:            protocol.OutLimit,
		clock:            time.Now,
		logger:           slog.Default(),
		bootstrapTimeout: 30 * time.Second,
	}
}

// WithLimit caps stdout and stderr of a run, in bytes. It applies to both
// the bridge and the supervisor's own buffers.
func WithLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithClock replaces time.Now for elapsed time measurement.
func WithClock(clock func() time.Time) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
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

// WithDebugLanguages asks workers to register ExampleLang.
func WithDebugLanguages() Option {
	return func(c *config) {
		c.debug = true
	}
}

// WithBootstrapTimeout bounds how long a fresh context may take to answer
// the handshake.
func WithBootstrapTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.bootstrapTimeout = d
		}
	}
}
