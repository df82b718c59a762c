package offload

import (
	"log/slog"

	"github.com/san-kum/regime/internal/grid"
)

type config struct {
	label      *string
	logger     *slog.Logger
	allocator  grid.Allocator
	outboxSize int
}

type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func WithLabel(label string) Option {
	return func(c *config) {
		c.label = &label
	}
}

func WithAllocator(alloc grid.Allocator) Option {
	return func(c *config) {
		c.allocator = alloc
	}
}

// WithOutboxSize sets how many replies may wait for the consumer before the
// evaluation goroutine blocks.
func WithOutboxSize(size int) Option {
	return func(c *config) {
		c.outboxSize = max(0, size)
	}
}
