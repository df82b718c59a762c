package engine

import "github.com/san-kum/regime/internal/grid"

// Config sizes the resources a session owns.
type Config struct {
	// MaxCells caps the raster size of a single request. Zero selects
	// grid.DefaultMaxCells.
	MaxCells uint64 `yaml:"max_cells" json:"max_cells"`
	// Pool recycles raster buffers between requests.
	Pool       bool   `yaml:"pool" json:"pool"`
	OutboxSize int    `yaml:"outbox_size" json:"outbox_size"`
	Label      string `yaml:"label,omitempty" json:"label,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		MaxCells:   grid.DefaultMaxCells,
		Pool:       true,
		OutboxSize: 16,
	}
}

// Allocator builds the raster allocator the config selects.
func (c Config) Allocator() grid.Allocator {
	if c.Pool {
		return grid.NewPool(c.MaxCells)
	}
	return grid.NewLimit(c.MaxCells)
}
