package grid

import (
	"fmt"
	"math"
	"sync"
)

// DefaultMaxCells bounds a single raster at 16 MiB.
const DefaultMaxCells = 1 << 24

// Allocator hands out raster buffers. Free is called by whoever owns the
// buffer last; after Free the caller must not touch it again.
type Allocator interface {
	Alloc(n uint64) ([]byte, error)
	Free(buf []byte)
}

// Limit allocates from the heap and refuses rasters above MaxCells.
type Limit struct {
	MaxCells uint64
}

func NewLimit(maxCells uint64) *Limit {
	return &Limit{MaxCells: maxCells}
}

func (l *Limit) Alloc(n uint64) ([]byte, error) {
	if err := checkSize(n, l.MaxCells); err != nil {
		return nil, err
	}
	return make([]byte, n), nil
}

func (l *Limit) Free([]byte) {}

// Pool recycles raster buffers across evaluations.
type Pool struct {
	pool     sync.Pool
	maxCells uint64
}

func NewPool(maxCells uint64) *Pool {
	if maxCells == 0 {
		maxCells = DefaultMaxCells
	}
	return &Pool{
		maxCells: maxCells,
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 0)
				return &buf
			},
		},
	}
}

func (p *Pool) Alloc(n uint64) ([]byte, error) {
	if err := checkSize(n, p.maxCells); err != nil {
		return nil, err
	}
	bp := p.pool.Get().(*[]byte)
	buf := *bp
	if uint64(cap(buf)) < n {
		buf = make([]byte, n)
	}
	// every cell is overwritten by Evaluate, no need to clear
	return buf[:n], nil
}

func (p *Pool) Free(buf []byte) {
	if buf == nil || uint64(cap(buf)) > p.maxCells {
		return
	}
	buf = buf[:0]
	p.pool.Put(&buf)
}

func checkSize(n, limit uint64) error {
	if limit == 0 {
		limit = DefaultMaxCells
	}
	if n > limit || n > math.MaxInt {
		return fmt.Errorf("%w: %d cells exceeds limit %d", ErrAllocation, n, limit)
	}
	return nil
}
