package metrics

import "github.com/san-kum/regime/internal/grid"

// Boundary is the share of neighbouring cell pairs, horizontal and
// vertical, whose codes differ. A raster of one regime scores 0.
type Boundary struct {
	name    string
	total   float64
	samples int
}

func NewBoundary() *Boundary {
	return &Boundary{name: "boundary"}
}

func (b *Boundary) Name() string { return b.name }

func (b *Boundary) Observe(r grid.Raster) {
	cols, rows := int(r.Columns), int(r.Rows)
	if cols == 0 || rows == 0 || len(r.Data) < cols*rows {
		return
	}
	pairs := (cols-1)*rows + cols*(rows-1)
	if pairs == 0 {
		b.samples++
		return
	}

	edges := 0
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			c := r.At(i, j)
			if i+1 < cols && r.At(i+1, j) != c {
				edges++
			}
			if j+1 < rows && r.At(i, j+1) != c {
				edges++
			}
		}
	}
	b.total += float64(edges) / float64(pairs)
	b.samples++
}

func (b *Boundary) Value() float64 {
	if b.samples == 0 {
		return 0
	}
	return b.total / float64(b.samples)
}

func (b *Boundary) Reset() {
	b.total = 0
	b.samples = 0
}
