// Package metrics summarizes classified rasters. A metric observes any
// number of rasters and reports the mean over what it has seen.
package metrics

import (
	"fmt"

	"github.com/san-kum/regime/internal/grid"
)

type Metric interface {
	Name() string
	Observe(r grid.Raster)
	Value() float64
	Reset()
}

// Standard returns one Fraction per code followed by Boundary.
func Standard() []Metric {
	ms := make([]Metric, 0, len(grid.Codes)+1)
	for _, c := range grid.Codes {
		ms = append(ms, NewFraction(c))
	}
	return append(ms, NewBoundary())
}

// Fraction is the share of cells carrying one code.
type Fraction struct {
	name    string
	code    grid.Code
	total   float64
	samples int
}

func NewFraction(code grid.Code) *Fraction {
	return &Fraction{
		name: fmt.Sprintf("%s_fraction", code),
		code: code,
	}
}

func (f *Fraction) Name() string { return f.name }

func (f *Fraction) Observe(r grid.Raster) {
	if len(r.Data) == 0 {
		return
	}
	n := 0
	for _, b := range r.Data {
		if grid.Code(b) == f.code {
			n++
		}
	}
	f.total += float64(n) / float64(len(r.Data))
	f.samples++
}

func (f *Fraction) Value() float64 {
	if f.samples == 0 {
		return 0
	}
	return f.total / float64(f.samples)
}

func (f *Fraction) Reset() {
	f.total = 0
	f.samples = 0
}
