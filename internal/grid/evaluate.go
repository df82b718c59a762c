package grid

import (
	"math"
	"time"

	"github.com/san-kum/regime/internal/eos"
)

// Result is the outcome of one evaluation. Raster belongs to the caller.
type Result struct {
	Raster       []byte
	Columns      uint32
	Rows         uint32
	Elapsed      time.Duration
	Unrecognized int // cells whose channel was outside the named set
}

// Evaluate walks the grid row by row and classifies every cell.
func Evaluate(spec Spec, ev eos.Evaluator, alloc Allocator) (*Result, error) {
	start := time.Now()

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	raster, err := alloc.Alloc(spec.Cells())
	if err != nil {
		return nil, err
	}

	cols, rows := int(spec.Columns), int(spec.Rows)
	unrecognized := 0

	for j := 0; j < rows; j++ {
		rho := math.Pow(10, spec.LogRho(j))
		for i := 0; i < cols; i++ {
			res := ev.Evaluate(eos.Input{
				TemperatureK:          math.Pow(10, spec.LogT(i)),
				DensityGPerCm3:        rho,
				Composition:           spec.Composition,
				RadiationDepartureEta: spec.Eta,
			})
			if !recognized(res.Dominant) {
				unrecognized++
			}
			raster[j*cols+i] = byte(Classify(res.Dominant))
		}
	}

	return &Result{
		Raster:       raster,
		Columns:      spec.Columns,
		Rows:         spec.Rows,
		Elapsed:      time.Since(start),
		Unrecognized: unrecognized,
	}, nil
}
