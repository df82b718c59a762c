package grid

import "github.com/samber/lo"

// Raster is a read-only view over a classified buffer.
type Raster struct {
	Data    []byte
	Columns uint32
	Rows    uint32
}

// At returns the code of column i, row j.
func (r Raster) At(i, j int) Code {
	return Code(r.Data[j*int(r.Columns)+i])
}

// Histogram counts cells per code. Codes with no cells are present with 0.
func Histogram(data []byte) map[Code]int {
	counts := lo.CountValuesBy(data, func(b byte) Code { return Code(b) })
	for _, c := range Codes {
		if _, ok := counts[c]; !ok {
			counts[c] = 0
		}
	}
	return counts
}
