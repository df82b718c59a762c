package grid

import "errors"

var (
	// ErrInvalidSpec indicates a spec that cannot describe a grid.
	ErrInvalidSpec = errors.New("grid: invalid spec")

	// ErrAllocation indicates the raster buffer could not be obtained.
	ErrAllocation = errors.New("grid: raster allocation refused")
)
