// Package grid evaluates a (log T, log ρ) sweep into a one-byte-per-cell
// raster of dominant pressure channels.
//
// The raster is row-major: cell (i, j) lives at j*Columns + i, with column i
// stepping temperature and row j stepping density. Every cell holds a [Code].
//
// [Evaluate] is synchronous and stateless; it is meant to run on a dedicated
// goroutine (see package offload) and never blocks on anything but the
// evaluator it is given.
package grid
