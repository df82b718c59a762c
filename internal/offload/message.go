package offload

import (
	"fmt"
	"time"
)

// Response carries one classified raster back to the caller.
type Response struct {
	Raster       []byte
	Columns      uint32
	Rows         uint32
	Elapsed      time.Duration
	Seq          uint64
	Unrecognized int

	free func([]byte)
}

// NewResponse builds a Response whose raster is returned through free on
// Release. free may be nil.
func NewResponse(raster []byte, cols, rows uint32, elapsed time.Duration, seq uint64, free func([]byte)) *Response {
	return &Response{
		Raster:  raster,
		Columns: cols,
		Rows:    rows,
		Elapsed: elapsed,
		Seq:     seq,
		free:    free,
	}
}

// ElapsedMillis returns the evaluation time in milliseconds.
func (r *Response) ElapsedMillis() float64 {
	return float64(r.Elapsed.Nanoseconds()) / 1e6
}

// Release gives the raster back to its allocator. Safe to call more than once.
func (r *Response) Release() {
	if r == nil || r.Raster == nil {
		return
	}
	if r.free != nil {
		r.free(r.Raster)
	}
	r.Raster = nil
}

// Failure reports a spec that produced no raster.
type Failure struct {
	Seq uint64
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("seq %d: %v", f.Seq, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Reply holds exactly one of Response or Failure.
type Reply struct {
	Response *Response
	Failure  *Failure
}

func (r Reply) Seq() uint64 {
	if r.Response != nil {
		return r.Response.Seq
	}
	if r.Failure != nil {
		return r.Failure.Seq
	}
	return 0
}

// Release frees the raster, if any.
func (r Reply) Release() {
	r.Response.Release()
}
