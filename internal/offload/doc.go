// Package offload runs grid evaluations on a single dedicated goroutine.
//
// A [Channel] is an actor: callers Post specs, the evaluation goroutine
// processes them strictly in FIFO order, one at a time, and emits exactly one
// [Reply] per spec on the outbox. Nothing is shared between the caller and
// the goroutine except the messages themselves.
//
// # Ownership
//
// A Response's raster is owned by whoever holds the Response. The channel
// keeps no reference after sending it. The final owner calls
// [Response.Release] to hand the buffer back to the allocator; after that
// the raster must not be touched.
//
// # Cancellation
//
// There is none. An evaluation that has started always runs to completion.
// Stop discards specs that have not started yet.
package offload
