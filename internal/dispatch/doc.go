// Package dispatch sequences grid requests and filters stale replies.
//
// Every Dispatch stamps the next sequence number and posts the spec without
// waiting. Replies are compared to the latest number issued: an equal number
// is accepted, a smaller one is dropped silently, a larger one is a protocol
// violation and is returned as [ErrSequenceRegression].
//
// Dropping is the only form of cancellation. Nothing already posted is
// withdrawn; the channel's FIFO order guarantees the reply for the newest
// request is the last one to arrive.
package dispatch
