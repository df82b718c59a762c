package server

import (
	"log/slog"
	"sync"

	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/offload"
)

// correlator routes replies from a shared channel to per-request waiters.
type correlator struct {
	poster interface{ Post(grid.Spec) error }
	logger *slog.Logger

	mu      sync.Mutex
	next    uint64
	waiters map[uint64]chan offload.Reply
	closed  bool
}

func newCorrelator(poster interface{ Post(grid.Spec) error }, logger *slog.Logger) *correlator {
	return &correlator{
		poster:  poster,
		logger:  logger,
		waiters: make(map[uint64]chan offload.Reply),
	}
}

// submit posts params under a fresh number and returns where its reply
// will arrive.
func (c *correlator) submit(params grid.Params) (uint64, <-chan offload.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, nil, offload.ErrClosed
	}
	c.next++
	seq := c.next
	ch := make(chan offload.Reply, 1)
	if err := c.poster.Post(grid.Spec{Params: params, Seq: seq}); err != nil {
		return 0, nil, err
	}
	c.waiters[seq] = ch
	return seq, ch, nil
}

// abandon forgets seq so its reply is released on arrival. It reports
// false when the reply was already routed to the waiter, or is about to be.
func (c *correlator) abandon(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.waiters[seq]
	delete(c.waiters, seq)
	return ok
}

// cancel abandons seq and releases its reply if the waiter already owns it.
// Once run has taken a waiter out of the map the send on its buffered
// channel always happens, so the receive cannot hang.
func (c *correlator) cancel(seq uint64, replyCh <-chan offload.Reply) {
	if c.abandon(seq) {
		return
	}
	late := <-replyCh
	late.Release()
}

func (c *correlator) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *correlator) run(replies <-chan offload.Reply) {
	for reply := range replies {
		c.mu.Lock()
		ch, ok := c.waiters[reply.Seq()]
		delete(c.waiters, reply.Seq())
		c.mu.Unlock()

		if !ok {
			c.logger.Debug(logReplyOrphaned, "seq", reply.Seq())
			reply.Release()
			continue
		}
		ch <- reply
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.logger.Info(logRepliesClosed, "waiters", len(c.waiters))
	for seq, ch := range c.waiters {
		ch <- offload.Reply{Failure: &offload.Failure{Seq: seq, Err: offload.ErrClosed}}
		delete(c.waiters, seq)
	}
}
