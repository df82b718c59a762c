package offload

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/grid"
)

var (
	ErrClosed         = errors.New("offload: channel closed")
	ErrAlreadyStarted = errors.New("offload: channel already started")
)

const defaultOutboxSize = 16

// Channel evaluates posted specs one at a time on its own goroutine.
type Channel struct {
	evaluator eos.Evaluator
	allocator grid.Allocator
	logger    *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	inbox   []grid.Spec
	started bool
	closed  bool

	outbox chan Reply
	stopCh chan struct{}
	doneCh chan struct{}

	evaluated    atomic.Uint64
	failed       atomic.Uint64
	unrecognized atomic.Uint64
}

// Stats is a point-in-time snapshot.
type Stats struct {
	Pending      int
	Evaluated    uint64
	Failed       uint64
	Unrecognized uint64
}

func New(evaluator eos.Evaluator, opts ...Option) *Channel {
	cfg := config{outboxSize: defaultOutboxSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := slog.Default()
	if cfg.logger != nil {
		logger = cfg.logger
	}
	if cfg.label != nil {
		logger = logger.With("label", *cfg.label)
	}

	alloc := cfg.allocator
	if alloc == nil {
		alloc = grid.NewLimit(grid.DefaultMaxCells)
	}

	c := &Channel{
		evaluator: evaluator,
		allocator: alloc,
		logger:    logger,
		outbox:    make(chan Reply, cfg.outboxSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start spawns the evaluation goroutine. It returns immediately. The
// goroutine stops when ctx is done or Stop is called.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info(logContextDone)
			_ = c.Stop()
		case <-c.doneCh:
		}
	}()

	c.logger.Info(logChannelStarted)
	return nil
}

// Post queues a spec. It never blocks.
func (c *Channel) Post(spec grid.Spec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.inbox = append(c.inbox, spec)
	c.cond.Signal()
	return nil
}

// Replies is closed once the channel has stopped.
func (c *Channel) Replies() <-chan Reply {
	return c.outbox
}

// Stop discards queued specs, lets a running evaluation finish, and waits
// for the goroutine to exit. Only the first call does anything; later calls
// return ErrClosed.
func (c *Channel) Stop() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.doneCh
		return ErrClosed
	}
	c.closed = true
	discarded := len(c.inbox)
	c.inbox = nil
	started := c.started
	c.cond.Broadcast()
	c.mu.Unlock()

	if discarded > 0 {
		c.logger.Info(logQueueDiscarded, "count", discarded)
	}

	close(c.stopCh)
	if !started {
		close(c.outbox)
		close(c.doneCh)
		return nil
	}

	<-c.doneCh
	return nil
}

func (c *Channel) Stats() Stats {
	c.mu.Lock()
	pending := len(c.inbox)
	c.mu.Unlock()

	return Stats{
		Pending:      pending,
		Evaluated:    c.evaluated.Load(),
		Failed:       c.failed.Load(),
		Unrecognized: c.unrecognized.Load(),
	}
}

func (c *Channel) run() {
	defer close(c.doneCh)
	defer close(c.outbox)

	for {
		spec, ok := c.next()
		if !ok {
			c.logger.Info(logChannelStopped)
			return
		}

		reply := c.process(spec)

		select {
		case c.outbox <- reply:
		case <-c.stopCh:
			c.logger.Debug(logReplyAbandoned, "seq", spec.Seq)
			reply.Release()
			c.logger.Info(logChannelStopped)
			return
		}
	}
}

func (c *Channel) next() (grid.Spec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.inbox) == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return grid.Spec{}, false
	}

	spec := c.inbox[0]
	c.inbox[0] = grid.Spec{}
	c.inbox = c.inbox[1:]
	return spec, true
}

func (c *Channel) process(spec grid.Spec) Reply {
	res, err := grid.Evaluate(spec, c.evaluator, c.allocator)
	if err != nil {
		c.failed.Add(1)
		c.logger.Error(logEvaluationFailed, "seq", spec.Seq, "error", err)
		return Reply{Failure: &Failure{Seq: spec.Seq, Err: err}}
	}

	c.evaluated.Add(1)
	if res.Unrecognized > 0 {
		c.unrecognized.Add(uint64(res.Unrecognized))
		c.logger.Warn(logUnrecognized, "seq", spec.Seq, "cells", res.Unrecognized)
	}
	c.logger.Debug(logEvaluated,
		"seq", spec.Seq,
		"cols", res.Columns,
		"rows", res.Rows,
		"elapsed", res.Elapsed,
	)

	resp := NewResponse(res.Raster, res.Columns, res.Rows, res.Elapsed, spec.Seq, c.allocator.Free)
	resp.Unrecognized = res.Unrecognized
	return Reply{Response: resp}
}
