package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/san-kum/regime/internal/dispatch"
	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/offload"
)

const errorBuffer = 8

// RequestError is a failure of the newest request at the time it arrived.
type RequestError struct {
	Seq uint64
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %d: %v", e.Seq, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type Stats struct {
	Dispatch dispatch.Stats
	Channel  offload.Stats
	// Replaced counts accepted results overwritten before anyone read them.
	Replaced uint64
}

type Session struct {
	channel    *offload.Channel
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	// mu serializes mailbox replacement.
	mu       sync.Mutex
	accepted chan *offload.Response
	errs     chan error

	cancel   context.CancelFunc
	runDone  chan struct{}
	runErr   error
	replaced atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// Open starts a session evaluating with ev. It lives until Close is called
// or ctx ends. opts are passed to the session's dispatcher.
func Open(ctx context.Context, ev eos.Evaluator, cfg Config, logger *slog.Logger, opts ...dispatch.Option) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	chOpts := []offload.Option{
		offload.WithLogger(logger),
		offload.WithAllocator(cfg.Allocator()),
		offload.WithOutboxSize(cfg.OutboxSize),
	}
	if cfg.Label != "" {
		chOpts = append(chOpts, offload.WithLabel(cfg.Label))
	}
	ch := offload.New(ev, chOpts...)

	ctx, cancel := context.WithCancel(ctx)
	if err := ch.Start(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("start channel: %w", err)
	}

	d := dispatch.New(ch, append([]dispatch.Option{dispatch.WithLogger(logger)}, opts...)...)
	s := &Session{
		channel:    ch,
		dispatcher: d,
		logger:     logger.With("session", d.Session()),
		accepted:   make(chan *offload.Response, 1),
		errs:       make(chan error, errorBuffer),
		cancel:     cancel,
		runDone:    make(chan struct{}),
	}

	go func() {
		defer close(s.runDone)
		err := d.Run(ctx, ch.Replies(), s)
		// ctx ending, by cancel or deadline, is a clean stop
		if err != nil && ctx.Err() == nil {
			s.runErr = err
			s.pushError(err)
		}
		s.logger.Debug(logDispatcherEnded)
	}()

	s.logger.Info(logSessionOpened)
	return s, nil
}

func (s *Session) ID() string { return s.dispatcher.Session() }

// Dispatch submits params for evaluation and returns their sequence number.
func (s *Session) Dispatch(params grid.Params) (uint64, error) {
	return s.dispatcher.Dispatch(params)
}

// Latest is the most recently issued sequence number.
func (s *Session) Latest() uint64 { return s.dispatcher.Latest() }

// Accepted delivers results that were current when they arrived. The
// receiver owns each response and should Release it when done.
func (s *Session) Accepted() <-chan *offload.Response { return s.accepted }

// Done is closed once the session has stopped consuming replies.
func (s *Session) Done() <-chan struct{} { return s.runDone }

// Errors delivers failures of current requests and fatal protocol errors.
func (s *Session) Errors() <-chan error { return s.errs }

// Accept implements dispatch.Sink.
func (s *Session) Accept(resp *offload.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case old := <-s.accepted:
		s.replaced.Add(1)
		s.logger.Debug(logResultReplaced, "seq", old.Seq, "by", resp.Seq)
		old.Release()
	default:
	}
	s.accepted <- resp
}

// Fail implements dispatch.Sink.
func (s *Session) Fail(seq uint64, err error) {
	s.pushError(&RequestError{Seq: seq, Err: err})
}

func (s *Session) pushError(err error) {
	select {
	case s.errs <- err:
	default:
		s.logger.Warn(logErrorOverflow, "error", err)
	}
}

// Await blocks until the request numbered seq settles. Results and failures
// for older requests are discarded on the way. A newer dispatch makes seq
// stale; Await then keeps waiting for a result that will never come, so
// callers should bound it with ctx.
func (s *Session) Await(ctx context.Context, seq uint64) (*offload.Response, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp := <-s.accepted:
			if resp.Seq == seq {
				return resp, nil
			}
			resp.Release()
		case err := <-s.errs:
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				return nil, err
			}
			if reqErr.Seq == seq {
				return nil, err
			}
		case <-s.runDone:
			if s.runErr != nil {
				return nil, s.runErr
			}
			// the result may have landed just before the loop ended
			select {
			case resp := <-s.accepted:
				if resp.Seq == seq {
					return resp, nil
				}
				resp.Release()
			default:
			}
			return nil, offload.ErrClosed
		}
	}
}

func (s *Session) Stats() Stats {
	return Stats{
		Dispatch: s.dispatcher.Stats(),
		Channel:  s.channel.Stats(),
		Replaced: s.replaced.Load(),
	}
}

// Close stops the channel, waits for in-flight work, and releases every
// raster still held by the session.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var result *multierror.Error

		s.cancel()
		if err := s.channel.Stop(); err != nil && !errors.Is(err, offload.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("stop channel: %w", err))
		}
		<-s.runDone
		if s.runErr != nil {
			result = multierror.Append(result, s.runErr)
		}

		for reply := range s.channel.Replies() {
			reply.Release()
		}
		select {
		case resp := <-s.accepted:
			resp.Release()
		default:
		}

		s.closeErr = result.ErrorOrNil()
		s.logger.Info(logSessionClosed, "stats", s.dispatcher.Stats())
	})
	return s.closeErr
}
