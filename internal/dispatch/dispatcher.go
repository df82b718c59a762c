package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/offload"
)

// Poster is the sending half of a computation channel.
type Poster interface {
	Post(spec grid.Spec) error
}

// Sink receives what survives the staleness filter.
type Sink interface {
	Accept(resp *offload.Response)
	Fail(seq uint64, err error)
}

type Outcome int

const (
	Accepted Outcome = iota
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Observation describes one settled reply. Raster is only valid for the
// duration of the callback and is nil for failures.
type Observation struct {
	Seq     uint64
	Outcome Outcome
	Elapsed time.Duration
	Raster  []byte
	Err     error
}

type Stats struct {
	Session    string
	Latest     uint64
	Dispatched uint64
	Accepted   uint64
	Dropped    uint64
	Failed     uint64
}

type Dispatcher struct {
	poster   Poster
	logger   *slog.Logger
	session  string
	observer func(Observation)

	// postMu keeps sequence order equal to posting order.
	postMu sync.Mutex
	latest atomic.Uint64
	// settled is the last sequence number accepted or failed.
	settled atomic.Uint64

	dispatched atomic.Uint64
	accepted   atomic.Uint64
	dropped    atomic.Uint64
	failed     atomic.Uint64
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithObserver registers fn to see every reply the dispatcher settles,
// stale ones included. fn runs on the goroutine calling OnResponse or
// OnFailure and must not block.
func WithObserver(fn func(Observation)) Option {
	return func(d *Dispatcher) {
		d.observer = fn
	}
}

// WithSession overrides the generated session ID.
func WithSession(id string) Option {
	return func(d *Dispatcher) {
		d.session = id
	}
}

func New(poster Poster, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		poster:  poster,
		logger:  slog.Default(),
		session: uuid.Must(uuid.NewV7()).String(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("session", d.session)
	return d
}

func (d *Dispatcher) Session() string { return d.session }

// Latest returns the most recently issued sequence number (0 before any).
func (d *Dispatcher) Latest() uint64 { return d.latest.Load() }

// Dispatch stamps params with the next sequence number and posts them. The
// number is consumed even when posting fails.
func (d *Dispatcher) Dispatch(params grid.Params) (uint64, error) {
	d.postMu.Lock()
	defer d.postMu.Unlock()

	seq := d.latest.Add(1)
	d.dispatched.Add(1)

	if err := d.poster.Post(grid.Spec{Params: params, Seq: seq}); err != nil {
		return seq, fmt.Errorf("dispatch seq %d: %w", seq, err)
	}
	d.logger.Debug(logDispatched, "seq", seq)
	return seq, nil
}

// OnResponse applies the staleness rule. Dropped rasters are released here.
func (d *Dispatcher) OnResponse(resp *offload.Response) (Outcome, error) {
	outcome, err := d.judge(resp.Seq)
	if err != nil {
		resp.Release()
		return outcome, err
	}

	if d.observer != nil {
		d.observer(Observation{Seq: resp.Seq, Outcome: outcome, Elapsed: resp.Elapsed, Raster: resp.Raster})
	}

	switch outcome {
	case Accepted:
		d.accepted.Add(1)
		d.logger.Debug(logAccepted, "seq", resp.Seq, "elapsed", resp.Elapsed)
	case Dropped:
		d.dropped.Add(1)
		d.logger.Debug(logDropped, "seq", resp.Seq, "latest", d.latest.Load())
		resp.Release()
	}
	return outcome, nil
}

// OnFailure applies the staleness rule to a failed request. A failure of the
// newest request is returned wrapped in ErrRequestFailed.
func (d *Dispatcher) OnFailure(f *offload.Failure) (Outcome, error) {
	outcome, err := d.judge(f.Seq)
	if err != nil {
		return outcome, err
	}

	if d.observer != nil {
		d.observer(Observation{Seq: f.Seq, Outcome: outcome, Err: f.Err})
	}

	if outcome == Dropped {
		d.dropped.Add(1)
		d.logger.Debug(logStaleFailure, "seq", f.Seq, "error", f.Err)
		return Dropped, nil
	}

	d.failed.Add(1)
	d.logger.Warn(logRequestFailed, "seq", f.Seq, "error", f.Err)
	return Accepted, fmt.Errorf("%w: %w", ErrRequestFailed, f)
}

func (d *Dispatcher) judge(seq uint64) (Outcome, error) {
	latest := d.latest.Load()
	switch {
	case seq > latest:
		return Dropped, fmt.Errorf("%w: reply %d, latest %d", ErrSequenceRegression, seq, latest)
	case seq < latest:
		return Dropped, nil
	}

	if d.settled.Swap(seq) == seq {
		return Dropped, fmt.Errorf("%w: seq %d", ErrDuplicateReply, seq)
	}
	return Accepted, nil
}

// Run pumps replies through the staleness filter into sink until replies is
// closed, ctx ends, or a protocol violation occurs. Violations are returned.
func (d *Dispatcher) Run(ctx context.Context, replies <-chan offload.Reply, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reply, ok := <-replies:
			if !ok {
				d.logger.Debug(logRepliesClosed)
				return nil
			}
			if err := d.route(reply, sink); err != nil {
				d.logger.Error(logProtocolBroken, "error", err)
				return err
			}
		}
	}
}

func (d *Dispatcher) route(reply offload.Reply, sink Sink) error {
	if reply.Failure != nil {
		outcome, err := d.OnFailure(reply.Failure)
		if outcome == Accepted && err != nil {
			sink.Fail(reply.Failure.Seq, err)
			return nil
		}
		return err
	}

	outcome, err := d.OnResponse(reply.Response)
	if err != nil {
		return err
	}
	if outcome == Accepted {
		sink.Accept(reply.Response)
	}
	return nil
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Session:    d.session,
		Latest:     d.latest.Load(),
		Dispatched: d.dispatched.Load(),
		Accepted:   d.accepted.Load(),
		Dropped:    d.dropped.Load(),
		Failed:     d.failed.Load(),
	}
}
