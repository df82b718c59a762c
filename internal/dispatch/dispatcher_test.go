package dispatch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/regime/internal/dispatch"
	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/offload"
)

type recordingPoster struct {
	mu    sync.Mutex
	specs []grid.Spec
	err   error
}

func (p *recordingPoster) Post(spec grid.Spec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.specs = append(p.specs, spec)
	return nil
}

func (p *recordingPoster) seqs() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint64, len(p.specs))
	for i, s := range p.specs {
		out[i] = s.Seq
	}
	return out
}

type recordingSink struct {
	mu       sync.Mutex
	accepted []uint64
	failed   []error
}

func (s *recordingSink) Accept(resp *offload.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted = append(s.accepted, resp.Seq)
	resp.Release()
}

func (s *recordingSink) Fail(_ uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, err)
}

func (s *recordingSink) acceptedSeqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.accepted...)
}

func (s *recordingSink) failures() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.failed...)
}

func response(seq uint64, released *int) *offload.Response {
	return offload.NewResponse(make([]byte, 4), 2, 2, time.Millisecond, seq, func([]byte) {
		*released++
	})
}

func params() grid.Params {
	return grid.Params{
		LogTMin: 3, LogTMax: 7, LogRhoMin: -6, LogRhoMax: 4,
		Columns: 5, Rows: 5,
		Composition: eos.Composition{X: 0.7, Y: 0.28, Z: 0.02},
	}
}

var _ = Describe("Dispatcher", func() {
	var (
		poster *recordingPoster
		d      *dispatch.Dispatcher
		logger *slog.Logger
	)

	BeforeEach(func() {
		poster = &recordingPoster{}
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		d = dispatch.New(poster, dispatch.WithLogger(logger), dispatch.WithSession("test"))
	})

	Describe("Dispatch", func() {
		It("starts at zero and increments by exactly one", func() {
			Expect(d.Latest()).To(BeZero())
			for want := uint64(1); want <= 5; want++ {
				seq, err := d.Dispatch(params())
				Expect(err).NotTo(HaveOccurred())
				Expect(seq).To(Equal(want))
				Expect(d.Latest()).To(Equal(want))
			}
			Expect(poster.seqs()).To(Equal([]uint64{1, 2, 3, 4, 5}))
		})

		It("consumes a sequence number when posting fails", func() {
			poster.err = offload.ErrClosed
			seq, err := d.Dispatch(params())
			Expect(err).To(MatchError(offload.ErrClosed))
			Expect(seq).To(BeEquivalentTo(1))
			Expect(d.Latest()).To(BeEquivalentTo(1))
		})

		It("keeps posting order equal to sequence order under concurrency", func() {
			var wg sync.WaitGroup
			for range 50 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = d.Dispatch(params())
				}()
			}
			wg.Wait()

			seqs := poster.seqs()
			Expect(seqs).To(HaveLen(50))
			for i, s := range seqs {
				Expect(s).To(BeEquivalentTo(i + 1))
			}
		})
	})

	Describe("OnResponse", func() {
		It("accepts only the newest of responses arriving 1, 3, 2", func() {
			for range 3 {
				_, err := d.Dispatch(params())
				Expect(err).NotTo(HaveOccurred())
			}

			released := 0
			outcomes := make([]dispatch.Outcome, 0, 3)
			for _, seq := range []uint64{1, 3, 2} {
				o, err := d.OnResponse(response(seq, &released))
				Expect(err).NotTo(HaveOccurred())
				outcomes = append(outcomes, o)
			}

			Expect(outcomes).To(Equal([]dispatch.Outcome{dispatch.Dropped, dispatch.Accepted, dispatch.Dropped}))
			Expect(released).To(Equal(2), "dropped rasters go back to the allocator")
		})

		It("treats a response ahead of the latest issued as fatal", func() {
			_, _ = d.Dispatch(params())
			released := 0
			_, err := d.OnResponse(response(7, &released))
			Expect(err).To(MatchError(dispatch.ErrSequenceRegression))
		})

		It("rejects a second response for the same request", func() {
			_, _ = d.Dispatch(params())
			released := 0
			o, err := d.OnResponse(response(1, &released))
			Expect(err).NotTo(HaveOccurred())
			Expect(o).To(Equal(dispatch.Accepted))

			_, err = d.OnResponse(response(1, &released))
			Expect(err).To(MatchError(dispatch.ErrDuplicateReply))
		})
	})

	Describe("OnFailure", func() {
		It("surfaces a failure of the newest request", func() {
			_, _ = d.Dispatch(params())
			o, err := d.OnFailure(&offload.Failure{Seq: 1, Err: grid.ErrAllocation})
			Expect(o).To(Equal(dispatch.Accepted))
			Expect(err).To(MatchError(dispatch.ErrRequestFailed))
			Expect(err).To(MatchError(grid.ErrAllocation))
		})

		It("drops a failure of a stale request", func() {
			_, _ = d.Dispatch(params())
			_, _ = d.Dispatch(params())
			o, err := d.OnFailure(&offload.Failure{Seq: 1, Err: grid.ErrAllocation})
			Expect(o).To(Equal(dispatch.Dropped))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Run", func() {
		It("delivers exactly one result for a burst of three", func() {
			ch := offload.New(eos.NewIdeal(), offload.WithLogger(logger))
			ctx, cancel := context.WithCancel(context.Background())
			DeferCleanup(cancel)
			Expect(ch.Start(ctx)).To(Succeed())
			DeferCleanup(func() { _ = ch.Stop() })

			d = dispatch.New(ch, dispatch.WithLogger(logger))
			for range 3 {
				_, err := d.Dispatch(params())
				Expect(err).NotTo(HaveOccurred())
			}

			sink := &recordingSink{}
			done := make(chan error, 1)
			go func() { done <- d.Run(ctx, ch.Replies(), sink) }()

			Eventually(func() uint64 { return d.Stats().Accepted + d.Stats().Dropped }).Should(BeEquivalentTo(3))
			Expect(sink.acceptedSeqs()).To(Equal([]uint64{3}))
			Expect(d.Stats().Dropped).To(BeEquivalentTo(2))

			cancel()
			Eventually(done).Should(Receive())
		})

		It("routes the newest failure to the sink and keeps running", func() {
			replies := make(chan offload.Reply, 2)
			sink := &recordingSink{}
			_, _ = d.Dispatch(params())

			replies <- offload.Reply{Failure: &offload.Failure{Seq: 1, Err: errors.New("boom")}}
			close(replies)

			Expect(d.Run(context.Background(), replies, sink)).To(Succeed())
			Expect(sink.failures()).To(HaveLen(1))
			Expect(sink.failures()[0]).To(MatchError(dispatch.ErrRequestFailed))
			Expect(d.Stats().Failed).To(BeEquivalentTo(1))
		})

		It("stops on a sequence regression", func() {
			replies := make(chan offload.Reply, 1)
			released := 0
			replies <- offload.Reply{Response: response(9, &released)}

			err := d.Run(context.Background(), replies, &recordingSink{})
			Expect(err).To(MatchError(dispatch.ErrSequenceRegression))
			Expect(released).To(Equal(1))
		})
	})

	It("names outcomes", func() {
		Expect(dispatch.Accepted.String()).To(Equal("accepted"))
		Expect(dispatch.Dropped.String()).To(Equal("dropped"))
		Expect(dispatch.Outcome(9).String()).To(Equal("unknown"))
	})

	It("reports a session identifier", func() {
		Expect(d.Session()).To(Equal("test"))
		Expect(dispatch.New(poster).Session()).To(HaveLen(36))
	})
})

var _ = Describe("Observer", func() {
	It("sees stale and current replies before rasters are released", func() {
		var seen []dispatch.Observation
		var rasterLens []int
		d := dispatch.New(&recordingPoster{}, dispatch.WithObserver(func(o dispatch.Observation) {
			seen = append(seen, o)
			rasterLens = append(rasterLens, len(o.Raster))
		}))
		for range 3 {
			_, _ = d.Dispatch(params())
		}

		released := 0
		_, _ = d.OnResponse(response(1, &released))
		_, _ = d.OnFailure(&offload.Failure{Seq: 2, Err: grid.ErrAllocation})
		_, _ = d.OnResponse(response(3, &released))

		Expect(seen).To(HaveLen(3))
		Expect(seen[0].Outcome).To(Equal(dispatch.Dropped))
		Expect(seen[1].Err).To(MatchError(grid.ErrAllocation))
		Expect(seen[2].Outcome).To(Equal(dispatch.Accepted))
		Expect(seen[2].Elapsed).To(Equal(time.Millisecond))
		Expect(rasterLens).To(Equal([]int{4, 0, 4}))
	})
})
