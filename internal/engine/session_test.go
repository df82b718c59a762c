package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/regime/internal/dispatch"
	"github.com/san-kum/regime/internal/engine"
	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/offload"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func scenario() grid.Params {
	return grid.Params{
		LogTMin: 3, LogTMax: 7, LogRhoMin: -6, LogRhoMax: 4,
		Columns: 5, Rows: 5,
		Composition: eos.Composition{X: 0.7, Y: 0.28, Z: 0.02},
	}
}

// gate holds every evaluation until opened.
type gate struct{ ch chan struct{} }

func (g gate) Evaluate(eos.Input) eos.Result {
	<-g.ch
	return eos.Result{Dominant: eos.Radiation}
}

var _ = Describe("Session", func() {
	var ctx context.Context

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)
	})

	open := func(ev eos.Evaluator) *engine.Session {
		s, err := engine.Open(ctx, ev, engine.DefaultConfig(), quiet)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = s.Close() })
		return s
	}

	It("returns the scenario raster", func() {
		s := open(eos.NewIdeal())

		seq, err := s.Dispatch(scenario())
		Expect(err).NotTo(HaveOccurred())
		Expect(seq).To(BeEquivalentTo(1))

		resp, err := s.Await(ctx, seq)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Release)

		Expect(resp.Raster).To(HaveLen(25))
		for _, b := range resp.Raster {
			Expect(b).To(BeNumerically("<=", 3))
		}
		Expect(resp.Elapsed).To(BeNumerically(">=", 0))
	})

	It("accepts only the last of a burst", func() {
		g := gate{ch: make(chan struct{})}
		s := open(g)

		var last uint64
		for range 3 {
			var err error
			last, err = s.Dispatch(scenario())
			Expect(err).NotTo(HaveOccurred())
		}
		close(g.ch)

		resp, err := s.Await(ctx, last)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Seq).To(BeEquivalentTo(3))
		Expect(resp.Raster).To(HaveEach(byte(grid.CodeRadiation)))
		resp.Release()

		stats := s.Stats()
		Expect(stats.Dispatch.Accepted).To(BeEquivalentTo(1))
		Expect(stats.Dispatch.Dropped).To(BeEquivalentTo(2))
		Expect(stats.Channel.Evaluated).To(BeEquivalentTo(3))
	})

	It("replaces an unread result with a newer one", func() {
		s := open(eos.NewIdeal())

		_, err := s.Dispatch(scenario())
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() uint64 { return s.Stats().Dispatch.Accepted }).Should(BeEquivalentTo(1))

		_, err = s.Dispatch(scenario())
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() uint64 { return s.Stats().Dispatch.Accepted }).Should(BeEquivalentTo(2))

		Expect(s.Stats().Replaced).To(BeEquivalentTo(1))
		var resp *offload.Response
		Expect(s.Accepted()).To(Receive(&resp))
		Expect(resp.Seq).To(BeEquivalentTo(2))
		resp.Release()
		Expect(s.Accepted()).NotTo(Receive())
	})

	It("surfaces a failure of the newest request", func() {
		s := open(eos.NewIdeal())

		bad := scenario()
		bad.Columns = 0
		seq, err := s.Dispatch(bad)
		Expect(err).NotTo(HaveOccurred())

		_, err = s.Await(ctx, seq)
		Expect(err).To(MatchError(grid.ErrInvalidSpec))
		Expect(err).To(MatchError(dispatch.ErrRequestFailed))

		var reqErr *engine.RequestError
		Expect(errors.As(err, &reqErr)).To(BeTrue())
		Expect(reqErr.Seq).To(Equal(seq))
		Expect(s.Stats().Dispatch.Failed).To(BeEquivalentTo(1))
	})

	It("honours the cell ceiling", func() {
		cfg := engine.DefaultConfig()
		cfg.MaxCells = 10
		s, err := engine.Open(ctx, eos.NewIdeal(), cfg, quiet)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = s.Close() })

		seq, err := s.Dispatch(scenario())
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Await(ctx, seq)
		Expect(err).To(MatchError(grid.ErrAllocation))
	})

	It("refuses work after Close", func() {
		s := open(eos.NewIdeal())
		Expect(s.Close()).To(Succeed())
		Expect(s.Close()).To(Succeed())

		_, err := s.Dispatch(scenario())
		Expect(err).To(MatchError(offload.ErrClosed))

		_, err = s.Await(ctx, 1)
		Expect(err).To(MatchError(offload.ErrClosed))
	})

	It("closes when its context ends", func() {
		local, cancel := context.WithCancel(ctx)
		s, err := engine.Open(local, eos.NewIdeal(), engine.DefaultConfig(), quiet)
		Expect(err).NotTo(HaveOccurred())
		cancel()

		Eventually(func() error {
			_, err := s.Dispatch(scenario())
			return err
		}).Should(MatchError(offload.ErrClosed))
		Expect(s.Close()).To(Succeed())
	})

	It("treats a context deadline as a clean stop", func() {
		local, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		DeferCleanup(cancel)
		s, err := engine.Open(local, eos.NewIdeal(), engine.DefaultConfig(), quiet)
		Expect(err).NotTo(HaveOccurred())

		Eventually(s.Done()).Should(BeClosed())
		Expect(s.Errors()).NotTo(Receive())
		Expect(s.Close()).To(Succeed())
	})

	It("hands over a result still in the mailbox after the loop ends", func() {
		local, cancel := context.WithCancel(ctx)
		s, err := engine.Open(local, eos.NewIdeal(), engine.DefaultConfig(), quiet)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = s.Close() })

		seq, err := s.Dispatch(scenario())
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() uint64 { return s.Stats().Dispatch.Accepted }).Should(BeEquivalentTo(1))

		cancel()
		Eventually(s.Done()).Should(BeClosed())

		// both the mailbox and Done are ready; the result must win every time
		resp, err := s.Await(ctx, seq)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Seq).To(Equal(seq))
		resp.Release()
	})

	It("has a session identifier", func() {
		s := open(eos.NewIdeal())
		Expect(s.ID()).To(HaveLen(36))
	})
})
