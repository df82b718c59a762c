package offload_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/offload"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// gatedEvaluator blocks every call until the gate is closed.
type gatedEvaluator struct {
	gate  chan struct{}
	calls atomic.Int64
}

func newGated() *gatedEvaluator {
	return &gatedEvaluator{gate: make(chan struct{})}
}

func (g *gatedEvaluator) Evaluate(eos.Input) eos.Result {
	g.calls.Add(1)
	<-g.gate
	return eos.Result{Dominant: eos.Gas}
}

type countingAllocator struct {
	mu    sync.Mutex
	freed int
	limit *grid.Limit
}

func (a *countingAllocator) Alloc(n uint64) ([]byte, error) { return a.limit.Alloc(n) }
func (a *countingAllocator) Free([]byte) {
	a.mu.Lock()
	a.freed++
	a.mu.Unlock()
}
func (a *countingAllocator) Freed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freed
}

func tinySpec(seq uint64) grid.Spec {
	return grid.Spec{
		Params: grid.Params{
			LogTMin: 3, LogTMax: 7, LogRhoMin: -6, LogRhoMax: 4,
			Columns: 1, Rows: 1,
			Composition: eos.Composition{X: 0.7, Y: 0.28, Z: 0.02},
		},
		Seq: seq,
	}
}

func drain(ch <-chan offload.Reply) []offload.Reply {
	var out []offload.Reply
	for r := range ch {
		out = append(out, r)
	}
	return out
}

var _ = Describe("Channel", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)
	})

	It("answers every spec exactly once in posting order", func() {
		ch := offload.New(eos.NewIdeal(), offload.WithLogger(quiet))
		for seq := uint64(1); seq <= 5; seq++ {
			Expect(ch.Post(tinySpec(seq))).To(Succeed())
		}
		Expect(ch.Start(ctx)).To(Succeed())

		var seqs []uint64
		for i := 0; i < 5; i++ {
			var r offload.Reply
			Eventually(ch.Replies()).Should(Receive(&r))
			Expect(r.Response).NotTo(BeNil())
			Expect(r.Response.Raster).To(HaveLen(1))
			seqs = append(seqs, r.Seq())
		}
		Expect(seqs).To(Equal([]uint64{1, 2, 3, 4, 5}))
		Expect(ch.Stop()).To(Succeed())
		Expect(ch.Stats().Evaluated).To(BeEquivalentTo(5))
	})

	It("never blocks the poster while an evaluation is running", func() {
		ev := newGated()
		ch := offload.New(ev, offload.WithLogger(quiet), offload.WithOutboxSize(0))
		Expect(ch.Start(ctx)).To(Succeed())

		Expect(ch.Post(tinySpec(1))).To(Succeed())
		Eventually(ev.calls.Load).Should(BeEquivalentTo(1))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for seq := uint64(2); seq <= 100; seq++ {
				_ = ch.Post(tinySpec(seq))
			}
		}()
		Eventually(done).Should(BeClosed())
		Expect(ch.Stats().Pending).To(Equal(99))
		Expect(ev.calls.Load()).To(BeEquivalentTo(1))

		close(ev.gate)
		for seq := uint64(1); seq <= 100; seq++ {
			var r offload.Reply
			Eventually(ch.Replies()).Should(Receive(&r))
			Expect(r.Seq()).To(Equal(seq))
		}
		Expect(ch.Stop()).To(Succeed())
	})

	It("fails a request whose raster cannot be allocated and keeps going", func() {
		ch := offload.New(eos.NewIdeal(),
			offload.WithLogger(quiet),
			offload.WithAllocator(grid.NewLimit(4)),
		)
		big := tinySpec(1)
		big.Columns, big.Rows = 3, 3
		Expect(ch.Post(big)).To(Succeed())
		Expect(ch.Post(tinySpec(2))).To(Succeed())
		Expect(ch.Start(ctx)).To(Succeed())

		var r offload.Reply
		Eventually(ch.Replies()).Should(Receive(&r))
		Expect(r.Response).To(BeNil())
		Expect(r.Failure).NotTo(BeNil())
		Expect(r.Failure.Seq).To(BeEquivalentTo(1))
		Expect(r.Failure).To(MatchError(grid.ErrAllocation))

		Eventually(ch.Replies()).Should(Receive(&r))
		Expect(r.Response).NotTo(BeNil())
		Expect(r.Seq()).To(BeEquivalentTo(2))

		Expect(ch.Stats().Failed).To(BeEquivalentTo(1))
		Expect(ch.Stop()).To(Succeed())
	})

	It("hands raster ownership to the receiver", func() {
		alloc := &countingAllocator{limit: grid.NewLimit(0)}
		ch := offload.New(eos.NewIdeal(), offload.WithLogger(quiet), offload.WithAllocator(alloc))
		Expect(ch.Post(tinySpec(1))).To(Succeed())
		Expect(ch.Start(ctx)).To(Succeed())

		var r offload.Reply
		Eventually(ch.Replies()).Should(Receive(&r))
		Expect(alloc.Freed()).To(BeZero())

		r.Response.Release()
		r.Response.Release()
		Expect(alloc.Freed()).To(Equal(1))
		Expect(r.Response.Raster).To(BeNil())
		Expect(ch.Stop()).To(Succeed())
	})

	It("counts cells with unrecognized channels", func() {
		odd := eos.EvaluatorFunc(func(eos.Input) eos.Result { return eos.Result{Dominant: "convective"} })
		ch := offload.New(odd, offload.WithLogger(quiet))
		spec := tinySpec(1)
		spec.Columns, spec.Rows = 2, 3
		Expect(ch.Post(spec)).To(Succeed())
		Expect(ch.Start(ctx)).To(Succeed())

		var r offload.Reply
		Eventually(ch.Replies()).Should(Receive(&r))
		Expect(r.Response.Unrecognized).To(Equal(6))
		Expect(r.Response.Raster).To(Equal([]byte{3, 3, 3, 3, 3, 3}))
		Expect(ch.Stats().Unrecognized).To(BeEquivalentTo(6))
		Expect(ch.Stop()).To(Succeed())
	})

	It("lets a running evaluation finish and discards the queue on stop", func() {
		ev := newGated()
		ch := offload.New(ev, offload.WithLogger(quiet))
		Expect(ch.Start(ctx)).To(Succeed())
		for seq := uint64(1); seq <= 3; seq++ {
			Expect(ch.Post(tinySpec(seq))).To(Succeed())
		}
		Eventually(ev.calls.Load).Should(BeEquivalentTo(1))

		stopped := make(chan error, 1)
		go func() { stopped <- ch.Stop() }()
		Consistently(stopped, 50*time.Millisecond).ShouldNot(Receive())

		close(ev.gate)
		Eventually(stopped).Should(Receive(BeNil()))

		replies := drain(ch.Replies())
		Expect(len(replies)).To(BeNumerically("<=", 1))
		Expect(ev.calls.Load()).To(BeEquivalentTo(1))

		Expect(ch.Post(tinySpec(4))).To(MatchError(offload.ErrClosed))
		Expect(ch.Stop()).To(MatchError(offload.ErrClosed))
	})

	It("stops when its context is cancelled", func() {
		ch := offload.New(eos.NewIdeal(), offload.WithLogger(quiet))
		Expect(ch.Start(ctx)).To(Succeed())
		Expect(ch.Start(ctx)).To(MatchError(offload.ErrAlreadyStarted))

		cancel()
		Eventually(ch.Replies()).Should(BeClosed())
		Expect(ch.Post(tinySpec(1))).To(MatchError(offload.ErrClosed))
	})

	It("can be stopped before it was started", func() {
		ch := offload.New(eos.NewIdeal(), offload.WithLogger(quiet))
		Expect(ch.Post(tinySpec(1))).To(Succeed())
		Expect(ch.Stop()).To(Succeed())
		Expect(ch.Replies()).To(BeClosed())
		Expect(ch.Start(ctx)).To(MatchError(offload.ErrClosed))
	})
})
