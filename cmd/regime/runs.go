package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/samber/lo"
	"github.com/san-kum/regime/internal/dispatch"
	"github.com/san-kum/regime/internal/engine"
	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/metrics"
	"github.com/san-kum/regime/internal/storage"
	"github.com/spf13/cobra"
)

var sweepParams = map[string]func(p *grid.Params, v float64){
	"eta":    func(p *grid.Params, v float64) { p.Eta = v },
	"x":      func(p *grid.Params, v float64) { p.Composition.X = v },
	"y":      func(p *grid.Params, v float64) { p.Composition.Y = v },
	"z":      func(p *grid.Params, v float64) { p.Composition.Z = v },
	"tmax":   func(p *grid.Params, v float64) { p.LogTMax = v },
	"rhomax": func(p *grid.Params, v float64) { p.LogRhoMax = v },
}

func sweepParamNames() string {
	names := lo.Keys(sweepParams)
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	param, _ := flags.GetString("param")
	from, _ := flags.GetFloat64("from")
	to, _ := flags.GetFloat64("to")
	count, _ := flags.GetInt("count")
	timeout, _ := flags.GetDuration("timeout")

	set, ok := sweepParams[param]
	if !ok {
		return fmt.Errorf("unknown sweep parameter: %s (available: %s)", param, sweepParamNames())
	}
	if count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	step := 0.0
	if count > 1 {
		step = (to - from) / float64(count-1)
	}
	// sequence numbers start at 1 and every request in the burst gets one
	valueOf := func(seq uint64) float64 { return from + float64(seq-1)*step }

	ev, err := eos.NewRegistry().Get(cfg.Evaluator)
	if err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		records  []storage.Record
		boundary = metrics.NewBoundary()
	)
	observe := dispatch.WithObserver(func(obs dispatch.Observation) {
		rec := storage.NewRecord(obs, valueOf(obs.Seq))
		mu.Lock()
		defer mu.Unlock()
		records = append(records, rec)
		if obs.Err == nil {
			// no sweep parameter changes the raster shape
			boundary.Observe(grid.Raster{Data: obs.Raster, Columns: cfg.Grid.Columns, Rows: cfg.Grid.Rows})
		}
	})

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	session, err := engine.Open(ctx, ev, cfg.Engine, logger, observe)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Printf("sweeping %s from %g to %g in %d requests...\n", param, from, to, count)
	var last uint64
	for i := 0; i < count; i++ {
		params := cfg.Grid
		set(&params, from+float64(i)*step)
		if last, err = session.Dispatch(params); err != nil {
			return err
		}
	}

	resp, err := session.Await(ctx, last)
	if err != nil {
		var reqErr *engine.RequestError
		if !errors.As(err, &reqErr) {
			return err
		}
		fmt.Printf("last request failed: %v\n", reqErr.Err)
	} else {
		resp.Release()
	}

	mu.Lock()
	saved := append([]storage.Record(nil), records...)
	boundaryMean := boundary.Value()
	mu.Unlock()

	st := storage.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(storage.RunMetadata{
		ID:        session.ID(),
		Evaluator: cfg.Evaluator,
		Preset:    preset,
		Sweep:     fmt.Sprintf("%s %g..%g", param, from, to),
		Grid:      cfg.Grid,
		Metrics:   map[string]float64{"boundary_mean": boundaryMean},
	}, saved)
	if err != nil {
		return err
	}

	stats := session.Stats().Dispatch
	fmt.Printf("dispatched: %d  accepted: %d  dropped: %d  failed: %d\n",
		stats.Dispatched, stats.Accepted, stats.Dropped, stats.Failed)
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	runs, err := storage.New(cfg.DataDir).List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEVALUATOR\tTIME\tSWEEP\tGRID\tREQ\tACC\tDROP\tFAIL\tMEAN")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dx%d\t%d\t%d\t%d\t%d\t%.2fms\n",
			run.ID,
			run.Evaluator,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Sweep,
			run.Grid.Columns, run.Grid.Rows,
			run.Requests, run.Accepted, run.Dropped, run.Failed,
			run.Metrics["elapsed_mean_ms"],
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(cfg.DataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	records, err := st.LoadRecords(runID)
	if err != nil {
		return err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("sweep: %s\n", meta.Sweep)
	fmt.Printf("requests: %d (accepted %d, dropped %d, failed %d)\n\n",
		meta.Requests, meta.Accepted, meta.Dropped, meta.Failed)

	elapsed := lo.Map(records, func(r storage.Record, _ int) float64 { return r.ElapsedMs })
	fmt.Println(asciigraph.Plot(elapsed,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("elapsed (ms) per request"),
	))
	fmt.Println()

	// failed requests carry no raster
	evaluated := lo.Filter(records, func(r storage.Record, _ int) bool { return r.Outcome != "failed" })
	if len(evaluated) == 0 {
		return nil
	}
	series := make([][]float64, len(grid.Codes))
	for i, code := range grid.Codes {
		series[i] = lo.Map(evaluated, func(r storage.Record, _ int) float64 {
			total := lo.Sum(r.Counts[:])
			if total == 0 {
				return 0
			}
			return 100 * float64(r.Counts[code]) / float64(total)
		})
	}
	fmt.Println(asciigraph.PlotMany(series,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Yellow, asciigraph.Blue, asciigraph.Magenta, asciigraph.Gray),
		asciigraph.SeriesLegends(lo.Map(grid.Codes, func(c grid.Code, _ int) string { return c.String() })...),
		asciigraph.Caption("% of cells per regime"),
	))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return storage.New(cfg.DataDir).Export(os.Stdout, args[0])
}
