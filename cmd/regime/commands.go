package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/regime/internal/config"
	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/export"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/metrics"
	"github.com/san-kum/regime/internal/viz"
	"github.com/san-kum/regime/internal/wire"
	"github.com/spf13/cobra"
)

func runExplore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// the explorer owns the terminal
	logger, err := newLogger(cfg, io.Discard)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	session, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	return viz.RunExplorer(session, cfg.Grid)
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	out, _ := cmd.Flags().GetString("out")
	svgPath, _ := cmd.Flags().GetString("svg")
	themeName, _ := cmd.Flags().GetString("theme")

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	session, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	seq, err := session.Dispatch(cfg.Grid)
	if err != nil {
		return err
	}
	resp, err := session.Await(ctx, seq)
	if err != nil {
		return err
	}
	defer resp.Release()

	theme := viz.GetTheme(themeName)
	r := grid.Raster{Data: resp.Raster, Columns: resp.Columns, Rows: resp.Rows}
	fmt.Println(viz.RenderRaster(r, cfg.Grid, theme))
	fmt.Println()
	fmt.Println(viz.Legend(theme))
	fmt.Println()
	fmt.Println(viz.HistogramBars(resp.Raster, theme, 30))
	fmt.Printf("\nevaluator: %s  cells: %d  elapsed: %.3fms\n", cfg.Evaluator, len(resp.Raster), resp.ElapsedMillis())
	if resp.Unrecognized > 0 {
		fmt.Printf("unrecognized cells: %d\n", resp.Unrecognized)
	}
	for _, m := range metrics.Standard() {
		m.Observe(r)
		fmt.Printf("%-20s %.4f\n", m.Name(), m.Value())
	}

	if svgPath != "" {
		f, err := os.Create(svgPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := export.WriteSVG(f, r, cfg.Grid, theme, 8); err != nil {
			return fmt.Errorf("write %s: %w", svgPath, err)
		}
		fmt.Printf("svg written to %s\n", svgPath)
	}

	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := wire.WriteResponse(f, resp); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Printf("response frame written to %s\n", out)
	}
	return nil
}

var benchSizes = []uint32{16, 32, 64, 128, 256, 512}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	repeat, _ := cmd.Flags().GetInt("repeat")
	repeat = max(repeat, 1)

	ctx, cancel := signalContext()
	defer cancel()

	session, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Printf("benchmarking %s\n\n", cfg.Evaluator)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIZE\tCELLS\tBEST\tMEAN\tCELLS/SEC")

	means := make([]float64, 0, len(benchSizes))
	for _, n := range benchSizes {
		params := cfg.Grid
		params.Columns, params.Rows = n, n

		var best, total time.Duration
		for i := 0; i < repeat; i++ {
			seq, err := session.Dispatch(params)
			if err != nil {
				return err
			}
			resp, err := session.Await(ctx, seq)
			if err != nil {
				return err
			}
			if best == 0 || resp.Elapsed < best {
				best = resp.Elapsed
			}
			total += resp.Elapsed
			resp.Release()
		}

		mean := total / time.Duration(repeat)
		cells := params.Cells()
		fmt.Fprintf(w, "%dx%d\t%d\t%v\t%v\t%.0f\n",
			n, n, cells, best, mean, float64(cells)/max(mean.Seconds(), 1e-9))
		means = append(means, float64(mean.Microseconds())/1000)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(asciigraph.Plot(means,
		asciigraph.Height(10),
		asciigraph.Width(60),
		asciigraph.Caption("mean elapsed (ms) by grid size"),
	))
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tX\tY\tZ\tETA\tLOG T\tLOG RHO\tDESCRIPTION")
	for _, name := range config.ListPresets() {
		p, err := config.GetPreset(name)
		if err != nil {
			return err
		}
		g := p.Grid
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.1f..%.1f\t%.1f..%.1f\t%s\n",
			name, g.Composition.X, g.Composition.Y, g.Composition.Z, g.Eta,
			g.LogTMin, g.LogTMax, g.LogRhoMin, g.LogRhoMax, p.Description)
	}
	return w.Flush()
}

func listEvaluators(cmd *cobra.Command, args []string) error {
	reg := eos.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPARAMS")
	for _, name := range reg.List() {
		ev, err := reg.Get(name)
		if err != nil {
			return err
		}
		params := "-"
		if c, ok := ev.(eos.Configurable); ok {
			params = fmt.Sprint(c.GetParams())
		}
		fmt.Fprintf(w, "%s\t%s\n", name, params)
	}
	return w.Flush()
}
