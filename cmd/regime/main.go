package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/san-kum/regime/internal/config"
	"github.com/san-kum/regime/internal/engine"
	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/viz"
	"github.com/spf13/cobra"
)

var (
	configFile string
	preset     string
	dataDir    string
	evaluator  string
	logLevel   string
	logFormat  string

	// grid flags
	logTMin   float64
	logTMax   float64
	logRhoMin float64
	logRhoMax float64
	cols      uint32
	rows      uint32
	massX     float64
	massY     float64
	massZ     float64
	eta       float64
)

// main registers the commands and runs the explorer when no subcommand is
// given. It exits with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "regime",
		Short:         "dominant pressure regimes of stellar matter",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runExplore,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "use preset grid")
	pf.StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	pf.StringVar(&evaluator, "evaluator", config.DefaultEvaluator, "equation of state evaluator")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	addGridFlags(rootCmd)

	exploreCmd := &cobra.Command{
		Use:   "explore",
		Short: "interactive regime explorer",
		RunE:  runExplore,
	}
	addGridFlags(exploreCmd)

	gridCmd := &cobra.Command{
		Use:   "grid",
		Short: "evaluate one grid and print it",
		RunE:  runGrid,
	}
	addGridFlags(gridCmd)
	gridCmd.Flags().String("out", "", "write the binary response frame to this file")
	gridCmd.Flags().Duration("timeout", time.Minute, "maximum time to wait for the result")
	gridCmd.Flags().String("svg", "", "write the raster as svg to this file")
	gridCmd.Flags().String("theme", "stellar", "colour theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "time grid evaluation across sizes",
		RunE:  runBench,
	}
	addGridFlags(benchCmd)
	benchCmd.Flags().Int("repeat", 3, "evaluations per size")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "dispatch a burst of grids varying one parameter and log the outcome",
		RunE:  runSweep,
	}
	addGridFlags(sweepCmd)
	sweepCmd.Flags().String("param", "eta", "parameter to sweep ("+sweepParamNames()+")")
	sweepCmd.Flags().Float64("from", 0, "first value")
	sweepCmd.Flags().Float64("to", 1, "last value")
	sweepCmd.Flags().Int("count", 10, "number of requests")
	sweepCmd.Flags().Duration("timeout", 5*time.Minute, "maximum time to wait for the burst")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored sweeps",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored sweep",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored sweep as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE:  listPresets,
	}

	evaluatorsCmd := &cobra.Command{
		Use:   "evaluators",
		Short: "list available evaluators",
		RunE:  listEvaluators,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve grid evaluation over HTTP",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", config.DefaultAddr, "listen address")

	rootCmd.AddCommand(exploreCmd, gridCmd, benchCmd, sweepCmd, listCmd, plotCmd, exportCmd, presetsCmd, evaluatorsCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addGridFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&logTMin, "tmin", config.DefaultLogTMin, "log10 minimum temperature (K)")
	f.Float64Var(&logTMax, "tmax", config.DefaultLogTMax, "log10 maximum temperature (K)")
	f.Float64Var(&logRhoMin, "rhomin", config.DefaultLogRhoMin, "log10 minimum density (g/cm³)")
	f.Float64Var(&logRhoMax, "rhomax", config.DefaultLogRhoMax, "log10 maximum density (g/cm³)")
	f.Uint32Var(&cols, "cols", config.DefaultColumns, "temperature samples")
	f.Uint32Var(&rows, "rows", config.DefaultRows, "density samples")
	f.Float64Var(&massX, "x", 0.7, "hydrogen mass fraction")
	f.Float64Var(&massY, "y", 0.28, "helium mass fraction")
	f.Float64Var(&massZ, "z", 0.02, "metal mass fraction")
	f.Float64Var(&eta, "eta", 0, "radiation departure factor")
}

// loadConfig resolves defaults, then preset, then config file, then flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, fmt.Errorf("%w (available: %v)", err, config.ListPresets())
		}
	}
	if configFile != "" {
		if err := cfg.Merge(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("evaluator") {
		cfg.Evaluator = evaluator
	}
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	g := &cfg.Grid
	overrides := []struct {
		name string
		set  func()
	}{
		{"tmin", func() { g.LogTMin = logTMin }},
		{"tmax", func() { g.LogTMax = logTMax }},
		{"rhomin", func() { g.LogRhoMin = logRhoMin }},
		{"rhomax", func() { g.LogRhoMax = logRhoMax }},
		{"cols", func() { g.Columns = cols }},
		{"rows", func() { g.Rows = rows }},
		{"x", func() { g.Composition.X = massX }},
		{"y", func() { g.Composition.Y = massY }},
		{"z", func() { g.Composition.Z = massZ }},
		{"eta", func() { g.Eta = eta }},
	}
	for _, o := range overrides {
		if flags.Changed(o.name) {
			o.set()
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := cfg.Log.NewLogger(w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// openSession resolves the evaluator and starts a session on it.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine.Session, error) {
	ev, err := eos.NewRegistry().Get(cfg.Evaluator)
	if err != nil {
		return nil, err
	}
	return engine.Open(ctx, ev, cfg.Engine, logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
