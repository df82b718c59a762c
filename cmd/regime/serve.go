package main

import (
	"errors"
	"os"

	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/offload"
	"github.com/san-kum/regime/internal/server"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	reg := eos.NewRegistry()
	ev, err := reg.Get(cfg.Evaluator)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	ch := offload.New(ev,
		offload.WithLogger(logger),
		offload.WithLabel("http"),
		offload.WithAllocator(cfg.Engine.Allocator()),
		offload.WithOutboxSize(cfg.Engine.OutboxSize),
	)
	if err := ch.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := ch.Stop(); err != nil && !errors.Is(err, offload.ErrClosed) {
			logger.Error("failed to stop channel", "error", err)
		}
	}()

	srv := server.New(ch, reg.List(), logger)
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
