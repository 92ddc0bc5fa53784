package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/ai-orchestrator/internal/httpserver"
)

func newServeCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Error("Error closing cache", slog.Any("err", err))
				}
			}()

			// Writes must outlive the longest request deadline.
			srv, err := httpserver.New(cfg.Server.Address, a.router(),
				httpserver.WithWriteTimeout(cfg.Orchestrator.DefaultDeadline+5*time.Second))
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			a.start(gctx)

			g.Go(func() error {
				log.Info("Orchestrator listening",
					slog.String("addr", cfg.Server.Address),
					slog.Int("backends", len(cfg.Backends)))
				return srv.Start()
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("Shutting down gracefully...")
				if err := srv.Shutdown(context.Background()); err != nil {
					log.Error("Error during shutdown", slog.Any("err", err))
				}
				return nil
			})

			return g.Wait()
		},
	}
}
