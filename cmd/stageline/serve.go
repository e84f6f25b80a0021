package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/stageline/internal/pkg/config"
	"github.com/tjfontaine/stageline/internal/runtime"
)

func serveCmd(configPath *string) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load plugins and serve HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log.Level)

			engine, err := runtime.New(
				runtime.WithConfig(cfg),
				runtime.WithLogger(logger),
			)
			if err != nil {
				return fmt.Errorf("create engine: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := engine.Start(ctx); err != nil {
				return fmt.Errorf("start engine: %w", err)
			}

			<-ctx.Done()
			logger.Info("shutdown signal received, stopping")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
			defer cancel()
			if err := engine.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown error", slog.String("error", err.Error()))
				return err
			}

			logger.Info("shutdown complete")
			return nil
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 30*time.Second, "graceful shutdown timeout")
	return cmd
}
