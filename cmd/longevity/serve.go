package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longevity/longevity-backend/app"
	"github.com/longevity/longevity-backend/config"
	"github.com/longevity/longevity-backend/routes"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			return serve(ctx, cfg, logger)
		},
	}
}

// serve runs the API until ctx is cancelled, then drains in-flight requests
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting longevity backend",
		zap.String("environment", cfg.Environment),
		zap.String("vector_store", cfg.VectorStore.Backend),
		zap.String("chat_provider", cfg.RAG.ChatProvider),
	)

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
		if runErr != nil {
			logger.Error("server failed", zap.Error(runErr))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Warn("failed to release dependencies", zap.Error(err))
	}

	logger.Info("server stopped")
	return runErr
}
