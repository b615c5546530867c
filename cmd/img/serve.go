package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/zhanren/Malden-image-creator/internal/config"
	"github.com/zhanren/Malden-image-creator/internal/history"
	"github.com/zhanren/Malden-image-creator/internal/pipeline"
	"github.com/zhanren/Malden-image-creator/internal/server"
)

type serveOptions struct {
	host string
	port int
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local HTTP server exposing the generation pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "127.0.0.1", "listen address")
	cmd.Flags().IntVar(&opts.port, "port", 8940, "listen port")
	return cmd
}

func runServe(opts *serveOptions) error {
	logger := slog.Default()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	loader := config.NewLoader(wd, logger)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	pipe := pipeline.New(cfg, pipeline.WithProjectRoot(wd), pipeline.WithLogger(logger))
	defer pipe.Close()
	loader.OnReload(func() {
		pipe.SetConfig(loader.Config())
		logger.Info("configuration reloaded")
	})

	// Pick up imgcreator.yaml edits without a restart. Registered
	// callbacks are in place before the watcher goroutine starts.
	if err := loader.Watch(); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	}

	metrics := server.NewMetrics(prometheus.DefaultRegisterer)
	handler := server.NewHandler(pipe, history.NewStore(wd), metrics, logger)
	router := server.NewRouter(handler, server.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", opts.host, opts.port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
