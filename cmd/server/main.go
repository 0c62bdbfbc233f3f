package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uniedit/paystatus/internal/app"
	"github.com/uniedit/paystatus/internal/infra/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	logger := application.Logger()

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      application.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start queue consumers
	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- application.Run(ctx)
	}()

	exitCode := 0
	consumersDone := false
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-serverErr:
		logger.Error("http server failed", zap.Error(err))
		exitCode = 1
	case err := <-consumerErr:
		// A consumer that cannot start is fatal; the supervisor restarts us.
		consumersDone = true
		if err != nil {
			logger.Error("status queue consumer failed", zap.Error(err))
			exitCode = 1
		}
	}
	stop()

	// Graceful shutdown with timeout
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	// Wait for in-flight messages before closing connections.
	if !consumersDone {
		select {
		case <-consumerErr:
		case <-shutdownCtx.Done():
			logger.Warn("consumers did not stop before shutdown timeout")
		}
	}

	logger.Info("server exited")
	application.Stop()
	return exitCode
}
