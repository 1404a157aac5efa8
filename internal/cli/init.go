// Package cli provides common initialization for the finboard binaries.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finboard/internal/config"
	"finboard/internal/history"
	"finboard/internal/log"
	"finboard/internal/storage"
)

// SetupLogger builds the process logger from LOG_LEVEL and makes it the
// slog default. Interactive commands pass os.Stderr so logs never mix with
// command output.
func SetupLogger(level string, w io.Writer) *log.Logger {
	lvl := log.ParseLevel(level)
	logger := log.New(log.Config{
		Level:     lvl,
		Component: log.ComponentApp,
		Handler:   slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}),
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenHistory opens the configured history log. The returned close
// function releases the backend and is never nil.
func OpenHistory(cfg *config.Config, logger *log.Logger) (history.Log, func() error, error) {
	switch cfg.HistoryBackend {
	case "memory":
		return history.NewMemoryLog(cfg.HistoryCapacity), func() error { return nil }, nil
	case "sqlite":
		repo, err := storage.NewHistoryRepository(cfg.SQLiteDBPath, cfg.HistoryCapacity, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open history database %s: %w", cfg.SQLiteDBPath, err)
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}

// GracefulShutdown returns a context that is cancelled on SIGINT or
// SIGTERM, after cleanup has run. The done channel closes once shutdown
// has finished or timeout has passed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()
		cancel()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
