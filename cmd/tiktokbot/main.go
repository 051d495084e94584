// Package main provides the entry point for the TikTok reposting bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/404FinnNotFound/TiktokBot123/internal/bootstrap"
	"github.com/404FinnNotFound/TiktokBot123/internal/config"
	"github.com/404FinnNotFound/TiktokBot123/internal/server"
)

var errAlreadyRunning = errors.New("another instance is already running")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// Only one process may poll the bot token
	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.LockFile, err)
	}
	if !locked {
		logger.Error("another instance is already running",
			slog.String("lock_file", cfg.LockFile),
		)
		return errAlreadyRunning
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", slog.String("error", err.Error()))
		}
		_ = os.Remove(cfg.LockFile)
	}()

	logger.Info("starting bot",
		slog.String("config", cfg.String()),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Temp.ReleaseAll()

	logger.Info("connected to telegram",
		slog.String("username", deps.Client.Username()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if removed := deps.Temp.CleanStale(ctx, cfg.StaleWorkdirAge); len(removed) > 0 {
		logger.Info("cleaned stale work directories",
			slog.Int("count", len(removed)),
		)
	}

	var srv *http.Server
	if cfg.HealthPort > 0 {
		srv = server.New(cfg.HealthPort, deps.Health, logger)
		go func() {
			logger.Info("health endpoint listening",
				slog.String("addr", srv.Addr),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health endpoint failed",
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	runErr := deps.Dispatcher.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health endpoint shutdown failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("dispatcher: %w", runErr)
	}

	logger.Info("bot stopped gracefully")
	return nil
}
