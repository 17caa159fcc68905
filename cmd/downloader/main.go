package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/magicianjarden/audiio-official-sub003/internal/api"
	"github.com/magicianjarden/audiio-official-sub003/internal/client"
	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/library"
	"github.com/magicianjarden/audiio-official-sub003/internal/manager"
	"github.com/magicianjarden/audiio-official-sub003/internal/metrics"
	"github.com/magicianjarden/audiio-official-sub003/internal/store"
	"github.com/magicianjarden/audiio-official-sub003/internal/transfer"
)

func main() {
	cfg := config.GetConfig()
	logger := config.GetLogger()

	logger.Info().
		Int("max_concurrent", cfg.Downloads.MaxConcurrent).
		Int64("chunk_size", cfg.Downloads.ChunkSize).
		Str("default_dir", cfg.Downloads.DefaultDir).
		Str("database_path", cfg.Database.Path).
		Str("server_address", cfg.Server.Address).
		Int("server_port", cfg.Server.Port).
		Msg("Application started with configuration")

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Sentry, continuing without failure reporting")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open the download store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close the download store")
		}
	}()

	// In-flight progress does not survive a restart; records a previous
	// process left open must not stay queued or downloading forever.
	interrupted, err := st.MarkInterrupted(context.Background())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to sweep interrupted downloads")
	} else if interrupted > 0 {
		logger.Warn().Int64("records", interrupted).Msg("Marked downloads interrupted by restart as failed")
	}

	httpClient := client.NewClient(cfg)
	defer func() {
		_ = httpClient.Close()
	}()

	retryBackoff := time.Second // default
	if cfg.Downloads.RetryBackoff != "" {
		if parsedBackoff, err := time.ParseDuration(cfg.Downloads.RetryBackoff); err != nil {
			logger.Warn().Err(err).Str("retry_backoff", cfg.Downloads.RetryBackoff).Msg("Invalid retry backoff duration, using default 1s")
		} else {
			retryBackoff = parsedBackoff
		}
	}

	fetcher := client.NewChunkFetcher(httpClient, cfg.Downloads.MaxRetries, retryBackoff)
	engine := transfer.NewEngine(httpClient, fetcher, cfg)

	// No tag writer ships with the daemon; downstream consumers embed the
	// manager in-process and wire their own. Without one the processing
	// phase never runs.
	dm := manager.New(cfg, engine, st, library.NewResolver(cfg), nil)

	// Start Prometheus metrics HTTP server
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewHTTPServer(cfg.Server.Address, cfg.Metrics.Port)
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("Starting Prometheus metrics HTTP server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal().Err(err).Msg("Failed to serve metrics")
			}
		}()
		defer func() {
			if err := metricsServer.Shutdown(context.Background()); err != nil {
				logger.Error().Err(err).Msg("Failed to shutdown metrics server")
			}
		}()
	}

	apiServer := api.NewServer(dm, st, api.ListenAddr(cfg))
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to serve the API")
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The API stops accepting submissions first, then in-flight transfers
	// are cancelled and drained.
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown the API server")
	}
	if err := dm.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to drain active downloads")
	}

	logger.Info().Msg("Server stopped gracefully")
}
