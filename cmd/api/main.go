package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/thsr-fare-bot/internal/api/router"
	"github.com/wolfman30/thsr-fare-bot/internal/app/bootstrap"
	"github.com/wolfman30/thsr-fare-bot/internal/channels/line"
	appconfig "github.com/wolfman30/thsr-fare-bot/internal/config"
	"github.com/wolfman30/thsr-fare-bot/internal/observability/metrics"
	"github.com/wolfman30/thsr-fare-bot/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting thsr-fare-bot",
		"env", cfg.Env,
		"port", cfg.Port,
		"reset_scope", cfg.ResetScope,
	)
	if cfg.LineChannelSecret == "" || cfg.LineChannelAccessToken == "" {
		logger.Warn("LINE channel secret or access token missing; webhook calls will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler, cleanup, err := setupServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers dialogue metrics and Go runtime collectors on a
// dedicated registry and returns its /metrics handler.
func setupMetrics() (http.Handler, *metrics.DialogueMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewDialogueMetrics(reg)
}

// setupServer wires the TDX directory, dialogue engine and LINE webhook into
// the HTTP router. cleanup releases the Redis connection when one was opened.
func setupServer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (http.Handler, func(), error) {
	metricsHandler, dialogueMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	cleanup := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}

	directory, err := bootstrap.BuildDirectory(ctx, cfg, bootstrap.BuildStationCache(redisClient, cfg), logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	engine := bootstrap.BuildEngine(cfg, directory, dialogueMetrics, logger)

	lineClient := line.NewClient(cfg.LineChannelAccessToken, cfg.LineAPIBaseURL)
	lineHandler := line.NewHandler(cfg.LineChannelSecret, engine, lineClient, logger, dialogueMetrics)

	r := router.New(&router.Config{
		Logger:         logger,
		LineCallback:   lineHandler.Callback,
		MetricsHandler: metricsHandler,
	})
	return r, cleanup, nil
}
