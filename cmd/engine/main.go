// Package main is the entry point for the WhalePulse trading engine.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/whalepulse/engine/internal/api"
	"github.com/whalepulse/engine/internal/config"
	"github.com/whalepulse/engine/internal/engine"
	"github.com/whalepulse/engine/internal/enrich"
	"github.com/whalepulse/engine/internal/ingest"
	"github.com/whalepulse/engine/internal/store"
)

const (
	// TickBatchBuffer is the size of the buffered tick batch channel.
	TickBatchBuffer = 64
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("whalepulse starting", "version", api.ServiceVersion)

	slog.Info("config_loaded",
		"ws_url", cfg.BinanceWSURL,
		"rest_url", cfg.BinanceRESTURL,
		"quote_asset", cfg.QuoteAsset,
		"signal_policy", cfg.SignalPolicy,
		"pump_cooldown", cfg.PumpCooldown,
		"trend_cooldown", cfg.TrendCooldown,
		"momentum_cooldown", cfg.MomentumCooldown,
		"fee_rate", cfg.FeeRate,
		"initial_balance", cfg.InitialBalance,
		"api_port", cfg.APIPort,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	batchChan := make(chan []store.Tick, TickBatchBuffer)

	enricher := enrich.NewService(cfg, enrich.NewClient(cfg.BinanceRESTURL, cfg.EnrichRatePerMinute))

	eng := engine.New(cfg, batchChan, enricher)
	go eng.Run(ctx)

	listener := ingest.NewListener(cfg.BinanceWSURL, cfg.QuoteAsset, batchChan)
	listener.Start(ctx)

	handler := api.NewHandler(eng, logger)
	go func() {
		if err := handler.StartServer(cfg.APIPort); err != nil {
			slog.Error("api_server_failed", "error", err)
			cancel()
		}
	}()

	slog.Info("engine_running", "api_port", cfg.APIPort)

	select {
	case sig := <-sigChan:
		slog.Info("shutdown_signal_received", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()

	slog.Info("shutting_down", "status", "stopping listener")
	listener.Stop()
	drainBatches(batchChan)

	slog.Info("shutdown_complete")
}

// drainBatches empties the tick channel during shutdown.
func drainBatches(batchChan <-chan []store.Tick) {
	drained := 0
	for {
		select {
		case <-batchChan:
			drained++
		default:
			if drained > 0 {
				slog.Info("batches_drained", "count", drained)
			}
			return
		}
	}
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}
