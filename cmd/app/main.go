package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"liquidity_go/internal/app"
	"liquidity_go/internal/infra"
	"liquidity_go/internal/service"

	_ "net/http/pprof" // For pprof profiling

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	flag.Parse()

	// 1. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx, *configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 3. Metrics + pprof server
	if cfg.Metrics.ListenAddr != "" {
		prometheus.MustRegister(infra.NewCollector(infra.GlobalMetrics, cfg.Pool.Address))
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			slog.Info("🕵️ Metrics server started", slog.String("addr", cfg.Metrics.ListenAddr))
			if err := http.ListenAndServe(cfg.Metrics.ListenAddr, nil); err != nil {
				slog.Error("Metrics server failed", slog.Any("error", err))
			}
		}()
	}

	// 4. Sequencer in its own goroutine (the single writer of pool state)
	bootstrap.StartSequencer(ctx)
	slog.InfoContext(ctx, "✅ Sequencer started")

	// 5. Chain feed
	if err := bootstrap.Feed.Connect(ctx); err != nil {
		slog.Error("Failed to connect chain feed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Feed.Disconnect()
	slog.InfoContext(ctx, "✅ Chain feed started", slog.String("url", cfg.Chain.WSURL))

	// 6. Periodic reserve reconciliation
	if interval := cfg.ReconcileInterval(); interval > 0 {
		go reconcileLoop(ctx, bootstrap.Pool, interval)
	} else {
		slog.InfoContext(ctx, "Periodic reconciliation disabled")
	}

	slog.InfoContext(ctx, "✨ Liquidity keeper fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
}

func reconcileLoop(ctx context.Context, pool *service.PoolService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcileOnce(ctx, pool)
		}
	}
}

func reconcileOnce(ctx context.Context, pool *service.PoolService) {
	reserves, err := pool.ReconcileBalances(ctx, nil)
	if err != nil {
		slog.Warn("Reserve reconciliation failed", slog.Any("error", err))
		return
	}
	attrs := make([]any, 0, len(reserves))
	for _, r := range reserves {
		attrs = append(attrs, slog.String(r.Denom, r.Amount.String()))
	}
	slog.Info("Pool reserves", attrs...)

	snap, err := pool.Snapshot(ctx)
	if err != nil {
		slog.Warn("Pool snapshot failed", slog.Any("error", err))
		return
	}
	if snap.Last != nil {
		slog.Info("Price accumulator",
			slog.Int("len", snap.Len),
			slog.Uint64("last_ts", snap.Last.Timestamp),
			slog.String("price", snap.Last.Price.String()),
			slog.String("sma", snap.Last.PriceSMA.String()),
			slog.Bool("ready", snap.Orderbook.Ready),
		)
	}
}
