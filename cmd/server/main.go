package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkaplon/foresight-backend/internal/analytics"
	"github.com/mkaplon/foresight-backend/internal/api"
	"github.com/mkaplon/foresight-backend/internal/config"
	"github.com/mkaplon/foresight-backend/internal/db"
	"github.com/mkaplon/foresight-backend/internal/models"
	"github.com/mkaplon/foresight-backend/internal/notifications"
	"github.com/mkaplon/foresight-backend/internal/scheduler"
	"github.com/mkaplon/foresight-backend/internal/subgraph"
	"github.com/mkaplon/foresight-backend/internal/ws"
)

const banner = `
╔══════════════════════════════════════╗
║   Foresight Market Analytics v0.3    ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Database (optional; only the comments feature needs it)
	var pool *pgxpool.Pool
	if cfg.DatabaseEnabled {
		fmt.Printf("\n[DB] Connecting to %s:%d/%s ...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
		pool, err = db.Connect(cfg.DSN())
		if err != nil {
			fmt.Fprintf(os.Stderr, "[DB] Connection failed: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			pool.Close()
			fmt.Println("[DB] Connection pool closed")
		}()

		if err := db.TestConnection(pool); err != nil {
			fmt.Fprintf(os.Stderr, "[DB] Test query failed: %v\n", err)
			os.Exit(1)
		}
		if err := db.EnsureSchema(context.Background(), pool); err != nil {
			fmt.Fprintf(os.Stderr, "[DB] %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println("\n[DB] Disabled — comment routes will respond 503")
	}

	// Indexer client and aggregators
	client := subgraph.NewClient(subgraph.ClientConfig{
		Endpoint:    cfg.SubgraphURL,
		FetchTTL:    cfg.FetchCacheTTL,
		MaxAttempts: cfg.FetchMaxAttempts,
		BackoffBase: cfg.FetchBackoffBase,
	})
	markets := analytics.NewMarketService(client, cfg.AnalyticsCacheTTL)
	portfolios := analytics.NewPortfolioService(client, cfg.AnalyticsCacheTTL)

	// Notifications and websocket fan-out
	notify := notifications.NewSender(cfg.WebhookURL, cfg.ServiceName)
	broadcaster := ws.NewBroadcaster()

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. API server
	srv := api.NewServer(api.Deps{
		Pool:        pool,
		Markets:     markets,
		Portfolios:  portfolios,
		Broadcaster: broadcaster,
	}, cfg.HTTPPort, cfg.APIKey, cfg.CORSAllowOrigin)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[API] Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	// 2. Warm-refresh scheduler for tracked markets
	var refresher *scheduler.RefreshScheduler
	if len(cfg.TrackedMarkets) > 0 {
		refresher = scheduler.NewRefreshScheduler(markets, notify, scheduler.RefreshSchedulerConfig{
			Interval:          cfg.RefreshInterval,
			TrackedMarkets:    cfg.TrackedMarkets,
			FallbackThreshold: cfg.FallbackThreshold,
			OnRefresh: func(snap *models.MarketAnalytics) {
				broadcaster.BroadcastAnalytics(snap)
			},
		})
		refresher.Start()
	} else {
		fmt.Println("[SCHEDULER] Skipped - no tracked markets configured")
	}

	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	if refresher != nil {
		refresher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[API] Shutdown error: %v\n", err)
	}
	fmt.Println("[API] Server closed")
	fmt.Println("Shutdown complete")
}
