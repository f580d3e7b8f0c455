package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/config"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/database"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/logger"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/market"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/notify"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/trace"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/trader"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Minute
	guardStaleAfter = 2 * time.Minute
	guardRefresh    = 20 * time.Second
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	if err := trace.Init(cfg.Tracing.ServiceName, cfg.Tracing.Enabled); err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(ctx)
	}()

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))
	store := database.NewStore(db)

	stablecoins := market.NewStablecoinSet(cfg.Bot.Stablecoins)
	var assets trader.AssetSource
	if len(cfg.Market.StaticAssets) > 0 {
		assets = market.NewStaticCatalog(cfg.Market.StaticAssets, stablecoins)
		log.Info("Using static asset catalog", zap.Int("assets", len(cfg.Market.StaticAssets)))
	} else {
		restClient := market.NewRestClient(&cfg.Market, log)
		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := restClient.GetServerTime(pingCtx)
		cancel()
		if err != nil {
			log.Fatal("Failed to connect to market API", zap.Error(err))
		}
		log.Info("Successfully connected to market API.")
		assets = market.NewCatalog(restClient, cfg.Market.QuoteAsset, cfg.Market.MaxAssets, stablecoins, log)
	}

	deps := trader.Dependencies{Logger: log, Ledger: store, Assets: assets}
	var sweeper trader.StaleSweeper
	if cfg.Bot.SessionGuard == "database" {
		guard := database.NewSessionGuard(db, guardStaleAfter)
		deps.Guard = guard
		deps.GuardRefresh = guardRefresh
		sweeper = guard
	}

	controller, err := trader.NewController(cfg.Bot, deps)
	if err != nil {
		log.Fatal("Failed to create controller", zap.Error(err))
	}

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier notify.Notifier = notify.NewLog(log)
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.Error("Telegram disabled", zap.Error(err))
		} else {
			notifier = tg
		}
	}
	go notify.NewWatcher(controller, notifier, log).Run(ctx)

	apiServer := trader.NewAPIServer(controller, cfg.Server.ApiPort, log)
	apiServer.Start()

	// Run the engine until a shutdown signal arrives
	engine := trader.NewEngine(log, controller, sweeper, sweepInterval, shutdownTimeout)
	if err := engine.Run(ctx); err != nil {
		log.Error("Engine did not stop cleanly", zap.Error(err))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Stop(stopCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
