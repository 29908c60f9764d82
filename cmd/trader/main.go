package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"paper-trade-bot-go/internal/account"
	"paper-trade-bot-go/internal/advisor"
	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/logger"
	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/pricedata"
	"paper-trade-bot-go/internal/reconciler"
	"paper-trade-bot-go/internal/risk"
	"paper-trade-bot-go/internal/store"
	"paper-trade-bot-go/internal/trader"
)

func main() {
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

	// Initialize database and trade store
	db, err := store.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	trades := store.NewGormStore(db)
	log.Info("Database connection successful and schema migrated.")

	// Build the price-data cascade in the configured preference order.
	cascade := buildCascade(log, &cfg)

	// Account state: broker API when configured, paper fallback otherwise.
	accountProvider := buildAccountProvider(log, &cfg, trades)

	resolution, err := pricedata.ParseResolution(cfg.Reconciler.Resolution)
	if err != nil {
		log.Fatal("Invalid reconciler resolution", zap.Error(err))
	}

	riskEngine := risk.NewEngine(risk.Config{
		RiskPercent:         cfg.Risk.RiskPercent,
		MaxTradesPerDay:     cfg.Risk.MaxTradesPerDay,
		MaxDailyLossPercent: cfg.Risk.MaxDailyLossPercent,
	})
	rec := reconciler.New(cascade, log, reconciler.Config{
		MinTradeAge: cfg.Reconciler.MinTradeAge,
		Resolution:  resolution,
	})
	adv := advisor.NewClient(cfg.Advisor.URL, cfg.Advisor.Enabled, cfg.Advisor.Timeout, log)

	engine := trader.NewEngine(log, &cfg, trades, riskEngine, accountProvider, rec, adv)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	api := trader.NewAPIServer(engine, cfg.Server.Port, log)
	api.Start()

	engine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Pipeline has been shut down.")
}

// buildCascade assembles providers in the configured order, skipping names
// it does not recognise.
func buildCascade(log *zap.Logger, cfg *config.Config) *pricedata.Cascade {
	p := cfg.Providers
	var providers []pricedata.Provider
	for _, name := range p.Order {
		switch name {
		case "binance":
			providers = append(providers, pricedata.NewBinanceProvider(log, p.RequestTimeout, p.RateLimit, p.RateLimitBurst))
		case "coinbase":
			providers = append(providers, pricedata.NewCoinbaseProvider(log, p.RequestTimeout, p.RateLimit, p.RateLimitBurst))
		case "bitstamp":
			providers = append(providers, pricedata.NewBitstampProvider(log, p.RequestTimeout, p.RateLimit, p.RateLimitBurst))
		default:
			log.Warn("Unknown price provider in config, skipping", zap.String("provider", name))
		}
	}
	if len(providers) == 0 {
		log.Fatal("No usable price providers configured")
	}
	return pricedata.NewCascade(log, providers...)
}

func buildAccountProvider(log *zap.Logger, cfg *config.Config, trades store.TradeStore) account.Provider {
	var upstream account.Provider
	if cfg.Account.BaseURL != "" {
		upstream = account.NewRestProvider(
			cfg.Account.BaseURL,
			cfg.Account.APIKey,
			cfg.Account.TokenTTL,
			cfg.Providers.RequestTimeout,
			log,
		)
	}

	if cfg.Trading.Mode == string(models.ModePaper) && cfg.Account.PaperFallback {
		return account.NewPaperProvider(upstream, trades, cfg.Account.PaperEquity, log)
	}
	if upstream == nil {
		log.Fatal("Live mode requires account.base_url to be configured")
	}
	return upstream
}
