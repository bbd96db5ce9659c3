package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"certtrader/internal/broker"
	"certtrader/internal/config"
	"certtrader/internal/database"
	"certtrader/internal/indicator"
	"certtrader/internal/marketdata"
	"certtrader/internal/notify"
	"certtrader/internal/strategy"
	"certtrader/internal/trading"
)

// catalogName is the persisted strategy catalog the live engine loads.
const catalogName = "day-trading"

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	runID := uuid.NewString()
	notifier := notify.NewWebhookNotifier(cfg.Notify.WebhookURL)

	// Any panic in a run becomes a crash notification; the next run
	// starts fresh from live broker state.
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error("run crashed", "runID", runID, "panic", r)
			if err := notifier.SendCrashReport(runID, r, stack); err != nil {
				logger.Error("failed to send crash report", "error", err)
			}
			os.Exit(1)
		}
	}()

	ctx := context.Background()
	repo, err := database.NewPostgresRepository(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("cannot open database: %v", err)
	}
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("cannot migrate database: %v", err)
	}

	catalog := indicator.NewCatalog(logger)
	doc, err := repo.LoadCatalog(ctx, catalogName)
	if err != nil {
		log.Fatalf("cannot load strategy catalog (run calibrate first): %v", err)
	}
	strategies, err := strategy.FromNames(doc.Use, catalog)
	if err != nil {
		log.Fatalf("cannot resolve promoted strategies: %v", err)
	}
	logger.Info("strategy catalog loaded",
		"name", doc.Name, "version", doc.Version, "promoted", len(strategies))

	bars := marketdata.NewCachedProvider(logger,
		marketdata.NewHTTPProvider(logger, cfg.MarketData.BaseURL), cfg.MarketData.CacheDir)

	err = runOnce(ctx, logger, &cfg, catalog, strategies, bars, repo, notifier, runID)
	if err != nil && broker.IsTransport(err) {
		// The session is gone; rebuild it and retry the whole run once.
		logger.Warn("transport failure, retrying run with a fresh session", "error", err)
		err = runOnce(ctx, logger, &cfg, catalog, strategies, bars, repo, notifier, runID)
	}
	if err != nil {
		panic(fmt.Sprintf("run failed: %v", err))
	}
}

func runOnce(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	catalog *indicator.Catalog,
	strategies []strategy.Strategy,
	bars trading.BarSource,
	repo database.Repository,
	notifier *notify.WebhookNotifier,
	runID string,
) error {
	session := broker.NewClient(logger, cfg.Broker.BaseURL, cfg.Broker.StreamURL, cfg.Broker.Token,
		[]string{cfg.Trading.InstrumentLong, cfg.Trading.InstrumentShort})
	defer session.Close()

	controller, err := trading.NewController(logger, cfg, session, catalog, strategies, bars, repo, notifier, runID)
	if err != nil {
		return err
	}
	return controller.Run(ctx)
}
