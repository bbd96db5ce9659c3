package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"certtrader/internal/calibration"
	"certtrader/internal/config"
	"certtrader/internal/database"
	"certtrader/internal/indicator"
	"certtrader/internal/marketdata"
	"certtrader/internal/model"
	"certtrader/internal/strategy"
)

const catalogName = "day-trading"

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	runID := uuid.NewString()
	ctx := context.Background()

	repo, err := database.NewPostgresRepository(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("cannot open database: %v", err)
	}
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("cannot migrate database: %v", err)
	}

	provider := marketdata.NewCachedProvider(logger,
		marketdata.NewHTTPProvider(logger, cfg.MarketData.BaseURL), cfg.MarketData.CacheDir)

	bars, err := provider.Bars(ctx, cfg.Calibration.Ticker, cfg.Calibration.Interval, cfg.Calibration.LookbackDays)
	if err != nil {
		log.Fatalf("cannot fetch historical bars: %v", err)
	}
	logger.Info("historical bars loaded",
		"runID", runID, "ticker", cfg.Calibration.Ticker, "bars", len(bars))

	catalog := indicator.NewCatalog(logger)
	catalog.Enrich(bars)
	strategies := strategy.GenerateAll(catalog)
	logger.Info("strategy space generated", "strategies", len(strategies))

	walker, err := calibration.NewWalker(logger, cfg.Calibration, cfg.Trading)
	if err != nil {
		log.Fatalf("cannot build walker: %v", err)
	}
	scores := walker.Walk(bars, strategies)
	ranked := calibration.FilterAndRank(scores, cfg.Calibration)
	promoted := calibration.Promote(ranked, cfg.Signals.TopStrategies)
	logger.Info("calibration finished",
		"scored", len(scores), "surviving", len(ranked), "promoted", len(promoted))

	doc := database.CatalogDocument{
		Name:   catalogName,
		Scope:  fmt.Sprintf("%dd", cfg.Calibration.LookbackDays),
		Scores: ranked,
		Use:    promoted,
	}
	if err := repo.SaveCatalog(ctx, doc); err != nil {
		log.Fatalf("cannot persist strategy catalog: %v", err)
	}

	if err := reassignInstruments(ctx, logger, &cfg, provider); err != nil {
		logger.Error("instrument reassignment failed", "error", err)
	}
}

// reassignInstruments recomputes tomorrow's preferred direction from the
// weighted reference basket and rewrites the trading settings.
func reassignInstruments(ctx context.Context, logger *slog.Logger, cfg *config.Config, provider marketdata.Provider) error {
	var total float64
	for ticker, weight := range cfg.Calibration.ReferenceTickers {
		bars, err := provider.Bars(ctx, ticker, "1d", 5)
		if err != nil {
			return fmt.Errorf("reference ticker %s: %w", ticker, err)
		}
		if len(bars) < 2 || bars[0].Close <= 0 {
			continue
		}
		total += weight * (bars[len(bars)-1].Close/bars[0].Close - 1)
	}
	direction := model.Long
	if total < 0 {
		direction = model.Short
	}
	trading := cfg.Trading
	trading.PreferredDirection = direction.String()
	logger.Info("preferred direction recomputed", "direction", direction, "basketReturn", total)
	return config.SaveTrading(trading)
}
