package trading

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"certtrader/internal/broker"
	"certtrader/internal/config"
	"certtrader/internal/indicator"
	"certtrader/internal/model"
	"certtrader/internal/signal"
	"certtrader/internal/strategy"
)

// Ledger persists closed trades and run summaries.
type Ledger interface {
	LogTrade(ctx context.Context, trade model.TradeRecord) error
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
}

// Notifier receives the end-of-run summary. Fire and forget.
type Notifier interface {
	SendRunSummary(summary model.RunSummary) error
}

// BarSource returns recent OHLCV bars for a ticker.
type BarSource interface {
	Bars(ctx context.Context, ticker, interval string, days int) ([]model.Bar, error)
}

// Controller orchestrates the signal engine, the per-instrument status
// pair and the order gateway inside the day-phase state machine. It is
// single-threaded: one poll loop, explicit pauses, no shared state.
type Controller struct {
	logger     *slog.Logger
	cfg        *config.Config
	session    broker.Session
	gateway    *Gateway
	reconciler *Reconciler
	engine     *signal.Engine
	strategies []strategy.Strategy
	catalog    *indicator.Catalog
	bars       BarSource
	ledger     Ledger
	notifier   Notifier
	clock      *PhaseClock

	runID      string
	statuses   map[model.Instrument]*InstrumentStatus
	closedBars []model.Bar
	lastATR    float64

	errorCount int
	startedAt  time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewController wires the live trading run.
func NewController(
	logger *slog.Logger,
	cfg *config.Config,
	session broker.Session,
	catalog *indicator.Catalog,
	strategies []strategy.Strategy,
	bars BarSource,
	ledger Ledger,
	notifier Notifier,
	runID string,
) (*Controller, error) {
	clock, err := NewPhaseClock(logger, cfg.Phases.MorningEnd, cfg.Phases.DayEnd, HolidaySet(cfg.Phases.Holidays))
	if err != nil {
		return nil, err
	}
	params := LimitParams{
		StopLossPct:   cfg.Trading.StopLossPct,
		TakeProfitPct: cfg.Trading.TakeProfitPct,
		SpreadLimit:   cfg.Trading.SpreadLimit,
		TrailingDwell: time.Duration(cfg.Trading.TrailingDwellMin) * time.Minute,
	}
	instrumentIDs := map[model.Instrument]string{
		model.Long:  cfg.Trading.InstrumentLong,
		model.Short: cfg.Trading.InstrumentShort,
	}
	c := &Controller{
		logger:     logger,
		cfg:        cfg,
		session:    session,
		engine:     signal.NewEngine(logger, time.Duration(cfg.Signals.StalenessSecs)*time.Second, cfg.Signals.LookbackBars),
		strategies: strategies,
		catalog:    catalog,
		bars:       bars,
		ledger:     ledger,
		notifier:   notifier,
		clock:      clock,
		runID:      runID,
		statuses: map[model.Instrument]*InstrumentStatus{
			model.Long:  NewInstrumentStatus(logger, model.Long, params),
			model.Short: NewInstrumentStatus(logger, model.Short, params),
		},
		now:   time.Now,
		sleep: time.Sleep,
	}
	c.gateway = NewGateway(logger, session, cfg.Trading.Account, cfg.Trading.Budget, instrumentIDs)
	c.reconciler = NewReconciler(logger, c.gateway, c.refreshStatus, 5, 10*time.Second)
	return c, nil
}

// Run executes one full trading day and returns after the EVENING phase
// completes. Transport errors bubble up so the caller can rebuild the
// session and retry the run once.
func (c *Controller) Run(ctx context.Context) error {
	c.startedAt = c.now()
	before, err := c.session.GetPortfolio(ctx)
	if err != nil {
		return fmt.Errorf("initial portfolio: %w", err)
	}
	c.logger.Info("run started",
		"runID", c.runID, "ownCapital", before.OwnCapital, "budget", c.cfg.Trading.Budget)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch c.clock.Advance(c.now()) {
		case Morning:
			if err := c.runMorning(ctx); err != nil {
				return err
			}
			c.sleep(c.pollInterval(Morning))
		case Day:
			halt, err := c.runDay(ctx, before)
			if err != nil {
				return err
			}
			if halt {
				return c.runEvening(ctx, before)
			}
			c.sleep(c.pollInterval(Day))
		case Evening:
			return c.runEvening(ctx, before)
		}
	}
}

// runMorning only inspects pre-existing positions; no new decisions.
func (c *Controller) runMorning(ctx context.Context) error {
	for _, inst := range model.Instruments {
		st, err := c.refreshStatus(ctx, inst)
		if err != nil {
			if broker.IsTransport(err) {
				return err
			}
			c.countError(err)
			continue
		}
		if st.Position != nil {
			c.logger.Info("morning holding",
				"instrument", inst, "volume", st.Position.Volume,
				"acquired", st.AcquiredPrice, "stopLoss", st.StopLoss, "takeProfit", st.TakeProfit)
		}
	}
	return nil
}

// runDay runs one day-phase cycle. It reports halt=true when the daily
// gain or loss ratio has been crossed and the run should close out early.
func (c *Controller) runDay(ctx context.Context, before model.Portfolio) (bool, error) {
	halt, err := c.dailyCutoff(ctx, before)
	if err != nil {
		if broker.IsTransport(err) {
			return false, err
		}
		c.countError(err)
	}
	if halt {
		return true, nil
	}

	if err := c.updateBars(ctx); err != nil {
		if broker.IsTransport(err) {
			return false, err
		}
		c.countError(err)
	}

	// Open positions are monitored against their limits regardless of
	// whether a new signal arrives.
	for _, inst := range model.Instruments {
		st, err := c.refreshStatus(ctx, inst)
		if err != nil {
			if broker.IsTransport(err) {
				return false, err
			}
			c.countError(err)
			continue
		}
		if st.LimitBreached() {
			c.logger.Info("risk limit breached",
				"instrument", inst, "sell", st.Sell,
				"stopLoss", st.StopLoss, "takeProfit", st.TakeProfit)
			if err := c.reconciler.Sell(ctx, inst, 0); err != nil {
				if broker.IsTransport(err) {
					return false, err
				}
				c.countError(err)
			}
		}
	}

	sig, ok := c.engine.Get(c.closedBars, c.strategies)
	if !ok {
		return false, nil
	}
	return false, c.act(ctx, sig)
}

// dailyCutoff compares the account's own capital against the starting
// capital and reports whether the configured daily gain or loss ratio
// has been crossed. Zero ratios disable the check.
func (c *Controller) dailyCutoff(ctx context.Context, before model.Portfolio) (bool, error) {
	target := c.cfg.Trading.DailyTargetRatio
	limit := c.cfg.Trading.DailyLimitRatio
	if (target <= 0 && limit <= 0) || before.OwnCapital <= 0 {
		return false, nil
	}
	current, err := c.session.GetPortfolio(ctx)
	if err != nil {
		return false, err
	}
	ratio := current.OwnCapital / before.OwnCapital
	if target > 0 && ratio >= target {
		c.logger.Info("daily target reached, closing out", "ratio", ratio, "target", target)
		return true, nil
	}
	if limit > 0 && ratio <= limit {
		c.logger.Info("daily loss limit hit, closing out", "ratio", ratio, "limit", limit)
		return true, nil
	}
	return false, nil
}

// act follows a signal: the sell side of the opposite instrument always
// reconciles before the buy side, so long and short exposure never
// overlap.
func (c *Controller) act(ctx context.Context, sig model.Signal) error {
	target := model.Long
	if sig == model.SignalSell {
		target = model.Short
	}
	if err := c.reconciler.Sell(ctx, target.Opposite(), 0); err != nil {
		if broker.IsTransport(err) {
			return err
		}
		c.countError(err)
		return nil
	}
	st := c.statuses[target]
	if st.Position != nil {
		if c.cfg.Trading.UpdateOnNewSignal {
			st.Resignal(c.lastATR)
		}
		return nil
	}
	if err := c.reconciler.Buy(ctx, target); err != nil {
		if broker.IsTransport(err) {
			return err
		}
		c.countError(err)
	}
	return nil
}

// runEvening closes remaining positions, recomputes the next day's
// recommendation, resizes the budget, persists settings and reports.
func (c *Controller) runEvening(ctx context.Context, before model.Portfolio) error {
	c.logger.Info("evening close-out starting", "runID", c.runID)
	for _, inst := range model.Instruments {
		if err := c.reconciler.Sell(ctx, inst, 0); err != nil {
			if broker.IsTransport(err) {
				return err
			}
			c.countError(err)
		}
	}

	recommended, err := c.recommendNextDay(ctx)
	if err != nil {
		c.countError(err)
		recommended = model.Long
	}
	c.logger.Info("next-day recommendation", "instrument", recommended)

	after, err := c.session.GetPortfolio(ctx)
	if err != nil {
		if broker.IsTransport(err) {
			return err
		}
		c.countError(err)
		after = before
	}

	trading := c.cfg.Trading
	trading.PreferredDirection = recommended.String()
	if after.BuyingPower < trading.Budget {
		trading.Budget = math.Floor(after.BuyingPower)
	}
	if err := config.SaveTrading(trading); err != nil {
		c.countError(fmt.Errorf("persist settings: %w", err))
	}

	summary := model.RunSummary{
		RunID:         c.runID,
		StartedAt:     c.startedAt,
		FinishedAt:    c.now(),
		BalanceBefore: before.OwnCapital,
		BalanceAfter:  after.OwnCapital,
		Budget:        trading.Budget,
		ErrorCount:    c.errorCount,
	}
	if err := c.ledger.SaveRunSummary(ctx, summary); err != nil {
		c.logger.Error("failed to persist run summary", "error", err)
	}
	if err := c.notifier.SendRunSummary(summary); err != nil {
		c.logger.Error("failed to send run summary", "error", err)
	}
	c.logger.Info("run finished",
		"runID", c.runID, "balanceBefore", summary.BalanceBefore,
		"balanceAfter", summary.BalanceAfter, "errors", c.errorCount)
	return nil
}

// recommendNextDay derives tomorrow's direction from the weighted
// return of the reference ticker basket.
func (c *Controller) recommendNextDay(ctx context.Context) (model.Instrument, error) {
	var total float64
	for ticker, weight := range c.cfg.Calibration.ReferenceTickers {
		bars, err := c.bars.Bars(ctx, ticker, "1d", 5)
		if err != nil {
			return model.Long, fmt.Errorf("reference ticker %s: %w", ticker, err)
		}
		if len(bars) < 2 {
			continue
		}
		first, last := bars[0].Close, bars[len(bars)-1].Close
		if first > 0 {
			total += weight * (last/first - 1)
		}
	}
	if total < 0 {
		return model.Short, nil
	}
	return model.Long, nil
}

// updateBars refreshes the enriched bar series, excluding the bar that
// is still forming.
func (c *Controller) updateBars(ctx context.Context) error {
	bars, err := c.bars.Bars(ctx, c.cfg.Calibration.Ticker, c.cfg.Calibration.Interval, 1)
	if err != nil {
		return fmt.Errorf("fetch bars: %w", err)
	}
	if len(bars) == 0 {
		return ErrNoQuote
	}
	iv := intervalDuration(c.cfg.Calibration.Interval)
	if c.now().Sub(bars[len(bars)-1].Time) < iv {
		bars = bars[:len(bars)-1] // still forming
	}
	if len(bars) == 0 {
		return nil
	}
	c.catalog.Enrich(bars)
	c.closedBars = bars
	c.lastATR = bars[len(bars)-1].ATR()
	return nil
}

func (c *Controller) refreshStatus(ctx context.Context, inst model.Instrument) (*InstrumentStatus, error) {
	id := c.cfg.Trading.InstrumentLong
	if inst == model.Short {
		id = c.cfg.Trading.InstrumentShort
	}
	q, err := c.session.GetQuote(ctx, id)
	if err != nil {
		return nil, err
	}
	st := c.statuses[inst]
	if closed := st.Refresh(q, c.lastATR, c.now()); closed != nil {
		record := model.TradeRecord{
			RunID:      c.runID,
			Instrument: closed.Instrument,
			EntryPrice: closed.EntryPrice,
			ExitPrice:  closed.ExitPrice,
			Volume:     closed.Volume,
			Verdict:    closed.Verdict(),
			EntryTime:  closed.EntryTime,
			ExitTime:   closed.ExitTime,
		}
		if err := c.ledger.LogTrade(ctx, record); err != nil {
			c.logger.Error("failed to log trade", "error", err)
		}
	}
	return st, nil
}

func (c *Controller) countError(err error) {
	c.errorCount++
	c.logger.Error("action skipped", "error", err, "errorCount", c.errorCount)
}

func (c *Controller) pollInterval(phase DayPhase) time.Duration {
	if phase == Morning {
		return secondsOr(c.cfg.Phases.MorningPollSecs, 120)
	}
	return secondsOr(c.cfg.Phases.DayPollSecs, 30)
}

func secondsOr(val, fallback int) time.Duration {
	if val <= 0 {
		val = fallback
	}
	return time.Duration(val) * time.Second
}

func intervalDuration(s string) time.Duration {
	switch s {
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}
