package signal

import (
	"log/slog"
	"time"

	"certtrader/internal/model"
	"certtrader/internal/strategy"
)

// Engine derives a directional signal from the active strategy set and
// the most recent closed bars. It remembers the last processed bar and
// the last emitted signal so duplicate candles and stale repeats are
// suppressed rather than re-acted on.
type Engine struct {
	logger    *slog.Logger
	staleness time.Duration
	lookback  int

	lastBarTime    time.Time
	lastSignal     *model.Signal
	lastSignalTime time.Time

	now func() time.Time
}

// NewEngine creates a signal engine. Staleness defaults to 122s and the
// backward-scan window to 26 bars when zero values are passed.
func NewEngine(logger *slog.Logger, staleness time.Duration, lookback int) *Engine {
	if staleness <= 0 {
		staleness = 122 * time.Second
	}
	if lookback <= 0 {
		lookback = 26
	}
	return &Engine{logger: logger, staleness: staleness, lookback: lookback, now: time.Now}
}

type finding struct {
	signal   model.Signal
	barTime  time.Time
	strategy string
}

// Get evaluates the active strategies against the bar series, whose last
// element must be the latest closed bar. The boolean is false when no
// actionable signal exists.
func (e *Engine) Get(bars []model.Bar, active []strategy.Strategy) (model.Signal, bool) {
	if len(bars) == 0 || len(active) == 0 {
		return 0, false
	}
	latest := bars[len(bars)-1]
	if latest.Time.Equal(e.lastBarTime) {
		return 0, false
	}
	e.lastBarTime = latest.Time
	if e.now().Sub(latest.Time) > e.staleness {
		e.logger.Debug("latest bar too old, skipping", "barTime", latest.Time)
		return 0, false
	}

	window := bars
	if len(window) > e.lookback {
		window = window[len(window)-e.lookback:]
	}

	findings := make([]finding, 0, len(active))
	for _, s := range active {
		for i := len(window) - 1; i >= 0; i-- {
			if s.Buy(window[i]) {
				findings = append(findings, finding{model.SignalBuy, window[i].Time, s.Name})
				break
			}
			if s.Sell(window[i]) {
				findings = append(findings, finding{model.SignalSell, window[i].Time, s.Name})
				break
			}
		}
	}
	if len(findings) == 0 {
		return 0, false
	}

	// The single most recent timestamp wins; among strategies agreeing on
	// it the majority direction decides, ties going to the first finding.
	newest := findings[0].barTime
	for _, f := range findings[1:] {
		if f.barTime.After(newest) {
			newest = f.barTime
		}
	}
	var buys, sells int
	first := finding{}
	for _, f := range findings {
		if !f.barTime.Equal(newest) {
			continue
		}
		if first.strategy == "" {
			first = f
		}
		if f.signal == model.SignalBuy {
			buys++
		} else {
			sells++
		}
	}
	result := first.signal
	if buys > sells {
		result = model.SignalBuy
	} else if sells > buys {
		result = model.SignalSell
	}

	if e.lastSignal != nil && *e.lastSignal == result && !newest.After(e.lastSignalTime) {
		return 0, false
	}
	e.lastSignal = &result
	e.lastSignalTime = newest
	e.logger.Info("signal derived",
		"signal", result, "barTime", newest,
		"strategy", first.strategy, "buys", buys, "sells", sells)
	return result, true
}
