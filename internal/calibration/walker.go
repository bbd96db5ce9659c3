package calibration

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"certtrader/internal/config"
	"certtrader/internal/model"
	"certtrader/internal/strategy"
	"certtrader/internal/trading"
)

// Walker replays historical bars through the strategy catalog with a
// simulated order ledger, scoring each strategy independently.
type Walker struct {
	logger       *slog.Logger
	sessionOpen  time.Duration
	sessionClose time.Duration
	tradeCost    float64
	params       trading.LimitParams
}

// NewWalker builds a backtest walker from the calibration settings.
func NewWalker(logger *slog.Logger, cal config.CalibrationConfig, trd config.TradingConfig) (*Walker, error) {
	open, err := parseClock(cal.SessionOpen)
	if err != nil {
		return nil, fmt.Errorf("session open: %w", err)
	}
	closeAt, err := parseClock(cal.SessionClose)
	if err != nil {
		return nil, fmt.Errorf("session close: %w", err)
	}
	return &Walker{
		logger:       logger,
		sessionOpen:  open,
		sessionClose: closeAt,
		tradeCost:    cal.TradeCost,
		params: trading.LimitParams{
			StopLossPct:   trd.StopLossPct,
			TakeProfitPct: trd.TakeProfitPct,
		},
	}, nil
}

// Walk scores every candidate strategy over the bar series. Bars must
// already be enriched with indicator columns and arrive in
// chronological order.
func (w *Walker) Walk(bars []model.Bar, strategies []strategy.Strategy) []model.StrategyScore {
	scores := make([]model.StrategyScore, 0, len(strategies))
	for i, s := range strategies {
		scores = append(scores, w.simulate(bars, s))
		if (i+1)%50 == 0 {
			w.logger.Info("calibration progress", "done", i+1, "total", len(strategies))
		}
	}
	return scores
}

type tally struct {
	points      int
	profit      float64
	good, total int
	long, short int
}

func (w *Walker) simulate(bars []model.Bar, s strategy.Strategy) model.StrategyScore {
	orders := map[model.Instrument]*order{
		model.Long:  {instrument: model.Long},
		model.Short: {instrument: model.Short},
	}
	var t tally
	for i, bar := range bars {
		tod := clockOffset(bar.Time)
		if tod < w.sessionOpen {
			continue
		}
		if tod >= w.sessionClose || i == len(bars)-1 || newDayAhead(bars, i) {
			// End-of-day liquidation; open positions never survive a
			// session boundary.
			for _, o := range orders {
				if o.open {
					w.settle(&t, o, fillPrice(bar, o.instrument, false))
				}
			}
			continue
		}

		// Risk limits first, so a stop and a same-bar signal cannot both
		// act on the same position.
		for _, o := range orders {
			if exit := o.limitExit(bar); exit > 0 {
				w.settle(&t, o, exit)
			}
		}

		var target model.Instrument
		switch {
		case s.Buy(bar):
			target = model.Long
		case s.Sell(bar):
			target = model.Short
		default:
			continue
		}
		if opp := orders[target.Opposite()]; opp.open {
			w.settle(&t, opp, fillPrice(bar, opp.instrument, false))
		}
		if o := orders[target]; o.open {
			o.refreshLimits(bar.ATR(), w.params)
		} else {
			o.openAt(bar, bar.ATR(), w.params)
		}
	}
	eff := 0.0
	if t.total > 0 {
		eff = 100 * float64(t.good) / float64(t.total)
	}
	return model.StrategyScore{
		Name:        s.Name,
		Points:      t.points,
		Profit:      t.profit,
		Efficiency:  eff,
		LongTrades:  t.long,
		ShortTrades: t.short,
	}
}

// settle closes a simulated position and folds it into the tally.
// Each trade carries a fixed notional of 1000 at 20x leverage; points
// are a saturating magnitude bucket capped at +-4.
func (w *Walker) settle(t *tally, o *order, exit float64) {
	sign := 1.0
	if o.instrument == model.Short {
		sign = -1
	}
	profit := 1000 + 20*1000*(exit/o.entryPrice-1)*sign
	delta := profit - 1000

	bucket := 1 + int(math.Abs(delta))/100
	if bucket > 4 {
		bucket = 4
	}
	switch {
	case delta > 0:
		t.points += bucket
		t.good++
	case delta < 0:
		t.points -= bucket
	}
	t.total++
	t.profit += delta - w.tradeCost
	if o.instrument == model.Long {
		t.long++
	} else {
		t.short++
	}
	o.reset()
}

// FilterAndRank drops strategies under the configured thresholds and
// sorts the survivors by points, then profit, descending.
func FilterAndRank(scores []model.StrategyScore, cal config.CalibrationConfig) []model.StrategyScore {
	out := make([]model.StrategyScore, 0, len(scores))
	for _, s := range scores {
		if s.Profit < cal.MinProfit || s.Points < cal.MinPoints || s.Efficiency < cal.MinEfficiency {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Profit != out[j].Profit {
			return out[i].Profit > out[j].Profit
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Promote returns the top-N strategy names for the live engine.
func Promote(ranked []model.StrategyScore, n int) []string {
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = ranked[i].Name
	}
	return names
}

func newDayAhead(bars []model.Bar, i int) bool {
	if i+1 >= len(bars) {
		return false
	}
	y1, m1, d1 := bars[i].Time.Date()
	y2, m2, d2 := bars[i+1].Time.Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

func clockOffset(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

func parseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("malformed clock %q: %w", s, err)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
