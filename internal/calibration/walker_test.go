package calibration

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certtrader/internal/config"
	"certtrader/internal/indicator"
	"certtrader/internal/model"
	"certtrader/internal/strategy"
)

// flagIndicator fires on per-bar columns, so tests can script exactly
// which bars produce signals.
type flagIndicator struct {
	buyCol  string
	sellCol string
}

func (f flagIndicator) Category() indicator.Category { return indicator.Trend }
func (f flagIndicator) Name() string                 { return "FLAG" }
func (f flagIndicator) Compute([]model.Bar) error    { return nil }
func (f flagIndicator) Buy(b model.Bar) bool         { return b.Columns[f.buyCol] == 1 }
func (f flagIndicator) Sell(b model.Bar) bool        { return b.Columns[f.sellCol] == 1 }

// trendIndicator fires on the bar's own direction.
type trendIndicator struct{}

func (trendIndicator) Category() indicator.Category { return indicator.Trend }
func (trendIndicator) Name() string                 { return "BARDIR" }
func (trendIndicator) Compute([]model.Bar) error    { return nil }
func (trendIndicator) Buy(b model.Bar) bool         { return b.Close > b.Open }
func (trendIndicator) Sell(b model.Bar) bool        { return b.Close < b.Open }

func testWalker(t *testing.T) *Walker {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	w, err := NewWalker(logger,
		config.CalibrationConfig{SessionOpen: "09:00", SessionClose: "17:30", TradeCost: 1},
		config.TradingConfig{StopLossPct: 0.97, TakeProfitPct: 1.05},
	)
	require.NoError(t, err)
	return w
}

func simBar(day, hour, minute int, open, high, low, closePrice float64, cols map[string]float64) model.Bar {
	if cols == nil {
		cols = map[string]float64{}
	}
	return model.Bar{
		Time:    time.Date(2025, 3, day, hour, minute, 0, 0, time.UTC),
		Open:    open,
		High:    high,
		Low:     low,
		Close:   closePrice,
		Columns: cols,
	}
}

func TestWalkSingleWinningTrade(t *testing.T) {
	w := testWalker(t)
	always := strategy.Strategy{
		Name:       "always-buy",
		Components: []indicator.Indicator{flagIndicator{buyCol: "GO", sellCol: "NEVER"}},
	}
	bars := []model.Bar{
		simBar(10, 10, 0, 100, 100, 100, 100, map[string]float64{"GO": 1}),
		simBar(10, 10, 1, 105, 105, 105, 105, map[string]float64{"GO": 1}),
		simBar(10, 10, 2, 110, 110, 110, 110, map[string]float64{"GO": 1}),
	}

	scores := w.Walk(bars, []strategy.Strategy{always})
	require.Len(t, scores, 1)
	score := scores[0]

	// Entry at 100 plus adverse slippage, forced exit on the last bar at
	// 110 minus it; 20x leverage on a notional of 1000, minus one unit of
	// trade cost.
	wantDelta := 20 * 1000 * (110*(1-slippageBias)/(100*(1+slippageBias)) - 1)
	assert.InDelta(t, wantDelta-1, score.Profit, 1e-6)
	assert.Equal(t, 4, score.Points)
	assert.Equal(t, 100.0, score.Efficiency)
	assert.Equal(t, 1, score.LongTrades)
	assert.Equal(t, 0, score.ShortTrades)
}

func TestWalkStopLossExit(t *testing.T) {
	w := testWalker(t)
	oneShot := strategy.Strategy{
		Name:       "one-shot",
		Components: []indicator.Indicator{flagIndicator{buyCol: "SIG", sellCol: "NEVER"}},
	}
	bars := []model.Bar{
		simBar(10, 10, 0, 100, 100, 99, 100, map[string]float64{"SIG": 1, "ATR": 20}),
		// The low pierces the stop, the high stays under the take-profit.
		simBar(10, 10, 1, 98, 98.5, 96, 97, map[string]float64{"ATR": 20}),
		simBar(10, 10, 2, 97, 97.5, 96.5, 97, map[string]float64{"ATR": 20}),
	}

	scores := w.Walk(bars, []strategy.Strategy{oneShot})
	require.Len(t, scores, 1)
	score := scores[0]

	// Exit exactly at the stop, 3% under the entry, is a -600 delta at
	// 20x leverage.
	assert.InDelta(t, -601.0, score.Profit, 1e-6)
	assert.Equal(t, -4, score.Points)
	assert.Equal(t, 0.0, score.Efficiency)
	assert.Equal(t, 1, score.LongTrades)
}

func TestWalkTwoDayTrendFollowing(t *testing.T) {
	w := testWalker(t)
	trend := strategy.Strategy{
		Name:       "bar-direction",
		Components: []indicator.Indicator{trendIndicator{}},
	}
	bars := []model.Bar{
		// Day one trends up; the long must be force-closed at the day
		// boundary, before day two's falling prices can hurt it.
		simBar(10, 10, 0, 100, 101, 100, 101, nil),
		simBar(10, 10, 1, 101, 102, 101, 102, nil),
		// Day two trends down and ends with a forced close.
		simBar(11, 10, 0, 100, 100, 99, 99, nil),
		simBar(11, 10, 1, 99, 99, 98, 98, nil),
		simBar(11, 10, 2, 98, 98, 97, 97, nil),
	}

	scores := w.Walk(bars, []strategy.Strategy{trend})
	require.Len(t, scores, 1)
	score := scores[0]

	assert.Equal(t, 1, score.LongTrades)
	assert.Equal(t, 1, score.ShortTrades)
	assert.Equal(t, 100.0, score.Efficiency, "both directions should profit from their own day")
	assert.Greater(t, score.Profit, 0.0)
	assert.Greater(t, score.Points, 0)
}

func TestWalkRespectsSessionWindow(t *testing.T) {
	w := testWalker(t)
	always := strategy.Strategy{
		Name:       "always-buy",
		Components: []indicator.Indicator{flagIndicator{buyCol: "GO", sellCol: "NEVER"}},
	}
	bars := []model.Bar{
		// Pre-open bars are skipped entirely.
		simBar(10, 8, 30, 100, 100, 100, 100, map[string]float64{"GO": 1}),
		simBar(10, 8, 45, 100, 100, 100, 100, map[string]float64{"GO": 1}),
		// Post-close bars only liquidate, never enter.
		simBar(10, 17, 30, 100, 100, 100, 100, map[string]float64{"GO": 1}),
		simBar(10, 17, 31, 100, 100, 100, 100, map[string]float64{"GO": 1}),
	}

	scores := w.Walk(bars, []strategy.Strategy{always})
	require.Len(t, scores, 1)
	assert.Equal(t, 0, scores[0].LongTrades)
	assert.Equal(t, 0.0, scores[0].Profit)
}

func TestFilterAndRank(t *testing.T) {
	cal := config.CalibrationConfig{MinProfit: 0, MinPoints: 1, MinEfficiency: 50}
	scores := []model.StrategyScore{
		{Name: "low-points", Points: 0, Profit: 500, Efficiency: 90},
		{Name: "low-efficiency", Points: 5, Profit: 500, Efficiency: 40},
		{Name: "negative-profit", Points: 5, Profit: -10, Efficiency: 90},
		{Name: "b", Points: 5, Profit: 300, Efficiency: 80},
		{Name: "a", Points: 5, Profit: 300, Efficiency: 70},
		{Name: "best", Points: 8, Profit: 100, Efficiency: 60},
	}

	ranked := FilterAndRank(scores, cal)
	require.Len(t, ranked, 3)
	assert.Equal(t, "best", ranked[0].Name, "points dominate profit")
	// Equal points and profit fall back to the name.
	assert.Equal(t, "a", ranked[1].Name)
	assert.Equal(t, "b", ranked[2].Name)
}

func TestPromote(t *testing.T) {
	ranked := []model.StrategyScore{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	assert.Equal(t, []string{"a", "b"}, Promote(ranked, 2))
	assert.Equal(t, []string{"a", "b", "c"}, Promote(ranked, 0))
	assert.Equal(t, []string{"a", "b", "c"}, Promote(ranked, 10))
}

func TestFillPriceAdverseBothWays(t *testing.T) {
	b := simBar(10, 10, 0, 100, 101, 99, 100, nil)

	assert.Greater(t, fillPrice(b, model.Long, true), 100.0, "long entry fills high")
	assert.Less(t, fillPrice(b, model.Long, false), 100.0, "long exit fills low")
	assert.Less(t, fillPrice(b, model.Short, true), 100.0, "short entry fills low")
	assert.Greater(t, fillPrice(b, model.Short, false), 100.0, "short exit fills high")
}
