package trading

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"certtrader/internal/config"
	"certtrader/internal/indicator"
	"certtrader/internal/model"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) LogTrade(ctx context.Context, trade model.TradeRecord) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

func (m *MockLedger) SaveRunSummary(ctx context.Context, summary model.RunSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendRunSummary(summary model.RunSummary) error {
	args := m.Called(summary)
	return args.Error(0)
}

type MockBarSource struct {
	mock.Mock
}

func (m *MockBarSource) Bars(ctx context.Context, ticker, interval string, days int) ([]model.Bar, error) {
	args := m.Called(ctx, ticker, interval, days)
	return args.Get(0).([]model.Bar), args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			Budget:          1000,
			StopLossPct:     0.97,
			TakeProfitPct:   1.05,
			SpreadLimit:     1.0,
			InstrumentLong:  "CERT-L",
			InstrumentShort: "CERT-S",
			Account:         "acc-1",
		},
		Phases: config.PhaseConfig{MorningEnd: "10:00", DayEnd: "17:30"},
		Calibration: config.CalibrationConfig{
			Ticker:           "^OMX",
			Interval:         "1m",
			ReferenceTickers: map[string]float64{"^IDX": 1.0},
		},
	}
}

func flatQuote(buy, sell float64) model.Quote {
	return model.Quote{Buy: buy, Sell: sell, Spread: buy - sell}
}

func dailyBars(closes ...float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Time:    time.Date(2025, 3, 10+i, 18, 0, 0, 0, time.UTC),
			Open:    c, High: c, Low: c, Close: c,
			Columns: map[string]float64{},
		}
	}
	return bars
}

func newTestController(t *testing.T, cfg *config.Config, session *MockSession, bars *MockBarSource, ledger *MockLedger, notifier *MockNotifier) *Controller {
	t.Helper()
	c, err := NewController(testLogger(), cfg, session, indicator.NewCatalog(testLogger()), nil, bars, ledger, notifier, "run-1")
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC) }
	c.sleep = func(time.Duration) {}
	c.reconciler.sleep = func(time.Duration) {}
	return c
}

func TestRunEveningFlow(t *testing.T) {
	session := new(MockSession)
	bars := new(MockBarSource)
	ledger := new(MockLedger)
	notifier := new(MockNotifier)

	session.On("GetPortfolio", mock.Anything).
		Return(model.Portfolio{BuyingPower: 5000, OwnCapital: 10000}, nil).Once()
	// Close-out finds both directions already flat.
	session.On("GetQuote", mock.Anything, "CERT-L").Return(flatQuote(100.4, 100), nil)
	session.On("GetQuote", mock.Anything, "CERT-S").Return(flatQuote(50.4, 50), nil)
	// Falling reference basket recommends going short tomorrow.
	bars.On("Bars", mock.Anything, "^IDX", "1d", 5).Return(dailyBars(100, 98, 95, 92, 90), nil)
	session.On("GetPortfolio", mock.Anything).
		Return(model.Portfolio{BuyingPower: 800.7, OwnCapital: 9900}, nil).Once()

	var saved, sent model.RunSummary
	ledger.On("SaveRunSummary", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(model.RunSummary) }).
		Return(nil).Once()
	notifier.On("SendRunSummary", mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(0).(model.RunSummary) }).
		Return(nil).Once()

	// The clock starts at 18:00, past the day end, so the run goes
	// straight to the evening close-out.
	c := newTestController(t, testConfig(), session, bars, ledger, notifier)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, "run-1", saved.RunID)
	assert.Equal(t, 10000.0, saved.BalanceBefore)
	assert.Equal(t, 9900.0, saved.BalanceAfter)
	// The budget shrinks to the floored buying power.
	assert.Equal(t, 800.0, saved.Budget)
	assert.Equal(t, saved, sent)

	ledger.AssertExpectations(t)
	notifier.AssertExpectations(t)
	session.AssertExpectations(t)
}

func TestRunDayHaltsOnDailyTarget(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.DailyTargetRatio = 1.02
	cfg.Phases = config.PhaseConfig{MorningEnd: "00:00", DayEnd: "23:59"}

	session := new(MockSession)
	bars := new(MockBarSource)
	ledger := new(MockLedger)
	notifier := new(MockNotifier)

	session.On("GetPortfolio", mock.Anything).
		Return(model.Portfolio{BuyingPower: 5000, OwnCapital: 10000}, nil).Once()
	// The day's first cutoff check already sees the target exceeded, so
	// the run closes out without ever scanning the market.
	session.On("GetPortfolio", mock.Anything).
		Return(model.Portfolio{BuyingPower: 5000, OwnCapital: 10300}, nil).Once()
	session.On("GetQuote", mock.Anything, "CERT-L").Return(flatQuote(100.4, 100), nil)
	session.On("GetQuote", mock.Anything, "CERT-S").Return(flatQuote(50.4, 50), nil)
	bars.On("Bars", mock.Anything, "^IDX", "1d", 5).Return(dailyBars(100, 102, 104, 106, 108), nil)
	session.On("GetPortfolio", mock.Anything).
		Return(model.Portfolio{BuyingPower: 5000, OwnCapital: 10300}, nil).Once()

	var saved model.RunSummary
	ledger.On("SaveRunSummary", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(model.RunSummary) }).
		Return(nil).Once()
	notifier.On("SendRunSummary", mock.Anything).Return(nil).Once()

	c := newTestController(t, cfg, session, bars, ledger, notifier)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 10300.0, saved.BalanceAfter)
	session.AssertExpectations(t)
	// No market-data pull for the trading ticker happened.
	bars.AssertNotCalled(t, "Bars", mock.Anything, "^OMX", mock.Anything, mock.Anything)
}

func TestDailyCutoff(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.DailyTargetRatio = 1.02
	cfg.Trading.DailyLimitRatio = 0.95

	session := new(MockSession)
	c := newTestController(t, cfg, session, new(MockBarSource), new(MockLedger), new(MockNotifier))
	before := model.Portfolio{OwnCapital: 10000}
	ctx := context.Background()

	session.On("GetPortfolio", mock.Anything).Return(model.Portfolio{OwnCapital: 10100}, nil).Once()
	halt, err := c.dailyCutoff(ctx, before)
	require.NoError(t, err)
	assert.False(t, halt)

	session.On("GetPortfolio", mock.Anything).Return(model.Portfolio{OwnCapital: 10200}, nil).Once()
	halt, err = c.dailyCutoff(ctx, before)
	require.NoError(t, err)
	assert.True(t, halt, "gain at the target ratio halts")

	session.On("GetPortfolio", mock.Anything).Return(model.Portfolio{OwnCapital: 9400}, nil).Once()
	halt, err = c.dailyCutoff(ctx, before)
	require.NoError(t, err)
	assert.True(t, halt, "loss past the limit ratio halts")

	// Zero ratios disable the check entirely; no portfolio call happens.
	cfg.Trading.DailyTargetRatio = 0
	cfg.Trading.DailyLimitRatio = 0
	halt, err = c.dailyCutoff(ctx, before)
	require.NoError(t, err)
	assert.False(t, halt)
	session.AssertExpectations(t)
}

func TestControllerTreatsHolidayAsEvening(t *testing.T) {
	cfg := testConfig()
	cfg.Phases = config.PhaseConfig{MorningEnd: "10:00", DayEnd: "23:00", Holidays: []string{"2025-03-10"}}

	c := newTestController(t, cfg, new(MockSession), new(MockBarSource), new(MockLedger), new(MockNotifier))
	// 18:00 is inside the configured day window, so only the holiday
	// can explain an EVENING phase.
	assert.Equal(t, Evening, c.clock.Advance(c.now()))
}

func TestActSellsOppositeBeforeBuying(t *testing.T) {
	session := new(MockSession)
	bars := new(MockBarSource)
	ledger := new(MockLedger)
	notifier := new(MockNotifier)

	// The short side holds a leftover position that must be unwound
	// before the long side is entered.
	shortHeld := model.Quote{Buy: 50.4, Sell: 50, Spread: 0.4, Position: &model.Position{Volume: 5}}
	session.On("GetQuote", mock.Anything, "CERT-S").Return(shortHeld, nil).Once()
	session.On("PlaceOrder", mock.Anything, "CERT-S", model.SignalSell, 50.0, 5.0).Return(nil).Once()
	session.On("GetQuote", mock.Anything, "CERT-S").Return(flatQuote(50.4, 50), nil).Once()

	session.On("GetQuote", mock.Anything, "CERT-L").Return(flatQuote(100.4, 100), nil).Once()
	session.On("PlaceOrder", mock.Anything, "CERT-L", model.SignalBuy, 100.4, 9.0).Return(nil).Once()
	filled := model.Quote{Buy: 100.4, Sell: 100, Spread: 0.4, Position: &model.Position{Volume: 9}}
	session.On("GetQuote", mock.Anything, "CERT-L").Return(filled, nil).Once()

	// Unwinding the short closes its tracked trade.
	ledger.On("LogTrade", mock.Anything, mock.Anything).Return(nil).Once()

	c := newTestController(t, testConfig(), session, bars, ledger, notifier)
	require.NoError(t, c.act(context.Background(), model.SignalBuy))

	sellIdx, buyIdx := -1, -1
	for i, call := range session.Calls {
		if call.Method != "PlaceOrder" {
			continue
		}
		if call.Arguments.Get(2).(model.Signal) == model.SignalSell {
			sellIdx = i
		} else {
			buyIdx = i
		}
	}
	require.NotEqual(t, -1, sellIdx)
	require.NotEqual(t, -1, buyIdx)
	assert.Less(t, sellIdx, buyIdx, "opposite direction must be sold before the target is bought")

	session.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestUpdateBarsExcludesFormingBar(t *testing.T) {
	session := new(MockSession)
	bars := new(MockBarSource)
	ledger := new(MockLedger)
	notifier := new(MockNotifier)

	c := newTestController(t, testConfig(), session, bars, ledger, notifier)
	now := c.now()

	series := []model.Bar{
		{Time: now.Add(-2 * time.Minute), Open: 100, High: 101, Low: 99, Close: 100, Columns: map[string]float64{}},
		{Time: now.Add(-time.Minute), Open: 100, High: 101, Low: 99, Close: 101, Columns: map[string]float64{}},
		{Time: now, Open: 101, High: 102, Low: 100, Close: 101, Columns: map[string]float64{}},
	}
	bars.On("Bars", mock.Anything, "^OMX", "1m", 1).Return(series, nil).Once()

	require.NoError(t, c.updateBars(context.Background()))
	require.Len(t, c.closedBars, 2)
	assert.Equal(t, now.Add(-time.Minute), c.closedBars[1].Time)
}
