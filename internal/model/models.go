package model

import "time"

// Instrument identifies one of the two synthetic certificate directions.
type Instrument int

const (
	Long Instrument = iota
	Short
)

// Instruments lists both directions in a fixed order.
var Instruments = [2]Instrument{Long, Short}

func (i Instrument) String() string {
	if i == Short {
		return "SHORT"
	}
	return "LONG"
}

// Opposite returns the other certificate direction.
func (i Instrument) Opposite() Instrument {
	if i == Long {
		return Short
	}
	return Long
}

// Signal is a directional trading signal derived from the strategy catalog.
type Signal int

const (
	SignalBuy Signal = iota
	SignalSell
)

func (s Signal) String() string {
	if s == SignalSell {
		return "SELL"
	}
	return "BUY"
}

// Bar is one OHLCV record plus indicator-derived columns. A bar is
// immutable once its columns are computed; later bars may be appended
// to the series it belongs to.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	// Columns holds indicator-derived values (ATR, RSI, and
	// indicator-specific series) keyed by column name.
	Columns map[string]float64
}

// Column returns an indicator column and whether it was computed.
func (b Bar) Column(name string) (float64, bool) {
	v, ok := b.Columns[name]
	return v, ok
}

// ATR returns the average-true-range column, or 0 if absent.
func (b Bar) ATR() float64 {
	return b.Columns["ATR"]
}

// Position is an open holding reported by the brokerage.
type Position struct {
	Volume   float64
	AvgPrice float64
}

// Order is a pending brokerage order.
type Order struct {
	ID     string
	Side   Signal
	Price  float64
	Volume float64
}

// Quote is one snapshot of a certificate's market state.
type Quote struct {
	Buy      float64
	Sell     float64
	Spread   float64
	Position *Position
	Order    *Order
	Time     time.Time
}

// Portfolio is the account snapshot reported by the brokerage.
type Portfolio struct {
	BuyingPower float64
	OwnCapital  float64
}

// StrategyScore is the calibration result for one strategy.
type StrategyScore struct {
	Name        string  `json:"name"`
	Points      int     `json:"points"`
	Profit      float64 `json:"profit"`
	Efficiency  float64 `json:"efficiency"`
	LongTrades  int     `json:"long_trades"`
	ShortTrades int     `json:"short_trades"`
}

// TradeRecord is one closed live trade written to the ledger.
type TradeRecord struct {
	ID         int64
	RunID      string
	Instrument Instrument
	EntryPrice float64
	ExitPrice  float64
	Volume     float64
	Verdict    string
	EntryTime  time.Time
	ExitTime   time.Time
}

// RunSummary is the end-of-run report persisted and sent to the
// notification sink.
type RunSummary struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	BalanceBefore float64
	BalanceAfter  float64
	Budget        float64
	ErrorCount    int
}
