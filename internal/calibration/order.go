package calibration

import (
	"time"

	"certtrader/internal/model"
	"certtrader/internal/trading"
)

// slippageBias is applied against the position on both entry and exit,
// so simulated fills are never optimistic.
const slippageBias = 0.00015

// order is the simulation-only analog of the live instrument status:
// same direction and limit fields, driven by historical bars instead of
// live quotes. One per instrument, discarded after each strategy's walk.
type order struct {
	instrument model.Instrument
	open       bool
	entryPrice float64
	entryTime  time.Time
	stopLoss   float64
	takeProfit float64
}

// fillPrice approximates a fill at the bar's open/close midpoint with
// the slippage bias applied against the trade.
func fillPrice(b model.Bar, inst model.Instrument, isEntry bool) float64 {
	mid := (b.Open + b.Close) / 2
	adverse := slippageBias
	// Long entry and short exit fill high; long exit and short entry
	// fill low.
	if (inst == model.Long) != isEntry {
		adverse = -adverse
	}
	return mid * (1 + adverse)
}

func (o *order) openAt(b model.Bar, atrValue float64, params trading.LimitParams) {
	o.open = true
	o.entryPrice = fillPrice(b, o.instrument, true)
	o.entryTime = b.Time
	o.refreshLimits(atrValue, params)
}

func (o *order) refreshLimits(atrValue float64, params trading.LimitParams) {
	if stop, take, ok := trading.LimitPrices(o.instrument, o.entryPrice, atrValue, params); ok {
		o.stopLoss, o.takeProfit = stop, take
	}
}

// limitExit returns the exit price when the bar crosses the order's
// stop-loss or take-profit, or 0 when neither triggers.
func (o *order) limitExit(b model.Bar) float64 {
	if !o.open || o.stopLoss == 0 {
		return 0
	}
	if o.instrument == model.Long {
		if b.Low <= o.stopLoss {
			return o.stopLoss
		}
		if b.High >= o.takeProfit {
			return o.takeProfit
		}
		return 0
	}
	if b.High >= o.stopLoss {
		return o.stopLoss
	}
	if b.Low <= o.takeProfit {
		return o.takeProfit
	}
	return 0
}

func (o *order) reset() {
	o.open = false
	o.entryPrice = 0
	o.entryTime = time.Time{}
	o.stopLoss, o.takeProfit = 0, 0
}
