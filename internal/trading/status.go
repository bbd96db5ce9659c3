package trading

import (
	"log/slog"
	"time"

	"certtrader/internal/model"
)

// LimitParams carries the risk-limit settings the status tracker needs.
type LimitParams struct {
	StopLossPct   float64 // below 1.0, e.g. 0.97
	TakeProfitPct float64 // above 1.0, e.g. 1.05
	SpreadLimit   float64
	TrailingDwell time.Duration
}

// ClosedTrade is the verdict emitted when a tracked position disappears.
type ClosedTrade struct {
	Instrument model.Instrument
	EntryPrice float64
	ExitPrice  float64
	Volume     float64
	Good       bool
	EntryTime  time.Time
	ExitTime   time.Time
}

// Verdict returns the ledger verdict string.
func (c ClosedTrade) Verdict() string {
	if c.Good {
		return "good"
	}
	return "bad"
}

// InstrumentStatus is the per-direction mutable snapshot of quote,
// position, pending order and computed risk limits. The controller is
// its only owner.
type InstrumentStatus struct {
	Instrument model.Instrument

	Buy            float64
	Sell           float64
	Spread         float64
	PriceAvailable bool

	Position *model.Position
	Order    *model.Order

	AcquiredPrice float64
	AcquiredAt    time.Time
	StopLoss      float64
	TakeProfit    float64
	HasLimits     bool

	// trailWater is the high-water (Long) or low-water (Short) price
	// the trailing stop ratchets from.
	trailWater float64
	volume     float64
	lastATR    float64

	logger *slog.Logger
	params LimitParams
}

// NewInstrumentStatus creates an empty status for one direction.
func NewInstrumentStatus(logger *slog.Logger, inst model.Instrument, params LimitParams) *InstrumentStatus {
	return &InstrumentStatus{Instrument: inst, logger: logger, params: params}
}

// Refresh folds a fresh quote into the status. It returns a non-nil
// ClosedTrade exactly when a previously tracked position/order pair has
// disappeared, after which the status is reset to empty.
func (s *InstrumentStatus) Refresh(q model.Quote, atrValue float64, now time.Time) *ClosedTrade {
	if q.Spread > s.params.SpreadLimit {
		// Stale or illiquid book: keep the previous prices, touch nothing.
		s.PriceAvailable = false
		s.logger.Warn("spread over limit, prices unavailable",
			"instrument", s.Instrument, "spread", q.Spread, "limit", s.params.SpreadLimit)
		return nil
	}
	s.Buy, s.Sell, s.Spread = q.Buy, q.Sell, q.Spread
	s.PriceAvailable = true
	if atrValue > 0 {
		s.lastATR = atrValue
	}
	s.Position = q.Position
	s.Order = q.Order
	if q.Position != nil {
		s.volume = q.Position.Volume
	}

	hadEntry := s.AcquiredPrice > 0
	if q.Position == nil && q.Order == nil {
		if hadEntry {
			closed := &ClosedTrade{
				Instrument: s.Instrument,
				EntryPrice: s.AcquiredPrice,
				ExitPrice:  s.Sell,
				Volume:     s.volume,
				Good:       s.exitIsGood(s.Sell),
				EntryTime:  s.AcquiredAt,
				ExitTime:   now,
			}
			s.logger.Info("trade closed",
				"instrument", s.Instrument, "verdict", closed.Verdict(),
				"entry", closed.EntryPrice, "exit", closed.ExitPrice)
			s.reset()
			return closed
		}
		if s.HasLimits {
			// A pending order vanished without filling; its provisional
			// limits go with it. No trade happened, so no verdict.
			s.reset()
		}
		return nil
	}

	if q.Position != nil && !hadEntry {
		s.AcquiredPrice = s.Sell
		s.AcquiredAt = now
		s.trailWater = s.Sell
		s.computeLimits(atrValue)
	}
	if q.Position != nil && s.AcquiredPrice > 0 && !s.HasLimits {
		// ATR was not known at acquisition; fill the limits in as soon
		// as it is.
		s.computeLimits(atrValue)
	}
	if q.Position != nil && s.HasLimits {
		s.ratchetTrailing(atrValue, now)
	}
	return nil
}

// Resignal recomputes the limits from the current acquired price, used
// when a fresh signal re-confirms the open direction.
func (s *InstrumentStatus) Resignal(atrValue float64) {
	if s.AcquiredPrice > 0 {
		s.computeLimits(atrValue)
	}
}

// SetProvisionalLimits installs limits derived from a pending buy
// order's price, so the limit invariant holds before the fill lands.
func (s *InstrumentStatus) SetProvisionalLimits(orderPrice, atrValue float64) {
	stop, take, ok := LimitPrices(s.Instrument, orderPrice, atrValue, s.params)
	if !ok {
		return
	}
	s.StopLoss, s.TakeProfit = stop, take
	s.HasLimits = true
}

// LimitBreached reports whether the current sell price has crossed the
// stop-loss or take-profit boundary.
func (s *InstrumentStatus) LimitBreached() bool {
	if s.Position == nil || !s.HasLimits || !s.PriceAvailable {
		return false
	}
	if s.Instrument == model.Long {
		return s.Sell <= s.StopLoss || s.Sell >= s.TakeProfit
	}
	return s.Sell >= s.StopLoss || s.Sell <= s.TakeProfit
}

func (s *InstrumentStatus) computeLimits(atrValue float64) {
	stop, take, ok := LimitPrices(s.Instrument, s.AcquiredPrice, atrValue, s.params)
	if !ok {
		return
	}
	s.StopLoss, s.TakeProfit = stop, take
	s.HasLimits = true
}

func (s *InstrumentStatus) ratchetTrailing(atrValue float64, now time.Time) {
	if now.Sub(s.AcquiredAt) < s.params.TrailingDwell {
		return
	}
	if s.Instrument == model.Long {
		if s.Sell > s.trailWater {
			s.trailWater = s.Sell
		}
		trailing, _, ok := LimitPrices(model.Long, s.trailWater, atrValue, s.params)
		if ok && trailing > s.StopLoss {
			s.StopLoss = trailing
		}
		return
	}
	if s.Sell < s.trailWater {
		s.trailWater = s.Sell
	}
	trailing, _, ok := LimitPrices(model.Short, s.trailWater, atrValue, s.params)
	if ok && trailing < s.StopLoss {
		s.StopLoss = trailing
	}
}

func (s *InstrumentStatus) exitIsGood(exit float64) bool {
	if s.Instrument == model.Long {
		return exit >= s.AcquiredPrice
	}
	return exit <= s.AcquiredPrice
}

func (s *InstrumentStatus) reset() {
	s.AcquiredPrice = 0
	s.AcquiredAt = time.Time{}
	s.StopLoss, s.TakeProfit = 0, 0
	s.HasLimits = false
	s.trailWater = 0
	s.volume = 0
	s.Position, s.Order = nil, nil
}

// LimitPrices computes the ATR-scaled stop-loss and take-profit for an
// entry price. The scale is ATR/20, a volatility-normalized multiplier;
// the direction sign flips for Short. ok is false when ATR is unknown.
func LimitPrices(inst model.Instrument, entry, atrValue float64, p LimitParams) (stop, take float64, ok bool) {
	if atrValue <= 0 || entry <= 0 {
		return 0, 0, false
	}
	scale := atrValue / 20
	if inst == model.Long {
		stop = entry * (1 - (1-p.StopLossPct)*scale)
		take = entry * (1 + (p.TakeProfitPct-1)*scale)
	} else {
		stop = entry * (1 + (1-p.StopLossPct)*scale)
		take = entry * (1 - (p.TakeProfitPct-1)*scale)
	}
	return stop, take, true
}
