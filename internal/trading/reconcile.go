package trading

import (
	"context"
	"log/slog"
	"math"
	"time"

	"certtrader/internal/model"
)

// RefreshFunc re-reads the live status of one instrument.
type RefreshFunc func(ctx context.Context, inst model.Instrument) (*InstrumentStatus, error)

// Reconciler drives the live broker state toward a target state with a
// bounded retry loop: refresh, compare, apply at most one corrective
// action, pause, re-check. Exhausting the bound is logged, not fatal;
// the controller re-attempts on its next cycle.
type Reconciler struct {
	logger   *slog.Logger
	gateway  *Gateway
	refresh  RefreshFunc
	attempts int
	pause    time.Duration
	sleep    func(time.Duration)
}

// NewReconciler creates a driver with the given bound and pause
// (defaults 5 attempts, 10s).
func NewReconciler(logger *slog.Logger, gateway *Gateway, refresh RefreshFunc, attempts int, pause time.Duration) *Reconciler {
	if attempts <= 0 {
		attempts = 5
	}
	if pause <= 0 {
		pause = 10 * time.Second
	}
	return &Reconciler{
		logger:   logger,
		gateway:  gateway,
		refresh:  refresh,
		attempts: attempts,
		pause:    pause,
		sleep:    time.Sleep,
	}
}

// Buy drives the instrument toward holding a position.
func (r *Reconciler) Buy(ctx context.Context, inst model.Instrument) error {
	for attempt := 1; attempt <= r.attempts; attempt++ {
		st, err := r.refresh(ctx, inst)
		if err != nil {
			return err
		}
		if st.Position != nil {
			r.logger.Info("buy reconciled", "instrument", inst, "attempt", attempt)
			return nil
		}
		if !st.PriceAvailable {
			r.sleep(r.pause)
			continue
		}
		// One corrective action per iteration.
		switch {
		case st.Order == nil:
			if err := r.gateway.Place(ctx, model.SignalBuy, inst, st, 0); err != nil {
				return err
			}
			st.SetProvisionalLimits(st.Buy, latestATR(st))
		case st.Order.Side == model.SignalSell:
			// A leftover sell order blocks the buy.
			if err := r.gateway.Delete(ctx); err != nil {
				return err
			}
		case mispriced(st.Order.Price, st.Buy):
			if err := r.gateway.Update(ctx, model.SignalBuy, inst, st, 0); err != nil {
				return err
			}
		}
		r.sleep(r.pause)
	}
	r.logger.Warn("buy reconciliation exhausted", "instrument", inst, "attempts", r.attempts)
	return nil
}

// Sell drives the instrument toward holding neither position nor order.
// A non-zero customPrice overrides the quote's sell price.
func (r *Reconciler) Sell(ctx context.Context, inst model.Instrument, customPrice float64) error {
	for attempt := 1; attempt <= r.attempts; attempt++ {
		st, err := r.refresh(ctx, inst)
		if err != nil {
			return err
		}
		if st.Position == nil && st.Order == nil {
			r.logger.Info("sell reconciled", "instrument", inst, "attempt", attempt)
			return nil
		}
		if !st.PriceAvailable {
			r.sleep(r.pause)
			continue
		}
		desired := customPrice
		if desired == 0 {
			desired = st.Sell
		}
		switch {
		case st.Order != nil && st.Order.Side == model.SignalBuy:
			// An unfilled buy order with nothing behind it is orphaned.
			if err := r.gateway.Delete(ctx); err != nil {
				return err
			}
		case st.Position != nil && st.Order == nil:
			if err := r.gateway.Place(ctx, model.SignalSell, inst, st, customPrice); err != nil {
				return err
			}
		case st.Order != nil && mispriced(st.Order.Price, desired):
			if err := r.gateway.Update(ctx, model.SignalSell, inst, st, customPrice); err != nil {
				return err
			}
		}
		r.sleep(r.pause)
	}
	r.logger.Warn("sell reconciliation exhausted", "instrument", inst, "attempts", r.attempts)
	return nil
}

func mispriced(current, desired float64) bool {
	return desired > 0 && math.Abs(current-desired) > 1e-9
}

// latestATR pulls the ATR the status was last refreshed with; provisional
// limits tolerate a zero here and get recomputed at fill detection.
func latestATR(st *InstrumentStatus) float64 {
	return st.lastATR
}
