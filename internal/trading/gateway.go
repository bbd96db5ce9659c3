package trading

import (
	"context"
	"log/slog"
	"math"

	"certtrader/internal/broker"
	"certtrader/internal/model"
)

// Gateway places, updates and cancels brokerage orders for the two
// certificate directions. It is a pure side-effecting adapter; every
// error is propagated to the caller, which owns retrying.
type Gateway struct {
	logger        *slog.Logger
	session       broker.Session
	account       string
	budget        float64
	instrumentIDs map[model.Instrument]string
}

// NewGateway creates an order gateway bound to one brokerage session.
func NewGateway(logger *slog.Logger, session broker.Session, account string, budget float64, instrumentIDs map[model.Instrument]string) *Gateway {
	return &Gateway{
		logger:        logger,
		session:       session,
		account:       account,
		budget:        budget,
		instrumentIDs: instrumentIDs,
	}
}

// Place submits a new order for the instrument. Buy volume is sized
// from the budget; sell volume is the open position's volume.
func (g *Gateway) Place(ctx context.Context, sig model.Signal, inst model.Instrument, st *InstrumentStatus, customPrice float64) error {
	price := customPrice
	var volume float64
	if sig == model.SignalBuy {
		if price == 0 {
			price = st.Buy
		}
		if price <= 0 {
			return ErrNoQuote
		}
		volume = math.Floor(g.budget / price)
	} else {
		if price == 0 {
			price = st.Sell
		}
		if st.Position == nil {
			return ErrNoPosition
		}
		volume = st.Position.Volume
	}
	g.logger.Info("placing order",
		"side", sig, "instrument", inst, "price", price, "volume", volume)
	return g.session.PlaceOrder(ctx, g.instrumentIDs[inst], sig, price, volume)
}

// Update reprices the instrument's pending order.
func (g *Gateway) Update(ctx context.Context, sig model.Signal, inst model.Instrument, st *InstrumentStatus, customPrice float64) error {
	if st.Order == nil {
		return ErrNoOrder
	}
	price := customPrice
	if price == 0 {
		if sig == model.SignalBuy {
			price = st.Buy
		} else {
			price = st.Sell
		}
	}
	g.logger.Info("updating order",
		"side", sig, "instrument", inst, "orderID", st.Order.ID, "price", price)
	return g.session.UpdateOrder(ctx, g.instrumentIDs[inst], st.Order.ID, price)
}

// Delete cancels all pending orders for the trading account.
func (g *Gateway) Delete(ctx context.Context) error {
	g.logger.Info("cancelling all pending orders", "account", g.account)
	return g.session.DeleteOrders(ctx, g.account)
}
