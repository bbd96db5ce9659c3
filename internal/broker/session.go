package broker

import (
	"context"

	"certtrader/internal/model"
)

// Session is the brokerage gateway. It is exclusively owned by one
// caller at a time; on a transport failure the session is discarded and
// a fresh one established.
type Session interface {
	// GetQuote returns the current market snapshot for a certificate,
	// including any open position and pending order.
	GetQuote(ctx context.Context, instrumentID string) (model.Quote, error)

	// PlaceOrder submits a new order for the instrument.
	PlaceOrder(ctx context.Context, instrumentID string, side model.Signal, price, volume float64) error

	// UpdateOrder reprices an existing pending order.
	UpdateOrder(ctx context.Context, instrumentID, orderID string, price float64) error

	// DeleteOrders cancels every pending order on the account.
	DeleteOrders(ctx context.Context, account string) error

	// GetPortfolio returns the account's buying power and own capital.
	GetPortfolio(ctx context.Context) (model.Portfolio, error)

	// Close releases the session's transport resources.
	Close() error
}
