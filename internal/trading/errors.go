package trading

import "errors"

// Business-rule violations: the offending action is skipped and the
// run's error counter incremented, never aborting the run.
var (
	ErrNoQuote    = errors.New("no usable quote price")
	ErrNoPosition = errors.New("no open position to sell")
	ErrNoOrder    = errors.New("no pending order to update")
)
