package broker

import (
	"errors"
	"fmt"
)

// TransportError marks connection-level brokerage failures (timeouts,
// resets, dropped streams). Callers treat these differently from
// business errors: the session is discarded and the run retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("broker transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
