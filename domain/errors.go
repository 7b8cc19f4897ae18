package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMarketClosed gates every command while the market has not yet applied
	// its initial snapshot or the venue reports it closed. Callers may retry
	// once the status changes.
	ErrMarketClosed = errors.New("market closed")

	// ErrDuplicateOrder reports an add for an order id already resting at a
	// different price. The feed should have emitted a removal first.
	ErrDuplicateOrder = errors.New("order id already resting at a different price")
)

// MarketError is a command-path failure tagged with the venue it came from and
// a coarse code: the venue's error code, or the market status that rejected the
// command.
type MarketError struct {
	Market string
	Code   string
	Err    error
}

func (e *MarketError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code %s)", e.Market, e.Err, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Market, e.Err)
}

func (e *MarketError) Unwrap() error { return e.Err }

func NewMarketError(market string, err error) *MarketError {
	return &MarketError{Market: market, Err: err}
}
