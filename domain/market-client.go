package domain

import "context"

// MarketClient executes commands against the venue on behalf of one market.
// Implementations own authentication, signing, rate limiting and transport, and
// report failures as *MarketError.
type MarketClient interface {
	Connect(ctx context.Context) error
	Close() error
	GetTicker(ctx context.Context) (*Ticker, error)
	PlaceOrder(ctx context.Context, order Order) (string, error)
	GetOrder(ctx context.Context, orderID string) (*FullOrderDetails, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
}
