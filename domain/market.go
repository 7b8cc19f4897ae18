package domain

import (
	"context"
	"sync"
)

// Market is the aggregate callers interact with: the live state of one symbol
// on one venue plus a gated command surface. Each instance owns its order book
// exclusively; only the market manager mutates it, driven by the feed.
type Market struct {
	name   string
	symbol string
	client MarketClient
	feed   MarketFeed

	mu           sync.RWMutex
	status       MarketStatus
	currentPrice Amount

	book *OrderBook
}

// NewMarket wires a market to its command executor and feed, and subscribes the
// reconciliation manager. The market reports CLOSED and fails every command
// until the feed delivers the initial order book snapshot.
func NewMarket(name, symbol string, client MarketClient, feed MarketFeed) *Market {
	m := &Market{
		name:   name,
		symbol: symbol,
		client: client,
		feed:   feed,
		status: MarketStatus_Closed,
		book:   NewOrderBook(),
	}
	feed.Subscribe(newMarketManager(m))
	return m
}

func (m *Market) Name() string   { return m.name }
func (m *Market) Symbol() string { return m.symbol }

func (m *Market) Status() MarketStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// CurrentPrice is the price of the last observed trade, zero before the first.
func (m *Market) CurrentPrice() Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentPrice
}

// BidPrice is the best resting buy price, zero while the side is empty.
func (m *Market) BidPrice() Amount {
	if bid := m.book.BestBid(); bid != nil {
		return bid.Price()
	}
	return Amount{}
}

// AskPrice is the best resting sell price, zero while the side is empty.
func (m *Market) AskPrice() Amount {
	if ask := m.book.BestAsk(); ask != nil {
		return ask.Price()
	}
	return Amount{}
}

// Spread is best ask minus best bid; ok is false while either side is empty.
func (m *Market) Spread() (Amount, bool) {
	return m.book.Spread()
}

// OrderBook exposes the live book for read access: depth iteration and best
// prices. Mutation stays with the market manager.
func (m *Market) OrderBook() *OrderBook {
	return m.book
}

// Ticker assembles a summary of the market's current state. Bid and ask come
// from a single consistent book read.
func (m *Market) Ticker(ts Timestamp) *Ticker {
	bid, ask := m.book.Top()
	t := &Ticker{Timestamp: ts, Symbol: m.symbol}
	if bid != nil {
		t.BidPrice = bid.Price()
	}
	if ask != nil {
		t.AskPrice = ask.Price()
	}
	m.mu.RLock()
	t.CurrentPrice = m.currentPrice
	t.Status = m.status
	m.mu.RUnlock()
	return t
}

// guard rejects commands unless the market is open. The error code carries the
// actual status, so a venue-closed market and an operator-disabled one stay
// distinguishable to callers.
func (m *Market) guard() error {
	status := m.Status()
	if status != MarketStatus_Open {
		return &MarketError{Market: m.name, Code: string(status), Err: ErrMarketClosed}
	}
	return nil
}

// GetTicker asks the venue for its ticker. Like every command it fails with
// ErrMarketClosed while the market is not open, before the executor is touched.
func (m *Market) GetTicker(ctx context.Context) (*Ticker, error) {
	if err := m.guard(); err != nil {
		return nil, err
	}
	return m.client.GetTicker(ctx)
}

// PlaceOrder submits a limit or market order and returns the venue-issued id.
func (m *Market) PlaceOrder(ctx context.Context, order Order) (string, error) {
	if err := m.guard(); err != nil {
		return "", err
	}
	return m.client.PlaceOrder(ctx, order)
}

func (m *Market) GetOrder(ctx context.Context, orderID string) (*FullOrderDetails, error) {
	if err := m.guard(); err != nil {
		return nil, err
	}
	return m.client.GetOrder(ctx, orderID)
}

// CancelOrder requests cancellation. A false result is not a failure: venues
// may confirm asynchronously through a later OrderBookItemRemovedEvent instead
// of in the response.
func (m *Market) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := m.guard(); err != nil {
		return false, err
	}
	return m.client.CancelOrder(ctx, orderID)
}

func (m *Market) SubscribeToFeed(subscriber MarketFeedSubscriber) {
	m.feed.Subscribe(subscriber)
}

func (m *Market) UnsubscribeFromFeed(subscriber MarketFeedSubscriber) {
	m.feed.Unsubscribe(subscriber)
}

func (m *Market) setStatus(status MarketStatus) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Market) setCurrentPrice(price Amount) {
	m.mu.Lock()
	m.currentPrice = price
	m.mu.Unlock()
}
