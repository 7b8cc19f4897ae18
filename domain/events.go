package domain

// MarketEvent is the tagged union of everything a market feed publishes.
// Handlers type-switch over the concrete variants, which keeps the coverage of
// all event kinds visible at compile time.
type MarketEvent interface {
	Meta() EventMeta
	marketEvent()
}

// EventMeta is carried by every event variant.
type EventMeta struct {
	Timestamp Timestamp
	Symbol    string
}

func (m EventMeta) Meta() EventMeta { return m }
func (m EventMeta) marketEvent()    {}

// TickerEvent is a summary tick, synthesized by the market manager after each
// trade so subscribers need not track the book themselves.
type TickerEvent struct {
	EventMeta
	Ticker Ticker
}

// OrderBookInitEvent is the full snapshot delivered once on (re)connect. Every
// incremental event published after it applies against this state.
type OrderBookInitEvent struct {
	EventMeta
	Status MarketStatus
	Orders []*LimitOrder
}

// OrderBookItemAddedEvent reports a new resting order.
type OrderBookItemAddedEvent struct {
	EventMeta
	Order *LimitOrder
}

// OrderBookItemRemovedEvent reports that an order left the book, whether
// cancelled or fully consumed.
type OrderBookItemRemovedEvent struct {
	EventMeta
	OrderID string
}

// TradeEvent reports an execution. The maker side is the resting order that was
// matched; the taker side never rested in the book.
type TradeEvent struct {
	EventMeta
	BaseAmount    Amount
	CounterAmount Amount
	MakerOrderID  string
	TakerOrderID  string
}

// MarketStatusEvent reports a feed-side status change.
type MarketStatusEvent struct {
	EventMeta
	Status MarketStatus
}
