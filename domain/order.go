package domain

type OrderAction string

const (
	OrderAction_Buy  OrderAction = "BUY"
	OrderAction_Sell OrderAction = "SELL"
)

type MarketStatus string

const (
	MarketStatus_Open   MarketStatus = "OPEN"
	MarketStatus_Closed MarketStatus = "CLOSED"
	// MarketStatus_Disabled is an administrative suspension, set by an operator
	// rather than reported by the venue feed.
	MarketStatus_Disabled MarketStatus = "DISABLED"
)

type OrderStatus string

const (
	OrderStatus_Pending                     OrderStatus = "PENDING"
	OrderStatus_Active                      OrderStatus = "ACTIVE"
	OrderStatus_PartiallyFilled             OrderStatus = "PARTIALLY_FILLED"
	OrderStatus_Filled                      OrderStatus = "FILLED"
	OrderStatus_Cancelled                   OrderStatus = "CANCELLED"
	OrderStatus_CancelledAndPartiallyFilled OrderStatus = "CANCELLED_AND_PARTIALLY_FILLED"
	OrderStatus_Rejected                    OrderStatus = "REJECTED"
	OrderStatus_Expired                     OrderStatus = "EXPIRED"
)

// Order is either a LimitOrder or a MarketOrder.
type Order interface {
	Side() OrderAction
	order()
}

// LimitOrder is a resting order at a fixed price. The venue-issued ID is unique
// per venue. A limit order is owned by whichever order book price level
// currently holds it.
type LimitOrder struct {
	ID       string
	Symbol   string
	Action   OrderAction
	Price    Amount
	Quantity Amount
	PostOnly bool
}

func (o *LimitOrder) Side() OrderAction { return o.Action }
func (o *LimitOrder) order()            {}

// Volume is the base quantity the order contributes to its price level.
func (o *LimitOrder) Volume() Amount { return o.Quantity }

// MarketOrder executes immediately at the best available price and never rests
// in the book. IsBaseQuantity tells whether Quantity is denominated in the base
// or the quote asset.
type MarketOrder struct {
	Symbol         string
	Action         OrderAction
	Quantity       Amount
	IsBaseQuantity bool
}

func (o *MarketOrder) Side() OrderAction { return o.Action }
func (o *MarketOrder) order()            {}

// Ticker is a point-in-time summary of a market.
type Ticker struct {
	Timestamp    Timestamp
	Symbol       string
	BidPrice     Amount
	AskPrice     Amount
	CurrentPrice Amount
	Status       MarketStatus
}

// FullOrderDetails is the venue's view of a previously placed order.
type FullOrderDetails struct {
	ID             string
	Symbol         string
	Action         OrderAction
	Quantity       Amount
	QuantityFilled Amount
	LimitPrice     Amount
	Status         OrderStatus
	CreatedAt      Timestamp
}
