package domain

import "github.com/sirupsen/logrus"

// marketManager applies the feed's event stream to the market state. It is the
// single writer of the order book, the status and the current price.
//
// Until the first OrderBookInitEvent lands the manager is unsynced and drops
// incremental updates: applying deltas with no snapshot underneath produces a
// book that looks valid but is wrong. A later snapshot, e.g. after a reconnect,
// resynchronizes from scratch.
type marketManager struct {
	market *Market
	logger *logrus.Entry
	synced bool
}

func newMarketManager(market *Market) *marketManager {
	return &marketManager{
		market: market,
		logger: logrus.WithFields(logrus.Fields{
			"component": "market-manager",
			"market":    market.Name(),
			"symbol":    market.Symbol(),
		}),
	}
}

// OnMarketEvent dispatches one event per variant. Events referencing state the
// book never saw are tolerated as no-ops; nothing here may escape into the feed
// dispatch loop, one bad event must not stop the book from tracking the market.
func (mm *marketManager) OnMarketEvent(event MarketEvent) {
	switch e := event.(type) {
	case *OrderBookInitEvent:
		mm.onOrderBookInit(e)
	case *OrderBookItemAddedEvent:
		mm.onOrderBookItemAdded(e)
	case *OrderBookItemRemovedEvent:
		mm.market.book.RemoveOrder(e.OrderID)
	case *TradeEvent:
		mm.onTrade(e)
	case *MarketStatusEvent:
		mm.market.setStatus(e.Status)
	case *TickerEvent:
		// Synthesized by this manager; nothing to reconcile.
	default:
		mm.logger.Warnf("unhandled event %T", event)
	}
}

func (mm *marketManager) onOrderBookInit(e *OrderBookInitEvent) {
	if err := mm.market.book.Reinit(e.Orders); err != nil {
		mm.logger.Warnf("snapshot contained inconsistent orders: %s", err)
	}
	mm.market.setStatus(e.Status)
	mm.synced = true
	mm.logger.Infof("order book synced with %d orders, status %s", len(e.Orders), e.Status)
}

func (mm *marketManager) onOrderBookItemAdded(e *OrderBookItemAddedEvent) {
	if !mm.synced {
		mm.logger.Debug("dropping order book delta received before first snapshot")
		return
	}
	if err := mm.market.book.AddOrder(e.Order); err != nil {
		mm.logger.Warnf("dropping add: %s", err)
	}
}

func (mm *marketManager) onTrade(e *TradeEvent) {
	if e.BaseAmount.IsZero() {
		mm.logger.Warnf("ignoring trade %s/%s with zero base amount", e.MakerOrderID, e.TakerOrderID)
		return
	}
	mm.market.setCurrentPrice(e.CounterAmount.Div(e.BaseAmount))
	mm.market.book.RemoveOrder(e.MakerOrderID)

	// Republish the new state of the world for subscribers that only want
	// summary ticks.
	mm.market.feed.Publish(&TickerEvent{
		EventMeta: EventMeta{Timestamp: e.Timestamp, Symbol: e.Symbol},
		Ticker:    *mm.market.Ticker(e.Timestamp),
	})
}
