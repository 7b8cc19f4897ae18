package domain_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/go-market-tracker/domain"
)

type recordingClient struct {
	mu    sync.Mutex
	calls []string
}

func (c *recordingClient) record(name string) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
}

func (c *recordingClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *recordingClient) Connect(ctx context.Context) error { return nil }
func (c *recordingClient) Close() error                      { return nil }

func (c *recordingClient) GetTicker(ctx context.Context) (*domain.Ticker, error) {
	c.record("GetTicker")
	return &domain.Ticker{Symbol: "btc_zar", CurrentPrice: domain.MustAmount("100")}, nil
}

func (c *recordingClient) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	c.record("PlaceOrder")
	return "venue-order-1", nil
}

func (c *recordingClient) GetOrder(ctx context.Context, orderID string) (*domain.FullOrderDetails, error) {
	c.record("GetOrder")
	return &domain.FullOrderDetails{ID: orderID, Status: domain.OrderStatus_Active}, nil
}

func (c *recordingClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	c.record("CancelOrder")
	return false, nil
}

func limitOrder(id string, action domain.OrderAction, price, quantity string) *domain.LimitOrder {
	return &domain.LimitOrder{
		ID:       id,
		Symbol:   "btc_zar",
		Action:   action,
		Price:    domain.MustAmount(price),
		Quantity: domain.MustAmount(quantity),
	}
}

func eventMeta() domain.EventMeta {
	return domain.EventMeta{Timestamp: domain.Now(), Symbol: "btc_zar"}
}

func initEvent(orders ...*domain.LimitOrder) *domain.OrderBookInitEvent {
	return &domain.OrderBookInitEvent{
		EventMeta: eventMeta(),
		Status:    domain.MarketStatus_Open,
		Orders:    orders,
	}
}

func newTestMarket(t *testing.T) (*domain.Market, *recordingClient, *stubFeed) {
	t.Helper()
	client := &recordingClient{}
	feed := &stubFeed{}
	t.Cleanup(func() { _ = feed.Close() })
	market := domain.NewMarket("valr", "btc_zar", client, feed)
	return market, client, feed
}

func waitSynced(t *testing.T, market *domain.Market) {
	t.Helper()
	require.Eventually(t, func() bool {
		return market.Status() == domain.MarketStatus_Open
	}, 2*time.Second, 5*time.Millisecond, "market should sync after the snapshot")
}

func TestMarket_CommandsFailWhileClosed(t *testing.T) {
	market, client, _ := newTestMarket(t)
	ctx := context.Background()

	require.Equal(t, domain.MarketStatus_Closed, market.Status(), "a new market starts closed")

	_, err := market.GetTicker(ctx)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	_, err = market.PlaceOrder(ctx, &domain.MarketOrder{
		Symbol:   "btc_zar",
		Action:   domain.OrderAction_Buy,
		Quantity: domain.MustAmount("0.5"),
	})
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	_, err = market.GetOrder(ctx, "id1")
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	_, err = market.CancelOrder(ctx, "id1")
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	var marketErr *domain.MarketError
	require.ErrorAs(t, err, &marketErr)
	assert.Equal(t, "valr", marketErr.Market)
	assert.Equal(t, string(domain.MarketStatus_Closed), marketErr.Code)

	assert.Zero(t, client.callCount(), "the executor must never be called while closed")
}

func TestMarket_GuardErrorCarriesActualStatus(t *testing.T) {
	market, client, feed := newTestMarket(t)
	ctx := context.Background()

	feed.Publish(initEvent(limitOrder("id1", domain.OrderAction_Buy, "100.00", "2")))
	waitSynced(t, market)

	feed.Publish(&domain.MarketStatusEvent{EventMeta: eventMeta(), Status: domain.MarketStatus_Disabled})
	require.Eventually(t, func() bool {
		return market.Status() == domain.MarketStatus_Disabled
	}, 2*time.Second, 5*time.Millisecond)

	_, err := market.GetTicker(ctx)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	var marketErr *domain.MarketError
	require.ErrorAs(t, err, &marketErr)
	assert.Equal(t, string(domain.MarketStatus_Disabled), marketErr.Code,
		"a suspended market must be tellable apart from a closed one")
	assert.Zero(t, client.callCount())
}

func TestMarket_SnapshotBringsMarketUp(t *testing.T) {
	market, _, feed := newTestMarket(t)

	feed.Publish(initEvent(
		limitOrder("id1", domain.OrderAction_Buy, "100.00", "2"),
		limitOrder("id2", domain.OrderAction_Sell, "101.00", "3"),
	))
	waitSynced(t, market)

	assert.True(t, market.BidPrice().Equal(domain.MustAmount("100.00")))
	assert.True(t, market.AskPrice().Equal(domain.MustAmount("101.00")))

	spread, ok := market.Spread()
	require.True(t, ok)
	assert.True(t, spread.Equal(domain.MustAmount("1.00")))
}

func TestMarket_AddedOrderImprovesBestBid(t *testing.T) {
	market, _, feed := newTestMarket(t)

	feed.Publish(initEvent(
		limitOrder("id1", domain.OrderAction_Buy, "100.00", "2"),
		limitOrder("id2", domain.OrderAction_Sell, "101.00", "3"),
	))
	waitSynced(t, market)

	feed.Publish(&domain.OrderBookItemAddedEvent{
		EventMeta: eventMeta(),
		Order:     limitOrder("id3", domain.OrderAction_Buy, "100.50", "1"),
	})

	require.Eventually(t, func() bool {
		return market.BidPrice().Equal(domain.MustAmount("100.50"))
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMarket_TradeUpdatesPriceAndPublishesTicker(t *testing.T) {
	market, _, feed := newTestMarket(t)
	ticks := &recordingSubscriber{}
	market.SubscribeToFeed(ticks)

	feed.Publish(initEvent(
		limitOrder("id1", domain.OrderAction_Buy, "100.00", "2"),
		limitOrder("id2", domain.OrderAction_Sell, "101.00", "3"),
	))
	waitSynced(t, market)
	feed.Publish(&domain.OrderBookItemAddedEvent{
		EventMeta: eventMeta(),
		Order:     limitOrder("id3", domain.OrderAction_Buy, "100.50", "1"),
	})

	feed.Publish(&domain.TradeEvent{
		EventMeta:     eventMeta(),
		BaseAmount:    domain.MustAmount("1"),
		CounterAmount: domain.MustAmount("100.50"),
		MakerOrderID:  "id3",
		TakerOrderID:  "idX",
	})

	require.Eventually(t, func() bool {
		return market.CurrentPrice().Equal(domain.MustAmount("100.50"))
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, market.OrderBook().Contains("id3"), "the maker order is consumed by the trade")

	require.Eventually(t, func() bool {
		for _, event := range ticks.snapshot() {
			if tick, ok := event.(*domain.TickerEvent); ok {
				return tick.Ticker.CurrentPrice.Equal(domain.MustAmount("100.50")) &&
					tick.Ticker.Status == domain.MarketStatus_Open
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "a ticker update should be republished after the trade")
}

func TestMarket_DeltasBeforeSnapshotAreDropped(t *testing.T) {
	market, _, feed := newTestMarket(t)

	feed.Publish(&domain.OrderBookItemAddedEvent{
		EventMeta: eventMeta(),
		Order:     limitOrder("early", domain.OrderAction_Buy, "90.00", "1"),
	})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.MarketStatus_Closed, market.Status())
	assert.False(t, market.OrderBook().Contains("early"), "deltas before the snapshot are unsafe to apply")

	feed.Publish(initEvent(limitOrder("id1", domain.OrderAction_Buy, "100.00", "2")))
	waitSynced(t, market)
	assert.True(t, market.OrderBook().Contains("id1"))
}

func TestMarket_SecondSnapshotResyncs(t *testing.T) {
	market, _, feed := newTestMarket(t)

	feed.Publish(initEvent(limitOrder("old", domain.OrderAction_Buy, "100.00", "2")))
	waitSynced(t, market)

	feed.Publish(initEvent(limitOrder("new", domain.OrderAction_Buy, "102.00", "1")))

	require.Eventually(t, func() bool {
		return market.OrderBook().Contains("new") && !market.OrderBook().Contains("old")
	}, 2*time.Second, 5*time.Millisecond, "a repeated snapshot is a full resync")
	assert.True(t, market.BidPrice().Equal(domain.MustAmount("102.00")))
}

func TestMarket_StatusEventGatesCommands(t *testing.T) {
	market, client, feed := newTestMarket(t)
	ctx := context.Background()

	feed.Publish(initEvent(limitOrder("id1", domain.OrderAction_Buy, "100.00", "2")))
	waitSynced(t, market)

	_, err := market.GetTicker(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, client.callCount())

	feed.Publish(&domain.MarketStatusEvent{EventMeta: eventMeta(), Status: domain.MarketStatus_Closed})
	require.Eventually(t, func() bool {
		return market.Status() == domain.MarketStatus_Closed
	}, 2*time.Second, 5*time.Millisecond)

	_, err = market.GetTicker(ctx)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
	assert.Equal(t, 1, client.callCount(), "no executor call once the feed closed the market")
}

func TestMarket_CommandsDelegateToExecutor(t *testing.T) {
	market, client, feed := newTestMarket(t)
	ctx := context.Background()

	feed.Publish(initEvent(limitOrder("id1", domain.OrderAction_Buy, "100.00", "2")))
	waitSynced(t, market)

	orderID, err := market.PlaceOrder(ctx, limitOrder("", domain.OrderAction_Sell, "105.00", "1"))
	require.NoError(t, err)
	assert.Equal(t, "venue-order-1", orderID)

	details, err := market.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, orderID, details.ID)

	cancelled, err := market.CancelOrder(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, cancelled, "cancellation may be confirmed asynchronously via the feed")

	assert.Equal(t, []string{"PlaceOrder", "GetOrder", "CancelOrder"}, client.calls)
}

func TestMarket_TickerIsConsistentComposite(t *testing.T) {
	market, _, feed := newTestMarket(t)

	feed.Publish(initEvent(
		limitOrder("id1", domain.OrderAction_Buy, "100.00", "2"),
		limitOrder("id2", domain.OrderAction_Sell, "101.00", "3"),
	))
	waitSynced(t, market)

	ticker := market.Ticker(domain.Now())
	assert.Equal(t, "btc_zar", ticker.Symbol)
	assert.True(t, ticker.BidPrice.Equal(domain.MustAmount("100.00")))
	assert.True(t, ticker.AskPrice.Equal(domain.MustAmount("101.00")))
	assert.Equal(t, domain.MarketStatus_Open, ticker.Status)
}
