package valr

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spooky-finn/go-market-tracker/domain"
)

const (
	msgTypeOrderBookSnapshot = "FULL_ORDERBOOK_SNAPSHOT"
	msgTypeOrderBookUpdate   = "FULL_ORDERBOOK_UPDATE"
	msgTypeNewTrade          = "NEW_TRADE"
	msgTypeStatusUpdate      = "MARKET_STATUS_UPDATE"
	msgTypeAuthenticated     = "AUTHENTICATED"
	msgTypeSubscribed        = "SUBSCRIBED"
	msgTypePong              = "PONG"
)

// ValrFeed turns VALR's trade stream into the market event taxonomy.
type ValrFeed struct {
	domain.FeedDispatcher

	symbol *domain.MarketSymbol
	pair   string
	client *ValrStreamClient
}

func NewValrFeed(symbol *domain.MarketSymbol, apiKey, apiSecret string) *ValrFeed {
	pair := symbol.Pair("")
	subscriptions := []valrSubscription{
		{Event: msgTypeOrderBookSnapshot, Pairs: []string{pair}},
		{Event: msgTypeOrderBookUpdate, Pairs: []string{pair}},
		{Event: msgTypeNewTrade, Pairs: []string{pair}},
		{Event: msgTypeStatusUpdate, Pairs: []string{pair}},
	}
	return &ValrFeed{
		symbol: symbol,
		pair:   pair,
		client: NewValrStreamClient(defaultStreamURL, apiKey, apiSecret, subscriptions),
	}
}

func (f *ValrFeed) Connect() error {
	if err := f.client.Connect(); err != nil {
		return err
	}
	go f.dispatch()
	return nil
}

func (f *ValrFeed) Close() error {
	err := f.client.Close()
	f.CloseSubscribers()
	return err
}

func (f *ValrFeed) dispatch() {
	for msg := range f.client.Messages() {
		event, err := f.parseMessage(msg)
		if err != nil {
			logger.Warnf("drop valr message: %v", err)
			continue
		}
		if event != nil {
			f.Publish(event)
		}
	}
}

type wireMessage struct {
	Type               string          `json:"type"`
	CurrencyPairSymbol string          `json:"currencyPairSymbol"`
	Data               json.RawMessage `json:"data"`
}

type wireOrder struct {
	OrderID  string `json:"orderId"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type wireBookSnapshot struct {
	Bids []wireOrder `json:"Bids"`
	Asks []wireOrder `json:"Asks"`
}

type wireBookUpdate struct {
	Changes []wireOrder `json:"Changes"`
}

type wireTrade struct {
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	TradedAt     string `json:"tradedAt"`
	MakerOrderID string `json:"makerOrderId"`
	TakerOrderID string `json:"takerOrderId"`
}

type wireStatus struct {
	MarketStatus string `json:"marketStatus"`
}

// parseMessage maps one raw frame to at most one market event. Housekeeping
// frames (pong, subscribe acks) and other pairs' frames map to nil.
func (f *ValrFeed) parseMessage(raw []byte) (domain.MarketEvent, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if msg.CurrencyPairSymbol != "" && msg.CurrencyPairSymbol != f.pair {
		return nil, nil
	}

	meta := domain.EventMeta{Timestamp: domain.Now(), Symbol: f.symbol.String()}

	switch msg.Type {
	case msgTypeOrderBookSnapshot:
		var snapshot wireBookSnapshot
		if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		orders := make([]*domain.LimitOrder, 0, len(snapshot.Bids)+len(snapshot.Asks))
		for _, wo := range append(snapshot.Bids, snapshot.Asks...) {
			order, err := f.toLimitOrder(wo)
			if err != nil {
				return nil, err
			}
			orders = append(orders, order)
		}
		// The stream only delivers snapshots for live markets.
		return &domain.OrderBookInitEvent{
			EventMeta: meta,
			Status:    domain.MarketStatus_Open,
			Orders:    orders,
		}, nil

	case msgTypeOrderBookUpdate:
		var update wireBookUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			return nil, fmt.Errorf("unmarshal update: %w", err)
		}
		if len(update.Changes) != 1 {
			return nil, fmt.Errorf("expected a single change per update, got %d", len(update.Changes))
		}
		change := update.Changes[0]
		quantity, err := domain.NewAmount(change.Quantity)
		if err != nil {
			return nil, fmt.Errorf("parse change quantity %q: %w", change.Quantity, err)
		}
		// Zero quantity means the order left the book.
		if quantity.IsZero() {
			return &domain.OrderBookItemRemovedEvent{EventMeta: meta, OrderID: change.OrderID}, nil
		}
		order, err := f.toLimitOrder(change)
		if err != nil {
			return nil, err
		}
		return &domain.OrderBookItemAddedEvent{EventMeta: meta, Order: order}, nil

	case msgTypeNewTrade:
		var trade wireTrade
		if err := json.Unmarshal(msg.Data, &trade); err != nil {
			return nil, fmt.Errorf("unmarshal trade: %w", err)
		}
		price, err := domain.NewAmount(trade.Price)
		if err != nil {
			return nil, fmt.Errorf("parse trade price %q: %w", trade.Price, err)
		}
		quantity, err := domain.NewAmount(trade.Quantity)
		if err != nil {
			return nil, fmt.Errorf("parse trade quantity %q: %w", trade.Quantity, err)
		}
		if tradedAt, err := time.Parse(time.RFC3339, trade.TradedAt); err == nil {
			meta.Timestamp = tradedAt.UTC()
		}
		return &domain.TradeEvent{
			EventMeta:     meta,
			BaseAmount:    quantity,
			CounterAmount: price.Mul(quantity),
			MakerOrderID:  trade.MakerOrderID,
			TakerOrderID:  trade.TakerOrderID,
		}, nil

	case msgTypeStatusUpdate:
		var status wireStatus
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			return nil, fmt.Errorf("unmarshal status update: %w", err)
		}
		return &domain.MarketStatusEvent{EventMeta: meta, Status: toMarketStatus(status.MarketStatus)}, nil

	case msgTypeAuthenticated, msgTypeSubscribed, msgTypePong, "":
		return nil, nil

	default:
		logger.Debugf("ignoring valr message type %q", msg.Type)
		return nil, nil
	}
}

func (f *ValrFeed) toLimitOrder(wo wireOrder) (*domain.LimitOrder, error) {
	price, err := domain.NewAmount(wo.Price)
	if err != nil {
		return nil, fmt.Errorf("parse order price %q: %w", wo.Price, err)
	}
	quantity, err := domain.NewAmount(wo.Quantity)
	if err != nil {
		return nil, fmt.Errorf("parse order quantity %q: %w", wo.Quantity, err)
	}
	return &domain.LimitOrder{
		ID:       wo.OrderID,
		Symbol:   f.symbol.String(),
		Action:   toOrderAction(wo.Side),
		Price:    price,
		Quantity: quantity,
	}, nil
}

func toMarketStatus(s string) domain.MarketStatus {
	switch strings.ToUpper(s) {
	case "ACTIVE", "OPEN":
		return domain.MarketStatus_Open
	case "DISABLED":
		return domain.MarketStatus_Disabled
	default:
		return domain.MarketStatus_Closed
	}
}
