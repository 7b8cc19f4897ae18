package kucoin

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spooky-finn/go-market-tracker/domain"
)

// errSequenceGap reports a hole in the level2 update stream. The book can no
// longer be trusted and must be rebuilt from a fresh snapshot.
var errSequenceGap = errors.New("sequence gap in level2 stream")

// KucoinFeed turns Kucoin's level2 and match streams into the market event
// taxonomy.
//
// Kucoin aggregates the book by price, so there is no per-order granularity on
// the wire. Each price level is modelled as a single resting order whose id is
// derived from side and price: a level size change arrives as an add that
// overwrites the level, a zero size as a removal.
type KucoinFeed struct {
	domain.FeedDispatcher

	symbol  *domain.MarketSymbol
	pair    string
	syncAPI *KucoinSyncAPI
	client  *KucoinStreamClient

	lastSequence int64
}

func NewKucoinFeed(symbol *domain.MarketSymbol, syncAPI *KucoinSyncAPI) *KucoinFeed {
	pair := symbol.Pair("-")
	topics := []string{
		fmt.Sprintf("/market/level2:%s", pair),
		fmt.Sprintf("/market/match:%s", pair),
	}
	return &KucoinFeed{
		symbol:  symbol,
		pair:    pair,
		syncAPI: syncAPI,
		client:  NewKucoinStreamClient(syncAPI, topics),
	}
}

func (f *KucoinFeed) Connect() error {
	if err := f.client.Connect(); err != nil {
		return err
	}
	if err := f.resync(); err != nil {
		return err
	}
	go f.dispatch()
	return nil
}

func (f *KucoinFeed) Close() error {
	err := f.client.Close()
	f.CloseSubscribers()
	return err
}

// resync rebuilds subscriber state from a REST snapshot. Updates already
// queued on the stream that predate the snapshot are dropped by the sequence
// filter in parseMessage.
func (f *KucoinFeed) resync() error {
	snapshot, err := f.syncAPI.orderBookSnapshot()
	if err != nil {
		return err
	}
	sequence, err := strconv.ParseInt(snapshot.Sequence, 10, 64)
	if err != nil {
		return fmt.Errorf("parse snapshot sequence %q: %w", snapshot.Sequence, err)
	}

	orders := make([]*domain.LimitOrder, 0, len(snapshot.Bids)+len(snapshot.Asks))
	for _, level := range snapshot.Bids {
		order, err := f.toLevelOrder(domain.OrderAction_Buy, level[0], level[1])
		if err != nil {
			return err
		}
		orders = append(orders, order)
	}
	for _, level := range snapshot.Asks {
		order, err := f.toLevelOrder(domain.OrderAction_Sell, level[0], level[1])
		if err != nil {
			return err
		}
		orders = append(orders, order)
	}

	f.lastSequence = sequence
	f.Publish(&domain.OrderBookInitEvent{
		EventMeta: domain.EventMeta{Timestamp: time.UnixMilli(snapshot.Time).UTC(), Symbol: f.symbol.String()},
		Status:    domain.MarketStatus_Open,
		Orders:    orders,
	})
	return nil
}

func (f *KucoinFeed) dispatch() {
	for msg := range f.client.Messages() {
		events, err := f.parseMessage(msg)
		if errors.Is(err, errSequenceGap) {
			logger.Warn("level2 sequence gap, resyncing from snapshot")
			if err := f.resync(); err != nil {
				logger.Errorf("resync after sequence gap: %v", err)
			}
			continue
		}
		if err != nil {
			logger.Warnf("drop kucoin message: %v", err)
			continue
		}
		for _, event := range events {
			f.Publish(event)
		}
	}
}

type wireEnvelope struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

type wireLevel2Update struct {
	SequenceStart int64  `json:"sequenceStart"`
	SequenceEnd   int64  `json:"sequenceEnd"`
	Symbol        string `json:"symbol"`
	TimeMs        int64  `json:"time"`
	Changes       struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
	} `json:"changes"`
}

type wireMatch struct {
	Price        string `json:"price"`
	Size         string `json:"size"`
	MakerOrderID string `json:"makerOrderId"`
	TakerOrderID string `json:"takerOrderId"`
	TimeNs       string `json:"time"`
}

func (f *KucoinFeed) parseMessage(raw []byte) ([]domain.MarketEvent, error) {
	var envelope wireEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if envelope.Type != "message" {
		// welcome, ack and pong frames
		return nil, nil
	}

	switch envelope.Subject {
	case "trade.l2update":
		return f.parseLevel2Update(envelope.Data)
	case "trade.l3match", "trade.match":
		return f.parseMatch(envelope.Data)
	default:
		logger.Debugf("ignoring kucoin subject %q", envelope.Subject)
		return nil, nil
	}
}

func (f *KucoinFeed) parseLevel2Update(data json.RawMessage) ([]domain.MarketEvent, error) {
	var update wireLevel2Update
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("unmarshal l2update: %w", err)
	}
	if update.SequenceEnd <= f.lastSequence {
		// stale, already covered by the snapshot
		return nil, nil
	}
	if update.SequenceStart > f.lastSequence+1 {
		return nil, errSequenceGap
	}
	f.lastSequence = update.SequenceEnd

	meta := domain.EventMeta{Timestamp: time.UnixMilli(update.TimeMs).UTC(), Symbol: f.symbol.String()}

	var events []domain.MarketEvent
	appendSide := func(action domain.OrderAction, levels [][]string) error {
		for _, level := range levels {
			if len(level) < 2 || level[0] == "" || level[0] == "0" {
				// a zero price marks a no-op entry
				continue
			}
			size, err := domain.NewAmount(level[1])
			if err != nil {
				return fmt.Errorf("parse level size %q: %w", level[1], err)
			}
			if size.IsZero() {
				price, err := domain.NewAmount(level[0])
				if err != nil {
					return fmt.Errorf("parse level price %q: %w", level[0], err)
				}
				events = append(events, &domain.OrderBookItemRemovedEvent{
					EventMeta: meta,
					OrderID:   levelOrderID(action, price),
				})
				continue
			}
			order, err := f.toLevelOrder(action, level[0], level[1])
			if err != nil {
				return err
			}
			events = append(events, &domain.OrderBookItemAddedEvent{EventMeta: meta, Order: order})
		}
		return nil
	}

	if err := appendSide(domain.OrderAction_Buy, update.Changes.Bids); err != nil {
		return nil, err
	}
	if err := appendSide(domain.OrderAction_Sell, update.Changes.Asks); err != nil {
		return nil, err
	}
	return events, nil
}

func (f *KucoinFeed) parseMatch(data json.RawMessage) ([]domain.MarketEvent, error) {
	var match wireMatch
	if err := json.Unmarshal(data, &match); err != nil {
		return nil, fmt.Errorf("unmarshal match: %w", err)
	}
	price, err := domain.NewAmount(match.Price)
	if err != nil {
		return nil, fmt.Errorf("parse match price %q: %w", match.Price, err)
	}
	size, err := domain.NewAmount(match.Size)
	if err != nil {
		return nil, fmt.Errorf("parse match size %q: %w", match.Size, err)
	}

	ts := domain.Now()
	if ns, err := strconv.ParseInt(match.TimeNs, 10, 64); err == nil {
		ts = time.Unix(0, ns).UTC()
	}

	return []domain.MarketEvent{&domain.TradeEvent{
		EventMeta:     domain.EventMeta{Timestamp: ts, Symbol: f.symbol.String()},
		BaseAmount:    size,
		CounterAmount: price.Mul(size),
		MakerOrderID:  match.MakerOrderID,
		TakerOrderID:  match.TakerOrderID,
	}}, nil
}

func (f *KucoinFeed) toLevelOrder(action domain.OrderAction, price, size string) (*domain.LimitOrder, error) {
	p, err := domain.NewAmount(price)
	if err != nil {
		return nil, fmt.Errorf("parse level price %q: %w", price, err)
	}
	s, err := domain.NewAmount(size)
	if err != nil {
		return nil, fmt.Errorf("parse level size %q: %w", size, err)
	}
	return &domain.LimitOrder{
		ID:       levelOrderID(action, p),
		Symbol:   f.symbol.String(),
		Action:   action,
		Price:    p,
		Quantity: s,
	}, nil
}

// levelOrderID derives a stable synthetic order id for a price level. Deriving
// it from the parsed amount keeps ids identical across wire formattings of the
// same price.
func levelOrderID(action domain.OrderAction, price domain.Amount) string {
	return string(action) + "@" + price.String()
}
