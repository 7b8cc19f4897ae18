package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Kucoin/kucoin-go-sdk"
	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/go-market-tracker/domain"
)

const MarketName = "kucoin"

var logger = logrus.WithField("component", "kucoin")

// KucoinSyncAPI is the REST command executor for one Kucoin pair, backed by
// the official SDK.
type KucoinSyncAPI struct {
	symbol     *domain.MarketSymbol
	pair       string
	apiService *kucoin.ApiService
}

func NewKucoinSyncAPI(symbol *domain.MarketSymbol, apiKey, apiSecret, passphrase string) *KucoinSyncAPI {
	return &KucoinSyncAPI{
		symbol: symbol,
		pair:   symbol.Pair("-"),
		apiService: kucoin.NewApiService(
			kucoin.ApiKeyOption(apiKey),
			kucoin.ApiSecretOption(apiSecret),
			kucoin.ApiPassPhraseOption(passphrase),
		),
	}
}

func (api *KucoinSyncAPI) Connect(ctx context.Context) error {
	resp, err := api.apiService.ServerTime()
	if err != nil {
		return domain.NewMarketError(MarketName, fmt.Errorf("probe server time: %w", err))
	}
	var serverTime int64
	if err := json.Unmarshal(resp.RawData, &serverTime); err != nil {
		return domain.NewMarketError(MarketName, fmt.Errorf("unmarshal server time: %w", err))
	}
	logger.Debugf("kucoin server time %d", serverTime)
	return nil
}

func (api *KucoinSyncAPI) Close() error {
	return nil
}

// wsConnOpts asks the venue for a websocket endpoint and connection token.
func (api *KucoinSyncAPI) wsConnOpts() (*kucoin.WebSocketTokenModel, error) {
	resp, err := api.apiService.WebSocketPublicToken()
	if err != nil {
		return nil, fmt.Errorf("get ws connection options: %w", err)
	}

	data := &kucoin.WebSocketTokenModel{}
	if err := json.Unmarshal(resp.RawData, data); err != nil {
		return nil, fmt.Errorf("unmarshal ws connection options: %w, response: %s", err, resp.RawData)
	}
	return data, nil
}

type orderBookSnapshot struct {
	Sequence string     `json:"sequence"`
	Time     int64      `json:"time"`
	Bids     [][]string `json:"bids"`
	Asks     [][]string `json:"asks"`
}

func (api *KucoinSyncAPI) orderBookSnapshot() (*orderBookSnapshot, error) {
	resp, err := api.apiService.AggregatedFullOrderBookV3(api.pair)
	if err != nil {
		return nil, fmt.Errorf("get order book snapshot: %w", err)
	}

	data := &orderBookSnapshot{}
	if err := json.Unmarshal(resp.RawData, data); err != nil {
		return nil, fmt.Errorf("unmarshal order book snapshot: %w, response: %s", err, resp.RawData)
	}
	return data, nil
}

type tickerLevel1 struct {
	Sequence    string `json:"sequence"`
	Price       string `json:"price"`
	BestBid     string `json:"bestBid"`
	BestAsk     string `json:"bestAsk"`
	TimestampMs int64  `json:"time"`
}

func (api *KucoinSyncAPI) GetTicker(ctx context.Context) (*domain.Ticker, error) {
	resp, err := api.apiService.TickerLevel1(api.pair)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("get ticker: %w", err))
	}

	data := &tickerLevel1{}
	if err := json.Unmarshal(resp.RawData, data); err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("unmarshal ticker: %w, response: %s", err, resp.RawData))
	}

	bid, err := domain.NewAmount(data.BestBid)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse best bid %q: %w", data.BestBid, err))
	}
	ask, err := domain.NewAmount(data.BestAsk)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse best ask %q: %w", data.BestAsk, err))
	}
	last, err := domain.NewAmount(data.Price)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse last price %q: %w", data.Price, err))
	}

	return &domain.Ticker{
		Timestamp:    time.UnixMilli(data.TimestampMs).UTC(),
		Symbol:       api.symbol.String(),
		BidPrice:     bid,
		AskPrice:     ask,
		CurrentPrice: last,
	}, nil
}

func (api *KucoinSyncAPI) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	model := &kucoin.CreateOrderModel{
		ClientOid: strconv.FormatInt(time.Now().UnixNano(), 10),
		Symbol:    api.pair,
		Side:      strings.ToLower(string(order.Side())),
	}

	switch o := order.(type) {
	case *domain.LimitOrder:
		model.Type = "limit"
		model.Price = o.Price.String()
		model.Size = o.Quantity.String()
		model.PostOnly = o.PostOnly
	case *domain.MarketOrder:
		model.Type = "market"
		if o.IsBaseQuantity {
			model.Size = o.Quantity.String()
		} else {
			model.Funds = o.Quantity.String()
		}
	default:
		return "", domain.NewMarketError(MarketName, fmt.Errorf("unsupported order type %T", order))
	}

	resp, err := api.apiService.CreateOrder(model)
	if err != nil {
		return "", domain.NewMarketError(MarketName, fmt.Errorf("create order: %w", err))
	}

	var placed struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(resp.RawData, &placed); err != nil {
		return "", domain.NewMarketError(MarketName, fmt.Errorf("unmarshal create order response: %w, response: %s", err, resp.RawData))
	}
	return placed.OrderID, nil
}

type orderModel struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	DealSize    string `json:"dealSize"`
	IsActive    bool   `json:"isActive"`
	CancelExist bool   `json:"cancelExist"`
	CreatedAtMs int64  `json:"createdAt"`
}

func (api *KucoinSyncAPI) GetOrder(ctx context.Context, orderID string) (*domain.FullOrderDetails, error) {
	resp, err := api.apiService.Order(orderID)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("get order %s: %w", orderID, err))
	}

	data := &orderModel{}
	if err := json.Unmarshal(resp.RawData, data); err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("unmarshal order: %w, response: %s", err, resp.RawData))
	}

	price, err := domain.NewAmount(data.Price)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse order price %q: %w", data.Price, err))
	}
	size, err := domain.NewAmount(data.Size)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse order size %q: %w", data.Size, err))
	}
	dealSize, err := domain.NewAmount(data.DealSize)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse deal size %q: %w", data.DealSize, err))
	}

	action := domain.OrderAction_Sell
	if strings.EqualFold(data.Side, "buy") {
		action = domain.OrderAction_Buy
	}

	return &domain.FullOrderDetails{
		ID:             data.ID,
		Symbol:         api.symbol.String(),
		Action:         action,
		Quantity:       size,
		QuantityFilled: dealSize,
		LimitPrice:     price,
		Status:         toOrderStatus(data.IsActive, data.CancelExist, dealSize),
		CreatedAt:      time.UnixMilli(data.CreatedAtMs).UTC(),
	}, nil
}

// CancelOrder reports true only when the venue acknowledged this order id in
// the cancellation response.
func (api *KucoinSyncAPI) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	resp, err := api.apiService.CancelOrder(orderID)
	if err != nil {
		return false, domain.NewMarketError(MarketName, fmt.Errorf("cancel order %s: %w", orderID, err))
	}

	var cancelled struct {
		CancelledOrderIDs []string `json:"cancelledOrderIds"`
	}
	if err := json.Unmarshal(resp.RawData, &cancelled); err != nil {
		return false, domain.NewMarketError(MarketName, fmt.Errorf("unmarshal cancel response: %w, response: %s", err, resp.RawData))
	}

	for _, id := range cancelled.CancelledOrderIDs {
		if id == orderID {
			return true, nil
		}
	}
	return false, nil
}

// toOrderStatus folds Kucoin's flag pair into the order status taxonomy.
func toOrderStatus(isActive, cancelExist bool, dealSize domain.Amount) domain.OrderStatus {
	if isActive {
		if dealSize.IsPositive() {
			return domain.OrderStatus_PartiallyFilled
		}
		return domain.OrderStatus_Active
	}
	if cancelExist {
		if dealSize.IsPositive() {
			return domain.OrderStatus_CancelledAndPartiallyFilled
		}
		return domain.OrderStatus_Cancelled
	}
	return domain.OrderStatus_Filled
}
