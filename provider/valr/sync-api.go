package valr

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/go-market-tracker/domain"
)

const (
	MarketName = "valr"

	defaultAPIURL    = "https://api.valr.com"
	defaultStreamURL = "wss://api.valr.com/ws/trade"
)

var logger = logrus.WithField("component", "valr")

// ValrSyncAPI is the REST command executor for one VALR pair.
type ValrSyncAPI struct {
	symbol *domain.MarketSymbol
	pair   string

	apiKey    string
	apiSecret string
	baseURL   string

	httpClient *http.Client
}

func NewValrSyncAPI(symbol *domain.MarketSymbol, apiKey, apiSecret string) *ValrSyncAPI {
	return &ValrSyncAPI{
		symbol:     symbol,
		pair:       symbol.Pair(""),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    defaultAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Connect probes the venue status endpoint. The REST transport itself is
// connectionless.
func (api *ValrSyncAPI) Connect(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := api.do(ctx, http.MethodGet, "/v1/public/status", nil, false, &status); err != nil {
		return err
	}
	if status.Status != "online" {
		logger.Warnf("valr reports status %q", status.Status)
	}
	return nil
}

func (api *ValrSyncAPI) Close() error {
	return nil
}

func (api *ValrSyncAPI) GetTicker(ctx context.Context) (*domain.Ticker, error) {
	var summary struct {
		CurrencyPair    string `json:"currencyPair"`
		AskPrice        string `json:"askPrice"`
		BidPrice        string `json:"bidPrice"`
		LastTradedPrice string `json:"lastTradedPrice"`
		Created         string `json:"created"`
	}
	path := fmt.Sprintf("/v1/public/%s/marketsummary", api.pair)
	if err := api.do(ctx, http.MethodGet, path, nil, false, &summary); err != nil {
		return nil, err
	}

	bid, err := domain.NewAmount(summary.BidPrice)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse bid price %q: %w", summary.BidPrice, err))
	}
	ask, err := domain.NewAmount(summary.AskPrice)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse ask price %q: %w", summary.AskPrice, err))
	}
	last, err := domain.NewAmount(summary.LastTradedPrice)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse last traded price %q: %w", summary.LastTradedPrice, err))
	}

	ts := domain.Now()
	if parsed, err := time.Parse(time.RFC3339, summary.Created); err == nil {
		ts = parsed.UTC()
	}

	return &domain.Ticker{
		Timestamp:    ts,
		Symbol:       api.symbol.String(),
		BidPrice:     bid,
		AskPrice:     ask,
		CurrentPrice: last,
	}, nil
}

func (api *ValrSyncAPI) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	request := map[string]any{
		"pair": api.pair,
		"side": strings.ToUpper(string(order.Side())),
	}

	var path string
	switch o := order.(type) {
	case *domain.LimitOrder:
		path = "/v1/orders/limit"
		request["price"] = o.Price.String()
		request["quantity"] = o.Quantity.String()
		request["postOnly"] = o.PostOnly
	case *domain.MarketOrder:
		path = "/v1/orders/market"
		if o.IsBaseQuantity {
			request["baseAmount"] = o.Quantity.String()
		} else {
			request["quoteAmount"] = o.Quantity.String()
		}
	default:
		return "", domain.NewMarketError(MarketName, fmt.Errorf("unsupported order type %T", order))
	}

	var placed struct {
		ID string `json:"id"`
	}
	if err := api.do(ctx, http.MethodPost, path, request, true, &placed); err != nil {
		return "", err
	}
	return placed.ID, nil
}

func (api *ValrSyncAPI) GetOrder(ctx context.Context, orderID string) (*domain.FullOrderDetails, error) {
	var order struct {
		OrderID           string `json:"orderId"`
		OrderStatusType   string `json:"orderStatusType"`
		OrderSide         string `json:"orderSide"`
		OriginalPrice     string `json:"originalPrice"`
		OriginalQuantity  string `json:"originalQuantity"`
		RemainingQuantity string `json:"remainingQuantity"`
		OrderCreatedAt    string `json:"orderCreatedAt"`
	}
	path := fmt.Sprintf("/v1/orders/%s/orderid/%s", api.pair, orderID)
	if err := api.do(ctx, http.MethodGet, path, nil, true, &order); err != nil {
		return nil, err
	}

	price, err := domain.NewAmount(order.OriginalPrice)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse order price %q: %w", order.OriginalPrice, err))
	}
	quantity, err := domain.NewAmount(order.OriginalQuantity)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse order quantity %q: %w", order.OriginalQuantity, err))
	}
	remaining, err := domain.NewAmount(order.RemainingQuantity)
	if err != nil {
		return nil, domain.NewMarketError(MarketName, fmt.Errorf("parse remaining quantity %q: %w", order.RemainingQuantity, err))
	}

	ts := domain.Now()
	if parsed, err := time.Parse(time.RFC3339, order.OrderCreatedAt); err == nil {
		ts = parsed.UTC()
	}

	return &domain.FullOrderDetails{
		ID:             order.OrderID,
		Symbol:         api.symbol.String(),
		Action:         toOrderAction(order.OrderSide),
		Quantity:       quantity,
		QuantityFilled: quantity.Sub(remaining),
		LimitPrice:     price,
		Status:         toOrderStatus(order.OrderStatusType, quantity, remaining),
		CreatedAt:      ts,
	}, nil
}

// CancelOrder submits the cancellation. VALR confirms asynchronously: the
// result arrives as an order book removal on the stream, so this always
// reports false on success.
func (api *ValrSyncAPI) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	request := map[string]any{
		"orderId": orderID,
		"pair":    api.pair,
	}
	if err := api.do(ctx, http.MethodDelete, "/v1/orders/order", request, true, nil); err != nil {
		return false, err
	}
	return false, nil
}

func toOrderAction(side string) domain.OrderAction {
	if strings.EqualFold(side, "buy") {
		return domain.OrderAction_Buy
	}
	return domain.OrderAction_Sell
}

func toOrderStatus(statusType string, quantity, remaining domain.Amount) domain.OrderStatus {
	switch {
	case strings.Contains(statusType, "Failed"):
		return domain.OrderStatus_Rejected
	case statusType == "Cancelled":
		switch {
		case remaining.Equal(quantity):
			return domain.OrderStatus_Cancelled
		case remaining.IsPositive():
			return domain.OrderStatus_CancelledAndPartiallyFilled
		default:
			return domain.OrderStatus_Filled
		}
	case statusType == "Partially Filled":
		return domain.OrderStatus_PartiallyFilled
	case statusType == "Filled":
		return domain.OrderStatus_Filled
	case statusType == "Active" || statusType == "Placed":
		return domain.OrderStatus_Active
	case statusType == "Expired":
		return domain.OrderStatus_Expired
	default:
		return domain.OrderStatus_Pending
	}
}

// do performs one REST call. Authenticated requests carry the VALR signature
// headers: HMAC-SHA512 over timestamp + verb + path + body.
func (api *ValrSyncAPI) do(ctx context.Context, method, path string, body any, authed bool, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return domain.NewMarketError(MarketName, fmt.Errorf("marshal %s %s request: %w", method, path, err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, api.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return domain.NewMarketError(MarketName, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.Header.Set("X-VALR-API-KEY", api.apiKey)
		req.Header.Set("X-VALR-SIGNATURE", signRequest(api.apiSecret, timestamp, method, path, payload))
		req.Header.Set("X-VALR-TIMESTAMP", timestamp)
	}

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return domain.NewMarketError(MarketName, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewMarketError(MarketName, fmt.Errorf("%s %s: read response: %w", method, path, err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Code    json.Number `json:"code"`
			Message string      `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		message := apiErr.Message
		if message == "" {
			message = resp.Status
		}
		return &domain.MarketError{
			Market: MarketName,
			Code:   apiErr.Code.String(),
			Err:    fmt.Errorf("%s %s: %s", method, path, message),
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return domain.NewMarketError(MarketName, fmt.Errorf("%s %s: decode response: %w", method, path, err))
		}
	}
	return nil
}

func signRequest(secret, timestamp, verb, path string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(strings.ToUpper(verb)))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
