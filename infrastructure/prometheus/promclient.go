package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/go-market-tracker/domain"
)

var logger = logrus.WithField("component", "promclient")

var MarketEventsCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "market_events_total",
		Help: "market feed events delivered, by market and event type",
	},
	[]string{"market", "event"},
)

var OrderBookDepthGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "market_order_book_depth",
		Help: "number of price levels per order book side",
	},
	[]string{"market", "side"},
)

var CurrentPriceGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "market_current_price",
		Help: "last traded price per market",
	},
	[]string{"market"},
)

func StartPromClientServer(addr string) {
	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(MarketEventsCounter)
	reg.MustRegister(OrderBookDepthGauge)
	reg.MustRegister(CurrentPriceGauge)
	reg.MustRegister(collectors.NewGoCollector())

	http.Handle("/metrics", promHandler)
	logger.Infof("prometheus server listening at %s", addr)

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatalf("failed to serve: %v", err)
	}
}

// MarketObserver is a feed subscriber that exports market metrics. It reads
// the book through the market facade, so gauges may lag the event that
// triggered them by a step.
type MarketObserver struct {
	market *domain.Market
	label  string
}

func NewMarketObserver(market *domain.Market) *MarketObserver {
	return &MarketObserver{
		market: market,
		label:  market.Name() + ":" + market.Symbol(),
	}
}

func (o *MarketObserver) OnMarketEvent(event domain.MarketEvent) {
	MarketEventsCounter.WithLabelValues(o.label, eventLabel(event)).Inc()

	bids, asks := o.market.OrderBook().Depth()
	OrderBookDepthGauge.WithLabelValues(o.label, "bid").Set(float64(bids))
	OrderBookDepthGauge.WithLabelValues(o.label, "ask").Set(float64(asks))

	price := o.market.CurrentPrice()
	if !price.IsZero() {
		CurrentPriceGauge.WithLabelValues(o.label).Set(price.InexactFloat64())
	}
}

func eventLabel(event domain.MarketEvent) string {
	switch event.(type) {
	case *domain.TickerEvent:
		return "ticker"
	case *domain.OrderBookInitEvent:
		return "order_book_init"
	case *domain.OrderBookItemAddedEvent:
		return "order_book_item_added"
	case *domain.OrderBookItemRemovedEvent:
		return "order_book_item_removed"
	case *domain.TradeEvent:
		return "trade"
	case *domain.MarketStatusEvent:
		return "market_status"
	default:
		return "unknown"
	}
}
