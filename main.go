package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/go-market-tracker/config"
	"github.com/spooky-finn/go-market-tracker/domain"
	promclient "github.com/spooky-finn/go-market-tracker/infrastructure/prometheus"
	"github.com/spooky-finn/go-market-tracker/provider/kucoin"
	"github.com/spooky-finn/go-market-tracker/provider/valr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := domain.NewMarketRegistry()
	var feeds []domain.MarketFeed

	for _, mc := range cfg.Markets {
		symbol, err := domain.NewMarketSymbolFromString(mc.Symbol)
		if err != nil {
			logrus.Fatalf("invalid symbol %q: %v", mc.Symbol, err)
		}

		client, feed, err := buildVenue(cfg, mc.Venue, symbol)
		if err != nil {
			logrus.Fatalf("build venue %s: %v", mc.Venue, err)
		}

		market := domain.NewMarket(mc.Venue, symbol.String(), client, feed)
		market.SubscribeToFeed(promclient.NewMarketObserver(market))
		registry.Add(market)

		if err := client.Connect(ctx); err != nil {
			logrus.Fatalf("connect %s executor: %v", mc.Venue, err)
		}
		if err := feed.Connect(); err != nil {
			logrus.Fatalf("connect %s feed: %v", mc.Venue, err)
		}
		feeds = append(feeds, feed)

		logrus.Infof("tracking %s on %s", symbol, mc.Venue)
	}

	go promclient.StartPromClientServer(cfg.MetricsAddr)

	<-ctx.Done()
	logrus.Info("shutting down")

	for _, feed := range feeds {
		if err := feed.Close(); err != nil {
			logrus.Warnf("close feed: %v", err)
		}
	}
	os.Exit(0)
}

// buildVenue maps a configured venue name to its executor and feed.
func buildVenue(cfg *config.Config, venue string, symbol *domain.MarketSymbol) (domain.MarketClient, domain.MarketFeed, error) {
	switch venue {
	case "valr":
		client := valr.NewValrSyncAPI(symbol, cfg.Valr.APIKey, cfg.Valr.APISecret)
		feed := valr.NewValrFeed(symbol, cfg.Valr.APIKey, cfg.Valr.APISecret)
		return client, feed, nil
	case "kucoin":
		client := kucoin.NewKucoinSyncAPI(symbol, cfg.Kucoin.APIKey, cfg.Kucoin.APISecret, cfg.Kucoin.Passphrase)
		feed := kucoin.NewKucoinFeed(symbol, client)
		return client, feed, nil
	default:
		return nil, nil, fmt.Errorf("unknown venue %q", venue)
	}
}
