package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultMarkets     = "valr/btc_zar"
	defaultMetricsAddr = ":8080"
)

// Config keeps the runtime configuration for the process.
type Config struct {
	Debug       bool
	MetricsAddr string
	Markets     []MarketConfig
	Valr        ValrConfig
	Kucoin      KucoinConfig
}

// MarketConfig names one market to track: a venue and a base_quote symbol.
type MarketConfig struct {
	Venue  string
	Symbol string
}

type ValrConfig struct {
	APIKey    string
	APISecret string
}

type KucoinConfig struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Load builds Config from environment variables. A .env file is read first
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	debug, err := getBool("DEBUG_MODE", false)
	if err != nil {
		return nil, err
	}

	markets, err := parseMarkets(getString("MARKETS", defaultMarkets))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Debug:       debug,
		MetricsAddr: getString("METRICS_ADDR", defaultMetricsAddr),
		Markets:     markets,
		Valr: ValrConfig{
			APIKey:    os.Getenv("VALR_API_KEY"),
			APISecret: os.Getenv("VALR_API_SECRET"),
		},
		Kucoin: KucoinConfig{
			APIKey:     os.Getenv("KUCOIN_API_KEY"),
			APISecret:  os.Getenv("KUCOIN_SECRET_KEY"),
			Passphrase: os.Getenv("KUCOIN_PASSPHRASE"),
		},
	}

	for _, market := range cfg.Markets {
		switch market.Venue {
		case "valr":
			if cfg.Valr.APIKey == "" || cfg.Valr.APISecret == "" {
				return nil, fmt.Errorf("VALR_API_KEY and VALR_API_SECRET are required for market %s/%s", market.Venue, market.Symbol)
			}
		case "kucoin":
			if cfg.Kucoin.APIKey == "" || cfg.Kucoin.APISecret == "" || cfg.Kucoin.Passphrase == "" {
				return nil, fmt.Errorf("KUCOIN_API_KEY, KUCOIN_SECRET_KEY and KUCOIN_PASSPHRASE are required for market %s/%s", market.Venue, market.Symbol)
			}
		default:
			return nil, fmt.Errorf("unknown venue %q in MARKETS", market.Venue)
		}
	}

	return cfg, nil
}

// parseMarkets parses the MARKETS variable, a comma-separated list of
// venue/symbol pairs, e.g. "valr/btc_zar,kucoin/btc_usdt".
func parseMarkets(s string) ([]MarketConfig, error) {
	var markets []MarketConfig
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid MARKETS entry %q, expected venue/symbol", item)
		}
		markets = append(markets, MarketConfig{Venue: parts[0], Symbol: parts[1]})
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("MARKETS must name at least one market")
	}
	return markets, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("convert %s value %q to bool: %w", key, value, err)
	}
	return parsed, nil
}
