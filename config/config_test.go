package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkets(t *testing.T) {
	tests := []struct {
		name        string
		markets     string
		expectError bool
		expectLen   int
	}{
		{"SingleMarket", "valr/btc_zar", false, 1},
		{"TwoMarkets", "valr/btc_zar, kucoin/btc_usdt", false, 2},
		{"MissingSymbol", "valr", true, 0},
		{"Empty", "", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			markets, err := parseMarkets(tt.markets)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Len(t, markets, tt.expectLen)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("MARKETS", "valr/btc_zar")
	t.Setenv("VALR_API_KEY", "key")
	t.Setenv("VALR_API_SECRET", "secret")
	t.Setenv("DEBUG_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, ":8080", cfg.MetricsAddr)
	require.Len(t, cfg.Markets, 1)
	assert.Equal(t, MarketConfig{Venue: "valr", Symbol: "btc_zar"}, cfg.Markets[0])
	assert.Equal(t, "key", cfg.Valr.APIKey)
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("MARKETS", "kucoin/btc_usdt")
	t.Setenv("KUCOIN_API_KEY", "")
	t.Setenv("KUCOIN_SECRET_KEY", "")
	t.Setenv("KUCOIN_PASSPHRASE", "")

	_, err := Load()
	assert.Error(t, err)
}
