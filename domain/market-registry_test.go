package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/go-market-tracker/domain"
)

func TestMarketRegistry(t *testing.T) {
	registry := domain.NewMarketRegistry()

	_, err := registry.Get("valr", "btc_zar")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	assert.Zero(t, registry.MarketCount("valr"))

	market := domain.NewMarket("valr", "btc_zar", &recordingClient{}, &stubFeed{})
	registry.Add(market)

	got, err := registry.Get("valr", "btc_zar")
	require.NoError(t, err)
	assert.Same(t, market, got)
	assert.Equal(t, 1, registry.MarketCount("valr"))
	assert.Zero(t, registry.MarketCount("kucoin"))

	seen := 0
	registry.Each(func(m *domain.Market) { seen++ })
	assert.Equal(t, 1, seen)
}
