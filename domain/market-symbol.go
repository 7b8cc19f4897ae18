package domain

import (
	"fmt"
	"strings"
)

// MarketSymbol identifies a traded pair independent of any venue's spelling.
// Stored lowercase; venues render their own pair format via Join or Pair.
type MarketSymbol struct {
	BaseAsset  string
	QuoteAsset string
}

func NewMarketSymbol(base, quote string) (*MarketSymbol, error) {
	if base == "" || quote == "" {
		return nil, fmt.Errorf("base and quote must not be empty")
	}
	if strings.EqualFold(base, quote) {
		return nil, fmt.Errorf("base and quote must be different")
	}
	return &MarketSymbol{
		BaseAsset:  strings.ToLower(base),
		QuoteAsset: strings.ToLower(quote),
	}, nil
}

// NewMarketSymbolFromString parses a "base_quote" pair string.
func NewMarketSymbolFromString(s string) (*MarketSymbol, error) {
	split := strings.Split(s, "_")
	if len(split) != 2 {
		return nil, fmt.Errorf("invalid symbol string %q, expected base_quote", s)
	}
	return NewMarketSymbol(split[0], split[1])
}

func (ms *MarketSymbol) Join(separator string) string {
	return ms.BaseAsset + separator + ms.QuoteAsset
}

// Pair renders the venue-facing uppercase pair, e.g. Pair("") = "BTCZAR",
// Pair("-") = "BTC-USDT".
func (ms *MarketSymbol) Pair(separator string) string {
	return strings.ToUpper(ms.Join(separator))
}

func (ms *MarketSymbol) String() string {
	return ms.Join("_")
}

func (ms *MarketSymbol) Equal(other *MarketSymbol) bool {
	return ms.BaseAsset == other.BaseAsset && ms.QuoteAsset == other.QuoteAsset
}
