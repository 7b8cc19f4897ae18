package domain

import (
	"errors"
	"sync"
)

var ErrMarketNotFound = errors.New("market not found")

// MarketRegistry holds the live market instances of the process, keyed by venue
// and symbol.
type MarketRegistry struct {
	mu      sync.RWMutex
	markets map[string]map[string]*Market
}

func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{
		markets: make(map[string]map[string]*Market),
	}
}

func (r *MarketRegistry) Add(market *Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byVenue, ok := r.markets[market.Name()]
	if !ok {
		byVenue = make(map[string]*Market)
		r.markets[market.Name()] = byVenue
	}
	byVenue[market.Symbol()] = market
}

func (r *MarketRegistry) Get(venue, symbol string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	market, ok := r.markets[venue][symbol]
	if !ok {
		return nil, ErrMarketNotFound
	}
	return market, nil
}

func (r *MarketRegistry) MarketCount(venue string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets[venue])
}

// Each visits every registered market.
func (r *MarketRegistry) Each(fn func(market *Market)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, byVenue := range r.markets {
		for _, market := range byVenue {
			fn(market)
		}
	}
}
