package domain

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// OrderBookEntry is one price level on one side of the book. It owns the
// resting orders at that price, in arrival order (price-time priority).
type OrderBookEntry struct {
	price   Amount
	orders  map[string]*LimitOrder
	arrival []string
}

func newOrderBookEntry(order *LimitOrder) *OrderBookEntry {
	return &OrderBookEntry{
		price:   order.Price,
		orders:  map[string]*LimitOrder{order.ID: order},
		arrival: []string{order.ID},
	}
}

func (e *OrderBookEntry) Price() Amount { return e.price }

// Volume is the total base quantity resting at this level.
func (e *OrderBookEntry) Volume() Amount {
	var volume Amount
	for _, order := range e.orders {
		volume = volume.Add(order.Volume())
	}
	return volume
}

func (e *OrderBookEntry) Len() int { return len(e.orders) }

func (e *OrderBookEntry) Contains(orderID string) bool {
	_, ok := e.orders[orderID]
	return ok
}

// Orders returns the resting orders in arrival order.
func (e *OrderBookEntry) Orders() []*LimitOrder {
	out := make([]*LimitOrder, 0, len(e.arrival))
	for _, id := range e.arrival {
		out = append(out, e.orders[id])
	}
	return out
}

func (e *OrderBookEntry) put(order *LimitOrder) {
	if _, ok := e.orders[order.ID]; !ok {
		e.arrival = append(e.arrival, order.ID)
	}
	e.orders[order.ID] = order
}

func (e *OrderBookEntry) delete(orderID string) {
	delete(e.orders, orderID)
	for i, id := range e.arrival {
		if id == orderID {
			e.arrival = append(e.arrival[:i], e.arrival[i+1:]...)
			break
		}
	}
}

// bookSide keeps the price levels of one side sorted by priority: entries[0] is
// the best price, meaning the highest bid or the lowest ask.
type bookSide struct {
	asks    bool
	entries []*OrderBookEntry
	byPrice map[string]*OrderBookEntry
}

func newBookSide(asks bool) *bookSide {
	return &bookSide{asks: asks, byPrice: make(map[string]*OrderBookEntry)}
}

func (s *bookSide) get(price Amount) *OrderBookEntry {
	return s.byPrice[price.String()]
}

// before reports whether price a outranks price b on this side.
func (s *bookSide) before(a, b Amount) bool {
	if s.asks {
		return a.Cmp(b) < 0
	}
	return a.Cmp(b) > 0
}

func (s *bookSide) insert(entry *OrderBookEntry) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return !s.before(s.entries[i].price, entry.price)
	})
	s.entries = append(s.entries, nil)
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = entry
	s.byPrice[entry.price.String()] = entry
}

func (s *bookSide) remove(entry *OrderBookEntry) {
	delete(s.byPrice, entry.price.String())
	for i, e := range s.entries {
		if e == entry {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
}

func (s *bookSide) clear() {
	s.entries = nil
	s.byPrice = make(map[string]*OrderBookEntry)
}

func (s *bookSide) best() *OrderBookEntry {
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[0]
}

// OrderBook is the in-memory index of the resting limit orders of one symbol.
// Besides the two sorted sides it keeps a reverse index from order id to the
// owning price level, so removals never scan the book.
//
// All methods are safe for concurrent use and every mutation appears atomic to
// readers. Invariants: every indexed order id lives in exactly one level on
// exactly one side, and no level is ever empty.
type OrderBook struct {
	mu    sync.RWMutex
	bids  *bookSide
	asks  *bookSide
	index map[string]*OrderBookEntry
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:  newBookSide(false),
		asks:  newBookSide(true),
		index: make(map[string]*OrderBookEntry),
	}
}

func (b *OrderBook) side(action OrderAction) *bookSide {
	if action == OrderAction_Buy {
		return b.bids
	}
	return b.asks
}

// AddOrder rests the order on the side given by its action, creating the price
// level if needed. Re-adding an id at the same price and side overwrites the
// resting order and keeps its queue position. Re-adding it at a different price
// or on the other side is rejected: the feed must emit a removal first,
// anything else means the venue stream and the local book have diverged.
func (b *OrderBook) AddOrder(order *LimitOrder) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addOrder(order)
}

func (b *OrderBook) addOrder(order *LimitOrder) error {
	if owner, ok := b.index[order.ID]; ok {
		resting := owner.orders[order.ID]
		if !owner.price.Equal(order.Price) || resting.Action != order.Action {
			return fmt.Errorf("add %s order %s at %s: %w", order.Action, order.ID, order.Price, ErrDuplicateOrder)
		}
		owner.put(order)
		return nil
	}
	side := b.side(order.Action)
	entry := side.get(order.Price)
	if entry == nil {
		entry = newOrderBookEntry(order)
		side.insert(entry)
	} else {
		entry.put(order)
	}
	b.index[order.ID] = entry
	return nil
}

// RemoveOrder takes an order out of the book, dropping its price level once the
// last order leaves it. Unknown ids are a no-op: feeds emit cancellations for
// orders the book never saw, e.g. around startup.
func (b *OrderBook) RemoveOrder(orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.index[orderID]
	if !ok {
		return
	}
	order := entry.orders[orderID]
	entry.delete(orderID)
	if entry.Len() == 0 {
		b.side(order.Action).remove(entry)
	}
	delete(b.index, orderID)
}

// Clear empties both sides and the reverse index in one critical section.
func (b *OrderBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clear()
}

func (b *OrderBook) clear() {
	b.bids.clear()
	b.asks.clear()
	b.index = make(map[string]*OrderBookEntry)
}

// Reinit atomically replaces the whole book with the given snapshot. Readers
// never observe the intermediate empty state. Orders that cannot be applied are
// skipped and reported in the joined error; the rest of the snapshot stands.
func (b *OrderBook) Reinit(orders []*LimitOrder) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clear()
	var errs []error
	for _, order := range orders {
		if err := b.addOrder(order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestBid returns the highest-priced bid level, nil when the side is empty.
func (b *OrderBook) BestBid() *OrderBookEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.best()
}

// BestAsk returns the lowest-priced ask level, nil when the side is empty.
func (b *OrderBook) BestAsk() *OrderBookEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.best()
}

// Top returns both best levels from a single consistent read, so a ticker built
// from them can never interleave with a concurrent add or remove.
func (b *OrderBook) Top() (bid, ask *OrderBookEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.best(), b.asks.best()
}

// Spread is best ask minus best bid. ok is false while either side is empty;
// the spread is undefined then and the Amount must not be used.
func (b *OrderBook) Spread() (Amount, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, ask := b.bids.best(), b.asks.best()
	if bid == nil || ask == nil {
		return Amount{}, false
	}
	return ask.price.Sub(bid.price), true
}

// Contains reports whether an order id is currently resting in the book.
func (b *OrderBook) Contains(orderID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.index[orderID]
	return ok
}

// Depth returns the number of price levels per side.
func (b *OrderBook) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids.entries), len(b.asks.entries)
}

// EachBid iterates the bid levels from best to worst under the read lock, so
// the traversal sees one consistent book state. Iteration stops when fn returns
// false. Entries must not be retained after fn returns.
func (b *OrderBook) EachBid(fn func(entry *OrderBookEntry) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, entry := range b.bids.entries {
		if !fn(entry) {
			return
		}
	}
}

// EachAsk is EachBid for the ask side, best (lowest) price first.
func (b *OrderBook) EachAsk(fn func(entry *OrderBookEntry) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, entry := range b.asks.entries {
		if !fn(entry) {
			return
		}
	}
}
