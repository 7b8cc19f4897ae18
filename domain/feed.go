package domain

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"
)

var feedLogger = logrus.WithField("component", "market-feed")

// MarketFeedSubscriber consumes the event stream of one market. Events arrive
// one at a time, in the order they were published to the feed.
type MarketFeedSubscriber interface {
	OnMarketEvent(event MarketEvent)
}

// MarketFeed is the venue-facing event source of a market. Connect and Close
// own the underlying transport; Publish fans an event out to every subscriber.
type MarketFeed interface {
	Connect() error
	Close() error
	Subscribe(subscriber MarketFeedSubscriber)
	Unsubscribe(subscriber MarketFeedSubscriber)
	Publish(event MarketEvent)
}

// FeedDispatcher implements the fan-out half of MarketFeed. Venue feeds embed
// it and add their transport lifecycle on top.
//
// Every subscriber gets its own queue and delivery goroutine: a slow subscriber
// never blocks publishing or the other subscribers, but each subscriber still
// observes events strictly in publish order. A snapshot event is therefore
// always fully applied by a subscriber before any later incremental event
// reaches it.
type FeedDispatcher struct {
	mu   sync.Mutex
	subs []*subscriberQueue
}

func (d *FeedDispatcher) Subscribe(subscriber MarketFeedSubscriber) {
	q := &subscriberQueue{
		subscriber: subscriber,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	d.mu.Lock()
	d.subs = append(d.subs, q)
	d.mu.Unlock()
	go q.run()
}

func (d *FeedDispatcher) Unsubscribe(subscriber MarketFeedSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, q := range d.subs {
		if q.subscriber == subscriber {
			close(q.done)
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

func (d *FeedDispatcher) Publish(event MarketEvent) {
	d.mu.Lock()
	subs := make([]*subscriberQueue, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	for _, q := range subs {
		q.push(event)
	}
}

// CloseSubscribers stops every delivery goroutine. Venue feeds call it from
// their Close.
func (d *FeedDispatcher) CloseSubscribers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, q := range d.subs {
		close(q.done)
	}
	d.subs = nil
}

type subscriberQueue struct {
	subscriber MarketFeedSubscriber
	mu         sync.Mutex
	pending    deque.Deque[MarketEvent]
	wake       chan struct{}
	done       chan struct{}
}

func (q *subscriberQueue) push(event MarketEvent) {
	q.mu.Lock()
	q.pending.PushBack(event)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *subscriberQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}
		for {
			q.mu.Lock()
			if q.pending.Len() == 0 {
				q.mu.Unlock()
				break
			}
			event := q.pending.PopFront()
			q.mu.Unlock()
			q.deliver(event)
		}
	}
}

// deliver hands one event to the subscriber. A panicking handler must not take
// down the dispatch loop.
func (q *subscriberQueue) deliver(event MarketEvent) {
	defer func() {
		if r := recover(); r != nil {
			feedLogger.Errorf("subscriber panicked on %T: %v", event, r)
		}
	}()
	q.subscriber.OnMarketEvent(event)
}
