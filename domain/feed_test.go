package domain_test

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/go-market-tracker/domain"
)

// stubFeed is a FeedDispatcher with a no-op transport lifecycle.
type stubFeed struct {
	domain.FeedDispatcher
}

func (f *stubFeed) Connect() error { return nil }
func (f *stubFeed) Close() error {
	f.CloseSubscribers()
	return nil
}

type recordingSubscriber struct {
	mu     sync.Mutex
	events []domain.MarketEvent
	delay  time.Duration
}

func (s *recordingSubscriber) OnMarketEvent(event domain.MarketEvent) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSubscriber) snapshot() []domain.MarketEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MarketEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func removedEvent(i int) *domain.OrderBookItemRemovedEvent {
	return &domain.OrderBookItemRemovedEvent{
		EventMeta: domain.EventMeta{Timestamp: domain.Now(), Symbol: "btc_zar"},
		OrderID:   strconv.Itoa(i),
	}
}

func TestFeedDispatcher_DeliversInPublishOrder(t *testing.T) {
	feed := &stubFeed{}
	defer feed.Close()
	sub := &recordingSubscriber{}
	feed.Subscribe(sub)

	const n = 200
	for i := 0; i < n; i++ {
		feed.Publish(removedEvent(i))
	}

	require.Eventually(t, func() bool { return sub.count() == n }, 2*time.Second, 5*time.Millisecond)

	for i, event := range sub.snapshot() {
		removed, ok := event.(*domain.OrderBookItemRemovedEvent)
		require.True(t, ok)
		assert.Equal(t, strconv.Itoa(i), removed.OrderID, "event %d out of order", i)
	}
}

func TestFeedDispatcher_SnapshotObservedBeforeDeltas(t *testing.T) {
	feed := &stubFeed{}
	defer feed.Close()
	sub := &recordingSubscriber{}
	feed.Subscribe(sub)

	meta := domain.EventMeta{Timestamp: domain.Now(), Symbol: "btc_zar"}
	feed.Publish(&domain.OrderBookInitEvent{EventMeta: meta, Status: domain.MarketStatus_Open})
	feed.Publish(&domain.OrderBookItemAddedEvent{EventMeta: meta})
	feed.Publish(&domain.OrderBookItemRemovedEvent{EventMeta: meta, OrderID: "x"})

	require.Eventually(t, func() bool { return sub.count() == 3 }, 2*time.Second, 5*time.Millisecond)

	events := sub.snapshot()
	assert.IsType(t, &domain.OrderBookInitEvent{}, events[0])
	assert.IsType(t, &domain.OrderBookItemAddedEvent{}, events[1])
	assert.IsType(t, &domain.OrderBookItemRemovedEvent{}, events[2])
}

func TestFeedDispatcher_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	feed := &stubFeed{}
	defer feed.Close()
	slow := &recordingSubscriber{delay: 50 * time.Millisecond}
	fast := &recordingSubscriber{}
	feed.Subscribe(slow)
	feed.Subscribe(fast)

	const n = 10
	start := time.Now()
	for i := 0; i < n; i++ {
		feed.Publish(removedEvent(i))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "publishing must not wait on subscribers")

	require.Eventually(t, func() bool { return fast.count() == n }, 2*time.Second, time.Millisecond)
	assert.Less(t, slow.count(), n, "the slow subscriber should still be draining its queue")

	// The slow subscriber eventually catches up and in order.
	require.Eventually(t, func() bool { return slow.count() == n }, 5*time.Second, 10*time.Millisecond)
	for i, event := range slow.snapshot() {
		assert.Equal(t, strconv.Itoa(i), event.(*domain.OrderBookItemRemovedEvent).OrderID)
	}
}

func TestFeedDispatcher_UnsubscribeStopsDelivery(t *testing.T) {
	feed := &stubFeed{}
	defer feed.Close()
	sub := &recordingSubscriber{}
	feed.Subscribe(sub)

	feed.Publish(removedEvent(0))
	require.Eventually(t, func() bool { return sub.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	feed.Unsubscribe(sub)
	feed.Publish(removedEvent(1))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sub.count(), "no delivery after unsubscribe")
}

type panickySubscriber struct {
	recordingSubscriber
	panicked bool
}

func (s *panickySubscriber) OnMarketEvent(event domain.MarketEvent) {
	if !s.panicked {
		s.panicked = true
		panic("boom")
	}
	s.recordingSubscriber.OnMarketEvent(event)
}

func TestFeedDispatcher_SubscriberPanicDoesNotStopDispatch(t *testing.T) {
	feed := &stubFeed{}
	defer feed.Close()
	sub := &panickySubscriber{}
	feed.Subscribe(sub)

	feed.Publish(removedEvent(0))
	feed.Publish(removedEvent(1))
	feed.Publish(removedEvent(2))

	require.Eventually(t, func() bool { return sub.count() == 2 }, 2*time.Second, 5*time.Millisecond)
}
