package realtime

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-tickets/internal/domain"
)

func message(ticketID string, seq int64) domain.TicketMessage {
	return domain.TicketMessage{
		ID:         "m",
		TicketID:   ticketID,
		Seq:        seq,
		AuthorID:   "user-1",
		AuthorKind: domain.AuthorKindUser,
		Body:       "hello",
		CreatedAt:  time.Now().UTC(),
	}
}

func receive(t *testing.T, sub *Subscription) domain.TicketMessage {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return domain.TicketMessage{}
}

func assertNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		if ok {
			t.Fatalf("unexpected message seq=%d", msg.Seq)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(8, nil)
	ctx := context.Background()

	a, err := hub.Subscribe(ctx, "t-1")
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx, "t-1")
	require.NoError(t, err)
	other, err := hub.Subscribe(ctx, "t-2")
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, message("t-1", 2)))

	assert.Equal(t, int64(2), receive(t, a).Seq)
	assert.Equal(t, int64(2), receive(t, b).Seq)
	assertNothing(t, other)
}

func TestHubCloseAffectsOnlyThatSubscriber(t *testing.T) {
	hub := NewHub(8, nil)
	ctx := context.Background()

	a, err := hub.Subscribe(ctx, "t-1")
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx, "t-1")
	require.NoError(t, err)

	a.Close()
	a.Close()
	_, ok := <-a.C()
	assert.False(t, ok)
	assert.NoError(t, a.Err())
	assert.Equal(t, 1, hub.SubscriberCount("t-1"))

	require.NoError(t, hub.Publish(ctx, message("t-1", 2)))
	assert.Equal(t, int64(2), receive(t, b).Seq)
}

func TestHubContextCancelEndsSubscription(t *testing.T) {
	hub := NewHub(8, nil)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := hub.Subscribe(ctx, "t-1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.Eventually(t, func() bool { return hub.SubscriberCount("t-1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(1, nil)
	ctx := context.Background()

	slow, err := hub.Subscribe(ctx, "t-1")
	require.NoError(t, err)
	fast, err := hub.Subscribe(ctx, "t-1")
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, message("t-1", 2)))
	assert.Equal(t, int64(2), receive(t, fast).Seq)
	require.NoError(t, hub.Publish(ctx, message("t-1", 3)))

	assert.Equal(t, int64(2), receive(t, slow).Seq)
	_, ok := <-slow.C()
	assert.False(t, ok)
	assert.ErrorIs(t, slow.Err(), ErrSlowSubscriber)

	assert.Equal(t, int64(3), receive(t, fast).Seq)
}

func TestHubCloseTicket(t *testing.T) {
	hub := NewHub(8, nil)
	sub, err := hub.Subscribe(context.Background(), "t-1")
	require.NoError(t, err)

	hub.CloseTicket("t-1")
	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.ErrorIs(t, sub.Err(), ErrTicketDeleted)
}

func TestHubSubscribeWhilePublishing(t *testing.T) {
	hub := NewHub(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 200; i++ {
			_ = hub.Publish(ctx, message("t-1", i))
		}
	}()

	// Subscribers are dropped as slow while watch is still registering.
	for i := 0; i < 50; i++ {
		subCtx, subCancel := context.WithCancel(ctx)
		sub, err := hub.Subscribe(subCtx, "t-1")
		require.NoError(t, err)
		subCancel()
		sub.Close()
	}
	<-done
	assert.Eventually(t, func() bool { return hub.SubscriberCount("t-1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestWatchAfterFinishIsNoop(t *testing.T) {
	sub := newSubscription("t-1", 1)
	sub.finish(ErrSlowSubscriber)

	ctx, cancel := context.WithCancel(context.Background())
	sub.watch(ctx)
	cancel()

	sub.mu.Lock()
	assert.Nil(t, sub.stop)
	sub.mu.Unlock()
	assert.ErrorIs(t, sub.Err(), ErrSlowSubscriber)
}

func TestHubClosed(t *testing.T) {
	hub := NewHub(8, nil)
	hub.Close()
	_, err := hub.Subscribe(context.Background(), "t-1")
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.ErrorIs(t, hub.Publish(context.Background(), message("t-1", 1)), ErrChannelClosed)
}

func TestSequencerReordersEarlyArrivals(t *testing.T) {
	hub := NewHub(16, nil)
	seq := NewSequencer(hub, time.Minute, nil)
	ctx := context.Background()

	sub, err := seq.Subscribe(ctx, "t-1")
	require.NoError(t, err)

	seq.Observe("t-1", 1)
	require.NoError(t, seq.Publish(ctx, message("t-1", 4)))
	require.NoError(t, seq.Publish(ctx, message("t-1", 3)))
	assertNothing(t, sub)

	require.NoError(t, seq.Publish(ctx, message("t-1", 2)))
	assert.Equal(t, int64(2), receive(t, sub).Seq)
	assert.Equal(t, int64(3), receive(t, sub).Seq)
	assert.Equal(t, int64(4), receive(t, sub).Seq)
}

func TestSequencerDropsDuplicates(t *testing.T) {
	hub := NewHub(16, nil)
	seq := NewSequencer(hub, time.Minute, nil)
	ctx := context.Background()

	sub, err := seq.Subscribe(ctx, "t-1")
	require.NoError(t, err)

	seq.Observe("t-1", 1)
	require.NoError(t, seq.Publish(ctx, message("t-1", 2)))
	require.NoError(t, seq.Publish(ctx, message("t-1", 2)))
	assert.Equal(t, int64(2), receive(t, sub).Seq)
	assertNothing(t, sub)
}

func TestSequencerObserveIsFirstWriterWins(t *testing.T) {
	hub := NewHub(16, nil)
	seq := NewSequencer(hub, time.Minute, nil)
	ctx := context.Background()

	sub, err := seq.Subscribe(ctx, "t-1")
	require.NoError(t, err)

	seq.Observe("t-1", 1)
	seq.Observe("t-1", 2)
	require.NoError(t, seq.Publish(ctx, message("t-1", 3)))
	assertNothing(t, sub)
	require.NoError(t, seq.Publish(ctx, message("t-1", 2)))
	assert.Equal(t, int64(2), receive(t, sub).Seq)
	assert.Equal(t, int64(3), receive(t, sub).Seq)
}

func TestSequencerSkipsGapAfterTimeout(t *testing.T) {
	hub := NewHub(16, nil)
	seq := NewSequencer(hub, 30*time.Millisecond, nil)
	ctx := context.Background()

	sub, err := seq.Subscribe(ctx, "t-1")
	require.NoError(t, err)

	seq.Observe("t-1", 1)
	require.NoError(t, seq.Publish(ctx, message("t-1", 4)))
	require.NoError(t, seq.Publish(ctx, message("t-1", 3)))

	assert.Equal(t, int64(3), receive(t, sub).Seq)
	assert.Equal(t, int64(4), receive(t, sub).Seq)

	// The skipped Seq is now a late duplicate.
	require.NoError(t, seq.Publish(ctx, message("t-1", 2)))
	assertNothing(t, sub)
}

func TestSequencerConcurrentPublishesArriveInOrder(t *testing.T) {
	hub := NewHub(128, nil)
	seq := NewSequencer(hub, time.Minute, nil)
	ctx := context.Background()

	sub, err := seq.Subscribe(ctx, "t-1")
	require.NoError(t, err)
	seq.Observe("t-1", 1)

	const n = 50
	var wg sync.WaitGroup
	for i := int64(2); i < n+2; i++ {
		wg.Add(1)
		go func(s int64) {
			defer wg.Done()
			assert.NoError(t, seq.Publish(ctx, message("t-1", s)))
		}(i)
	}
	wg.Wait()

	for want := int64(2); want < n+2; want++ {
		assert.Equal(t, want, receive(t, sub).Seq)
	}
}

func TestSequencerForgetClosesSubscriptions(t *testing.T) {
	hub := NewHub(16, nil)
	seq := NewSequencer(hub, time.Minute, nil)
	ctx := context.Background()

	sub, err := seq.Subscribe(ctx, "t-1")
	require.NoError(t, err)
	seq.Observe("t-1", 1)
	require.NoError(t, seq.Publish(ctx, message("t-1", 3)))

	seq.Forget("t-1")
	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.ErrorIs(t, sub.Err(), ErrTicketDeleted)
}

func TestSequencerEvictsIdleTickets(t *testing.T) {
	hub := NewHub(16, nil)
	seq := NewSequencer(hub, time.Minute, nil, WithIdleTTL(5*time.Millisecond))
	ctx := context.Background()

	sub, err := seq.Subscribe(ctx, "t-1")
	require.NoError(t, err)
	seq.Observe("t-1", 0)
	require.NoError(t, seq.Publish(ctx, message("t-1", 1)))
	assert.Equal(t, int64(1), receive(t, sub).Seq)
	require.Equal(t, 1, seq.tracked())

	time.Sleep(20 * time.Millisecond)
	seq.Observe("t-2", 0)
	assert.Equal(t, 1, seq.tracked(), "idle ticket should be evicted")

	// An evicted ticket is seeded again by the next Observe.
	seq.Observe("t-1", 1)
	require.NoError(t, seq.Publish(ctx, message("t-1", 2)))
	assert.Equal(t, int64(2), receive(t, sub).Seq)
}

func TestSequencerIdleSweepKeepsHeldMessages(t *testing.T) {
	hub := NewHub(16, nil)
	seq := NewSequencer(hub, time.Minute, nil, WithIdleTTL(5*time.Millisecond))
	ctx := context.Background()

	sub, err := seq.Subscribe(ctx, "t-1")
	require.NoError(t, err)
	seq.Observe("t-1", 1)
	require.NoError(t, seq.Publish(ctx, message("t-1", 3)))

	time.Sleep(20 * time.Millisecond)
	seq.Observe("t-2", 0)
	assert.Equal(t, 2, seq.tracked())

	require.NoError(t, seq.Publish(ctx, message("t-1", 2)))
	assert.Equal(t, int64(2), receive(t, sub).Seq)
	assert.Equal(t, int64(3), receive(t, sub).Seq)
}

func TestSequencerRelease(t *testing.T) {
	hub := NewHub(16, nil)
	seq := NewSequencer(hub, 5*time.Millisecond, nil)
	ctx := context.Background()

	seq.Observe("busy", 1)
	require.NoError(t, seq.Publish(ctx, message("busy", 2)))
	seq.Release("busy")
	assert.Equal(t, 1, seq.tracked(), "recent activity keeps state")

	time.Sleep(20 * time.Millisecond)
	seq.Release("busy")
	assert.Equal(t, 0, seq.tracked())

	seq.Release("unknown")
	assert.Equal(t, 0, seq.tracked())
}

func TestSequencerForgetDropsState(t *testing.T) {
	seq := NewSequencer(NewHub(16, nil), time.Minute, nil)
	seq.Observe("t-1", 1)
	seq.Forget("t-1")
	assert.Equal(t, 0, seq.tracked())
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "tickets:abc:messages", Topic("abc"))
}

func TestRedisChannelRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ch := NewRedisChannel(client, 8, nil)
	ctx := context.Background()
	ticketID := "redis-" + time.Now().Format("150405.000000")

	sub, err := ch.Subscribe(ctx, ticketID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, ch.Publish(ctx, message(ticketID, 2)))
	got := receive(t, sub)
	assert.Equal(t, int64(2), got.Seq)
	assert.Equal(t, "hello", got.Body)

	sub.Close()
	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.NoError(t, sub.Err())
}

func TestRedisChannelCloseTicket(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ch := NewRedisChannel(client, 8, nil)
	ctx := context.Background()
	ticketID := "redis-close-" + time.Now().Format("150405.000000")

	first, err := ch.Subscribe(ctx, ticketID)
	require.NoError(t, err)
	second, err := ch.Subscribe(ctx, ticketID)
	require.NoError(t, err)
	other, err := ch.Subscribe(ctx, ticketID+"-other")
	require.NoError(t, err)
	defer other.Close()
	require.Equal(t, 2, ch.SubscriberCount(ticketID))

	// Through the Sequencer, as the service deletes tickets.
	NewSequencer(ch, time.Minute, nil).Forget(ticketID)

	for _, sub := range []*Subscription{first, second} {
		_, ok := <-sub.C()
		assert.False(t, ok)
		assert.ErrorIs(t, sub.Err(), ErrTicketDeleted)
	}
	assert.Equal(t, 0, ch.SubscriberCount(ticketID))
	assert.Equal(t, 1, ch.SubscriberCount(ticketID+"-other"))

	// Close after the ticket was closed is harmless.
	first.Close()
}

func TestRedisChannelContextCancel(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ch := NewRedisChannel(client, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	ticketID := "redis-cancel-" + time.Now().Format("150405.000000")

	sub, err := ch.Subscribe(ctx, ticketID)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.NoError(t, sub.Err())
	assert.Eventually(t, func() bool { return ch.SubscriberCount(ticketID) == 0 }, time.Second, 10*time.Millisecond)
}
