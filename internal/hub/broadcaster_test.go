// ABOUTME: Tests for the hub event broadcaster fan-out
// ABOUTME: Covers subscribe, publish, unsubscribe, context cancellation, concurrency

package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_SingleSubscriberReceivesEvent(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context())

	b.Publish(Event{Kind: KindListChanged})

	select {
	case received := <-ch:
		assert.Equal(t, KindListChanged, received.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcaster_AllSubscribersReceiveEveryEvent(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context())
	ch2, _ := b.Subscribe(t.Context())
	ch3, _ := b.Subscribe(t.Context())

	b.Publish(Event{Kind: KindTyping})

	for i, ch := range []<-chan Event{ch1, ch2, ch3} {
		select {
		case received := <-ch:
			assert.Equal(t, KindTyping, received.Kind, "subscriber %d got wrong event", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context())
	b.Unsubscribe(subID)

	_, open := <-ch
	assert.False(t, open, "channel should be closed after unsubscribe")

	// Publishing after unsubscribe must not panic
	b.Publish(Event{Kind: KindSeen})
}

func TestBroadcaster_ContextCancellationUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())
	ch, _ := b.Subscribe(ctx)
	cancel()

	// The cleanup goroutine closes the channel shortly after cancellation
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancellation")
	}
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context())

	// Overfill the buffer; Publish must return promptly every time
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(Event{Kind: KindListChanged})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The buffer holds at most subscriberBufferSize events
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_PublishDuringTeardownDoesNotPanic(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	// Session teardown unsubscribes while inbound events keep arriving;
	// a publish must never hit a just-closed channel.
	subIDs := make([]string, 0, 2000)
	for i := 0; i < 2000; i++ {
		_, subID := b.Subscribe(context.Background())
		subIDs = append(subIDs, subID)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			b.Publish(Event{Kind: KindListChanged})
		}
	}()

	for _, subID := range subIDs {
		b.Unsubscribe(subID)
	}
	<-done
}

func TestBroadcaster_ConcurrentSubscribePublish(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch, subID := b.Subscribe(context.Background())
			_ = ch
			b.Unsubscribe(subID)
		}()
		go func() {
			defer wg.Done()
			b.Publish(Event{Kind: KindUserOnline, UserID: "u"})
		}()
	}
	wg.Wait()
}

func TestBroadcaster_CloseClosesAllChannels(t *testing.T) {
	b := NewBroadcaster(nil)

	ch1, _ := b.Subscribe(context.Background())
	ch2, _ := b.Subscribe(context.Background())
	b.Close()

	_, open1 := <-ch1
	_, open2 := <-ch2
	assert.False(t, open1)
	assert.False(t, open2)
}
