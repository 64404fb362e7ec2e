package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventA EventType = iota
	testEventB
)

func receive[T any](t *testing.T, ch chan *Event[T]) *Event[T] {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPubSub_PublishSubscribe(t *testing.T) {
	p := NewPubSub()
	defer p.GracefulShutdown()

	t.Run("delivers typed payloads", func(t *testing.T) {
		ch := make(chan *Event[uint64], 1)
		Subscribe(p, testEventA, ch, SubscriptionOptions{})

		Publish(p, NewEvent(testEventA, uint64(42)))

		ev := receive(t, ch)
		assert.Equal(t, testEventA, ev.Type)
		assert.Equal(t, uint64(42), ev.Payload)
	})

	t.Run("fans out to every subscriber of a type", func(t *testing.T) {
		first := make(chan *Event[string], 1)
		second := make(chan *Event[string], 1)
		Subscribe(p, testEventB, first, SubscriptionOptions{})
		Subscribe(p, testEventB, second, SubscriptionOptions{})

		Publish(p, NewEvent(testEventB, "hello"))

		assert.Equal(t, "hello", receive(t, first).Payload)
		assert.Equal(t, "hello", receive(t, second).Payload)
	})
}

func TestPubSub_TypeMismatchIsNotDelivered(t *testing.T) {
	p := NewPubSub()
	defer p.GracefulShutdown()

	ch := make(chan *Event[string], 1)
	Subscribe(p, testEventA, ch, SubscriptionOptions{})

	Publish(p, NewEvent(testEventA, 7))
	Publish(p, NewEvent(testEventA, "ok"))

	assert.Equal(t, "ok", receive(t, ch).Payload)
}

func TestPubSub_NonBlockingSubscriberDropsWhenFull(t *testing.T) {
	p := NewPubSub()
	defer p.GracefulShutdown()

	ch := make(chan *Event[int], 1)
	Subscribe(p, testEventA, ch, SubscriptionOptions{IsBlocking: false})

	for i := 0; i < 5; i++ {
		Publish(p, NewEvent(testEventA, i))
	}

	assert.Eventually(t, func() bool { return p.Dropped() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, receive(t, ch).Payload)
}

func TestPubSub_Unsubscribe(t *testing.T) {
	p := NewPubSub()
	defer p.GracefulShutdown()

	ch := make(chan *Event[int], 1)
	id := Subscribe(p, testEventA, ch, SubscriptionOptions{})
	assert.Equal(t, 1, p.Subscribers(testEventA))

	p.Unsubscribe(testEventA, id)
	assert.Equal(t, 0, p.Subscribers(testEventA))

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")

	// unknown ids are ignored
	p.Unsubscribe(testEventA, id)
	p.Unsubscribe(testEventB, 12345)
}

func TestPubSub_GracefulShutdown(t *testing.T) {
	p := NewPubSub()

	ch := make(chan *Event[int], 4)
	Subscribe(p, testEventA, ch, SubscriptionOptions{IsBlocking: true})

	Publish(p, NewEvent(testEventA, 1))
	Publish(p, NewEvent(testEventA, 2))

	p.GracefulShutdown()
	// a second call must not block or panic
	p.GracefulShutdown()

	// drained events are still readable, then the channel is closed
	assert.Equal(t, 1, receive(t, ch).Payload)
	assert.Equal(t, 2, receive(t, ch).Payload)
	_, ok := <-ch
	assert.False(t, ok)

	// publishing after shutdown is a no-op
	Publish(p, NewEvent(testEventA, 3))
}
