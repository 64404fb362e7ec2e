package pubsub

import (
	"log"
	"sync"
	"sync/atomic"
)

// EventType is the type of event subscribers are listening for. Packages using the bus declare their own constants
// of this type.
type EventType int

// SubscriptionOptions configures the behavior of a subscription.
type SubscriptionOptions struct {
	// If true, the broker will block to deliver an event to this subscriber's channel if it's full or unbuffered.
	// This guarantees delivery but can stall the whole bus behind one slow reader, so it should generally be false.
	IsBlocking bool
}

// SubscriberID is a unique identifier for a single subscription instance.
// It is returned upon subscribing and is required to unsubscribe.
type SubscriberID uint64

var nextSubscriberID uint64

// Event is a generic event with compile-time type safety for payloads.
type Event[T any] struct {
	Type    EventType
	Payload T
}

func NewEvent[T any](eventType EventType, payload T) *Event[T] {
	return &Event[T]{
		Type:    eventType,
		Payload: payload,
	}
}

// subscriber is the type-erased registry entry for one typed channel. The closures capture the concrete
// chan *Event[T], which lets subscribers of different payload types share a single registry map.
type subscriber struct {
	// sendFunc delivers a payload to the captured channel. It returns false when the payload has the wrong type or
	// the channel is full and the subscription is non-blocking.
	sendFunc  func(eventType EventType, payload any) bool
	closeFunc func()

	Options    SubscriptionOptions
	NumDropped uint64 // atomically updated
}

type published struct {
	eventType EventType
	payload   any
}

// PubSubClient is a thread-safe, in-process publish/subscribe broker. Publish only enqueues; a single broker
// goroutine fans events out to subscribers.
type PubSubClient struct {
	mu sync.RWMutex
	// Used to wait for the run() goroutine to finish
	wg sync.WaitGroup

	registry map[EventType]map[SubscriberID]*subscriber

	// publishChan decouples publishers from the fan-out loop. It is buffered so that Publish returns immediately
	// while the broker is busy, and so that in-flight events can be drained on shutdown.
	publishChan chan published

	shuttingDown atomic.Bool
	// dropped counts events lost to full non-blocking subscriber channels, across all subscribers.
	dropped atomic.Uint64
}

// Subscribe registers ch for events of eventType. The caller owns the channel's buffer size. The channel is closed
// by Unsubscribe.
//
// Go does not allow methods with their own type parameters, hence the free function taking the client first.
func Subscribe[T any](p *PubSubClient, eventType EventType, ch chan *Event[T], opts SubscriptionOptions) SubscriberID {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := SubscriberID(atomic.AddUint64(&nextSubscriberID, 1))

	sub := &subscriber{
		Options: opts,
		sendFunc: func(evType EventType, payload any) bool {
			typedPayload, ok := payload.(T)
			if !ok {
				log.Printf("[PubSubClient] Warning: Type mismatch for event %v. Expected %T, got %T",
					evType, *new(T), payload)
				return false
			}

			event := &Event[T]{
				Type:    evType,
				Payload: typedPayload,
			}

			if opts.IsBlocking {
				ch <- event
				return true
			}
			select {
			case ch <- event:
				return true
			default:
				return false
			}
		},
		closeFunc: func() {
			close(ch)
		},
	}

	if _, ok := p.registry[eventType]; !ok {
		p.registry[eventType] = make(map[SubscriberID]*subscriber)
	}
	p.registry[eventType][id] = sub
	return id
}

// Unsubscribe removes a subscriber for a given event type and closes its channel. Unknown ids are ignored.
func (p *PubSubClient) Unsubscribe(eventType EventType, id SubscriberID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subscribers, ok := p.registry[eventType]
	if !ok {
		return
	}
	sub, ok := subscribers[id]
	if !ok {
		return
	}

	delete(subscribers, id)
	// Safe: the broker only sends while holding the read lock, and the subscriber is no longer registered.
	sub.closeFunc()

	if len(subscribers) == 0 {
		delete(p.registry, eventType)
	}
}

// Subscribers returns the number of live subscriptions for eventType.
func (p *PubSubClient) Subscribers(eventType EventType) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.registry[eventType])
}

// Dropped returns how many events were dropped because a non-blocking subscriber's channel was full.
func (p *PubSubClient) Dropped() uint64 {
	return p.dropped.Load()
}

// Publish enqueues an event for broadcast. Events published after shutdown has begun are dropped.
func Publish[T any](p *PubSubClient, event *Event[T]) {
	// Holding the read lock keeps a concurrent shutdown from closing publishChan between the check and the send.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.shuttingDown.Load() {
		return
	}

	p.publishChan <- published{
		eventType: event.Type,
		payload:   event.Payload,
	}
}

// GracefulShutdown rejects new publishes, drains the queue and waits for the broker to exit. It is idempotent and
// closes every remaining subscriber channel.
func (p *PubSubClient) GracefulShutdown() {
	p.mu.Lock()
	if p.shuttingDown.Load() {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}

	p.shuttingDown.Store(true)
	close(p.publishChan)
	p.mu.Unlock() // the broker needs the read lock to drain

	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for eventType, subscribers := range p.registry {
		for _, sub := range subscribers {
			sub.closeFunc()
		}
		delete(p.registry, eventType)
	}
}

func (p *PubSubClient) run() {
	defer p.wg.Done()

	for msg := range p.publishChan {
		p.mu.RLock()
		for id, sub := range p.registry[msg.eventType] {
			if sent := sub.sendFunc(msg.eventType, msg.payload); !sent && !sub.Options.IsBlocking {
				n := atomic.AddUint64(&sub.NumDropped, 1)
				p.dropped.Add(1)
				if n == 1 || n%1000 == 0 {
					log.Printf("[PubSubClient] Dropped event %v for subscriber %d (channel full). Total dropped: %d",
						msg.eventType, id, n)
				}
			}
		}
		p.mu.RUnlock()
	}
}

func NewPubSub() *PubSubClient {
	p := &PubSubClient{
		registry:    make(map[EventType]map[SubscriberID]*subscriber),
		publishChan: make(chan published, 256),
	}

	p.wg.Add(1)
	go p.run()

	return p
}
