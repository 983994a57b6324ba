// Package pubsub provides a generic publish/subscribe event system.
package pubsub

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 64

// EventType represents the type of event being published.
type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Event represents a published event with a typed payload.
// Seq increases by one per Publish call on the same broker.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Seq       uint64
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

// Option configures a Broker.
type Option func(*options)

type options struct {
	bufferSize int
	evictSlow  bool
}

// WithBuffer sets the per-subscriber channel buffer.
func WithBuffer(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithSlowSubscriberEviction closes a subscriber's channel when it is full instead of
// dropping the event for that subscriber. Subscribers that must not miss events (state
// snapshots) observe the closed channel and resubscribe from a fresh snapshot.
func WithSlowSubscriberEviction() Option {
	return func(o *options) { o.evictSlow = true }
}

// Broker is a generic pub/sub event broker.
type Broker[T any] struct {
	subs map[chan Event[T]]struct{}
	mu   sync.RWMutex
	done chan struct{}
	seq  uint64
	opts options
}

// NewBroker creates a new broker. Defaults to a 64-event buffer that drops on overflow.
func NewBroker[T any](opts ...Option) *Broker[T] {
	o := options{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broker[T]{
		subs: make(map[chan Event[T]]struct{}),
		done: make(chan struct{}),
		opts: o,
	}
}

// NewBrokerWithBuffer creates a new broker with a custom buffer size.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	return NewBroker[T](WithBuffer(size))
}

// Subscribe creates a new subscription channel.
// The channel is closed when ctx is cancelled, the broker closes, or (with eviction) the
// subscriber falls behind.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := make(chan Event[T], b.opts.bufferSize)
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		b.removeLocked(sub)
	}()

	return sub
}

// removeLocked closes sub if it is still registered. Caller holds b.mu.
func (b *Broker[T]) removeLocked(sub chan Event[T]) {
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub)
}

// Publish sends an event to all subscribers without blocking.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}

	b.seq++
	event := Event[T]{
		Type:      eventType,
		Payload:   payload,
		Seq:       b.seq,
		Timestamp: time.Now(),
	}

	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			if b.opts.evictSlow {
				b.removeLocked(sub)
			}
		}
	}
}

// Send delivers an event to the single subscriber reading from sub, in sequence with
// everything Publish sends it. Returns false if sub is not (or no longer) subscribed,
// or was evicted because it is full.
func (b *Broker[T]) Send(sub <-chan Event[T], eventType EventType, payload T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	var target chan Event[T]
	for s := range b.subs {
		if s == sub {
			target = s
			break
		}
	}
	if target == nil {
		return false
	}

	b.seq++
	event := Event[T]{
		Type:      eventType,
		Payload:   payload,
		Seq:       b.seq,
		Timestamp: time.Now(),
	}
	select {
	case target <- event:
		return true
	default:
		if b.opts.evictSlow {
			b.removeLocked(target)
		}
		return false
	}
}

// Close shuts down the broker and all subscriber channels.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}

	close(b.done)
	for sub := range b.subs {
		close(sub)
	}
	b.subs = map[chan Event[T]]struct{}{}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
