package pubsub

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 64

// Broker is a generic pub/sub event broker. Multiple subscribers receive
// every event published; slow subscribers drop events rather than block
// the publisher.
type Broker[T any] struct {
	mu         sync.RWMutex
	subs       map[chan Event[T]]struct{}
	done       chan struct{}
	bufferSize int
}

// NewBroker creates a broker with the default buffer size (64).
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a broker with a custom per-subscriber buffer.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	return &Broker[T]{
		subs:       make(map[chan Event[T]]struct{}),
		done:       make(chan struct{}),
		bufferSize: size,
	}
}

// Subscribe creates a new subscription channel. The channel is removed and
// closed when ctx is cancelled. Subscribing to a closed broker yields an
// already-closed channel.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed() {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	sub := make(chan Event[T], b.bufferSize)
	b.subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed() {
			return
		}
		delete(b.subs, sub)
		close(sub)
	}()

	return sub
}

// Publish sends an event to all subscribers. Non-blocking: an event is
// dropped for any subscriber whose buffer is full.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed() {
		return
	}

	event := Event[T]{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			// Buffer full, drop.
		}
	}
}

// Close shuts down the broker and all subscriber channels. Safe to call
// more than once.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed() {
		return
	}

	close(b.done)
	for sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// closed reports broker shutdown; callers hold b.mu.
func (b *Broker[T]) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
