// Package stream provides the small set of reactive primitives the cart uses:
// a latest-value broadcaster and combinators over its subscription channels.
//
// Every channel handed out by this package has a buffer of one and conflates:
// a slow reader only ever sees the newest value, never a backlog.
package stream

import (
	"context"
	"sync"
)

// Option configures a Broadcaster.
type Option[T any] func(*Broadcaster[T])

// WithEqual suppresses Publish calls whose value equals the current one.
func WithEqual[T any](eq func(a, b T) bool) Option[T] {
	return func(b *Broadcaster[T]) {
		b.equal = eq
	}
}

// WithInitial seeds the broadcaster so the first subscriber gets a value
// immediately.
func WithInitial[T any](value T) Option[T] {
	return func(b *Broadcaster[T]) {
		b.value = value
		b.hasValue = true
	}
}

// Broadcaster fans the latest published value out to any number of
// context-scoped subscribers.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	value    T
	hasValue bool
	equal    func(a, b T) bool
	subs     map[chan T]struct{}
	closed   bool
}

// NewBroadcaster builds an empty broadcaster.
func NewBroadcaster[T any](opts ...Option[T]) *Broadcaster[T] {
	b := &Broadcaster[T]{subs: make(map[chan T]struct{})}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Publish records value as current and offers it to every subscriber. It
// reports whether the value was delivered (false when closed or deduplicated).
func (b *Broadcaster[T]) Publish(value T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if b.hasValue && b.equal != nil && b.equal(b.value, value) {
		return false
	}
	b.value = value
	b.hasValue = true
	for ch := range b.subs {
		offer(ch, value)
	}
	return true
}

// Subscribe returns a channel that first carries the current value (if any)
// and then every later value, conflated. The channel is closed when ctx ends
// or the broadcaster is closed.
func (b *Broadcaster[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	if b.hasValue {
		ch <- b.value
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch)
	}()

	return ch
}

// Value returns the current value and whether one has been published.
func (b *Broadcaster[T]) Value() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.hasValue
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later subscriptions are closed
// immediately.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}

func (b *Broadcaster[T]) unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// offer replaces any pending value in ch with value. The caller must be the
// only sender on ch.
func offer[T any](ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
