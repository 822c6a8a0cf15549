// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pubsub provides the explicit publish/subscribe registry used
// for session lifecycle events, per-session output streams, and the
// coordinator feed. There is no global bus: every event source owns its
// hub, constructed where the source is constructed, and subscribers
// hold an explicit cancel function.
package pubsub

import "sync"

// Hub fans values out to subscribers in registration order. A Hub is
// safe for concurrent use. Ordering across Publish calls is the
// caller's concern: publishing from a single goroutine per source
// preserves that source's event order for every subscriber.
type Hub[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id       uint64
	callback func(T)
}

// NewHub returns an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{}
}

// Subscribe registers callback and returns a cancel function that
// removes it. Cancel is idempotent and deterministic: after it
// returns, the callback will not be invoked by any later Publish.
// A Publish already in flight on another goroutine may still invoke
// the callback once.
func (h *Hub[T]) Subscribe(callback func(T)) (cancel func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscriber[T]{id: id, callback: callback})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.subs {
			if sub.id == id {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every subscribed callback with v, in registration
// order. Callbacks run outside the hub lock, so they may subscribe or
// cancel without deadlocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	snapshot := make([]subscriber[T], len(h.subs))
	copy(snapshot, h.subs)
	h.mu.Unlock()

	for _, sub := range snapshot {
		sub.callback(v)
	}
}

// Len returns the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Buffer adapts a hub's synchronous callback to a buffered channel
// for consumers that drain on their own schedule. Deliver never
// blocks the publisher: the first overflow closes the channel, which
// tells the consumer it fell behind and must resynchronize from
// authoritative state instead of assuming a gapless stream.
type Buffer[T any] struct {
	mu   sync.Mutex
	ch   chan T
	dead bool
}

// NewBuffer returns a Buffer with the given channel capacity.
func NewBuffer[T any](capacity int) *Buffer[T] {
	return &Buffer[T]{ch: make(chan T, capacity)}
}

// C is the consumer's receive channel. It is closed on overflow and
// by Close.
func (b *Buffer[T]) C() <-chan T { return b.ch }

// Deliver hands v to the consumer without blocking. It reports
// whether this call overflowed the buffer and closed the channel.
func (b *Buffer[T]) Deliver(v T) (overflowed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dead {
		return false
	}
	select {
	case b.ch <- v:
		return false
	default:
		b.dead = true
		close(b.ch)
		return true
	}
}

// Close closes the channel unless an overflow already has. Idempotent.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dead {
		b.dead = true
		close(b.ch)
	}
}
