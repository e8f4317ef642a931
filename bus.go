// bus.go: per-key notification bus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import (
	"sync"

	"github.com/google/uuid"
)

// subscriber is one registered callback.
type subscriber struct {
	id uuid.UUID
	fn func()
}

// notificationBus propagates "entry changed" events without payload.
// Subscribers re-read the store themselves.
type notificationBus struct {
	mu   sync.Mutex
	subs map[string][]subscriber
}

func newNotificationBus() *notificationBus {
	return &notificationBus{subs: make(map[string][]subscriber)}
}

// subscribe appends fn to key's subscribers and returns its handle.
// It reports whether key was unobserved before the call.
func (b *notificationBus) subscribe(key string, fn func()) (id uuid.UUID, first bool) {
	id = uuid.New()

	b.mu.Lock()
	defer b.mu.Unlock()

	first = len(b.subs[key]) == 0
	b.subs[key] = append(b.subs[key], subscriber{id: id, fn: fn})
	return id, first
}

// unsubscribe removes the handle. It reports whether this emptied the
// subscriber list of key. Unknown handles are ignored.
func (b *notificationBus) unsubscribe(key string, id uuid.UUID) (nowEmpty bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[key]
	for i, s := range list {
		if s.id != id {
			continue
		}
		// copy so a notify iterating the old slice is unaffected
		next := make([]subscriber, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, key)
			return true
		}
		b.subs[key] = next
		return false
	}
	return false
}

// notify invokes every callback for key synchronously, in registration
// order, outside the bus lock. A panicking callback is not recovered.
func (b *notificationBus) notify(key string) {
	b.mu.Lock()
	list := b.subs[key]
	b.mu.Unlock()

	for _, s := range list {
		s.fn()
	}
}

// isObserved reports whether key has at least one subscriber.
func (b *notificationBus) isObserved(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs[key]) > 0
}

// observedKeys returns every key with subscribers.
func (b *notificationBus) observedKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, 0, len(b.subs))
	for key := range b.subs {
		keys = append(keys, key)
	}
	return keys
}

// reset drops every subscription.
func (b *notificationBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = make(map[string][]subscriber)
}
