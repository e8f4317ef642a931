// signals.go: environment signal sources
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import (
	"sync"

	"github.com/google/uuid"
)

// NoOpSignal never emits. Used as default for servers and other hosts
// without focus or connectivity events.
type NoOpSignal struct{}

// Subscribe does nothing and returns a no-op cancel function.
func (NoOpSignal) Subscribe(fn func()) (cancel func()) {
	return func() {}
}

// ManualSignal is a Signal emitted by calling Emit. Hosts wire their own
// detection (a health check, an OS signal, a UI event) to it.
type ManualSignal struct {
	mu   sync.Mutex
	subs map[uuid.UUID]func()
}

// NewManualSignal creates a signal with no subscribers.
func NewManualSignal() *ManualSignal {
	return &ManualSignal{subs: make(map[uuid.UUID]func())}
}

// Subscribe registers fn for every later Emit.
func (s *ManualSignal) Subscribe(fn func()) (cancel func()) {
	id := uuid.New()

	s.mu.Lock()
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Emit calls every subscriber synchronously.
func (s *ManualSignal) Emit() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Subscribers returns the number of registered subscribers.
func (s *ManualSignal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
