// lifecycle.go: per-consumer query bindings
//
// A Query binds one consumer to one key. It decides when to fetch (bind,
// staleness, explicit refetch, polling, environment triggers) and cleans up
// on Close, arming the eviction grace timer when it was the last subscriber.
// It never writes to the store; fetches go through the coordinator.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package fresco

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// trigger identifies an environment event.
type trigger int

const (
	triggerFocus trigger = iota
	triggerReconnect
)

func (t trigger) String() string {
	if t == triggerFocus {
		return "focus"
	}
	return "reconnect"
}

// Query is a live binding of one consumer to one key.
// All methods are safe for concurrent use.
type Query struct {
	engine *Engine
	key    string
	fetch  FetchFunc
	opts   QueryOptions

	// misuse error reported through Snapshot; a query with one is never bound
	err error

	subID uuid.UUID

	mu        sync.Mutex
	closed    bool
	pollTimer Timer
	pollGen   uint64
	listeners []listener
}

type listener struct {
	id uuid.UUID
	fn func(Snapshot)
}

// Key returns the bound key.
func (q *Query) Key() string {
	return q.key
}

// Options returns the effective options of the binding.
func (q *Query) Options() QueryOptions {
	return q.opts
}

// bind subscribes the query and runs the first-bind transition.
func (q *Query) bind() {
	e := q.engine
	q.subID, _ = e.bus.subscribe(q.key, q.onChange)
	if e.store.cancelEviction(q.key) {
		e.logger.Debug("eviction cancelled by rebind", "key", q.key)
	}

	if q.opts.HasInitialData && e.store.seed(q.key, q.opts.InitialData, e.now()) {
		e.bus.notify(q.key)
	}

	if q.opts.Enabled && !e.isFresh(q.key, q.opts.StaleTime) {
		q.request()
	}
	q.schedulePoll()
}

// request asks the coordinator for a fetch of the bound key.
func (q *Query) request() *fetchCall {
	return q.engine.fetcher.fetch(q.key, q.fetch, q.opts)
}

// onChange is the bus callback of the binding.
func (q *Query) onChange() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	listeners := q.listeners
	q.mu.Unlock()

	e := q.engine
	entry, ok, pending := e.store.view(q.key)
	if !ok && !pending && q.opts.Enabled {
		// the entry was invalidated under a bound consumer
		e.logger.Debug("refetching invalidated key", "key", q.key)
		q.request()
		return
	}

	if len(listeners) == 0 {
		return
	}
	snap := newSnapshot(entry, ok, pending)
	for _, l := range listeners {
		l.fn(snap)
	}
}

// Snapshot returns the current view of the bound key.
func (q *Query) Snapshot() Snapshot {
	if q.err != nil {
		return Snapshot{Err: q.err, State: StateIdle}
	}
	return q.engine.Snapshot(q.key)
}

// Subscribe registers fn to receive a snapshot on every change of the key.
// fn runs synchronously on the goroutine that changed the entry.
func (q *Query) Subscribe(fn func(Snapshot)) (cancel func()) {
	id := uuid.New()

	q.mu.Lock()
	q.listeners = append(q.listeners, listener{id: id, fn: fn})
	q.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			next := make([]listener, 0, len(q.listeners))
			for _, l := range q.listeners {
				if l.id != id {
					next = append(next, l)
				}
			}
			q.listeners = next
		})
	}
}

// Refetch forces a fetch of the bound key, even when disabled or fresh,
// and waits for it. Cached data stays visible while it runs.
func (q *Query) Refetch(ctx context.Context) error {
	if q.err != nil {
		return q.err
	}
	if q.engine.isClosed() {
		return NewErrEngineClosed("Refetch")
	}
	_, err := q.request().wait(ctx)
	return err
}

// Wait blocks until no fetch is pending for the bound key and returns the
// error of the last call it waited for.
func (q *Query) Wait(ctx context.Context) error {
	if q.err != nil {
		return q.err
	}
	return q.engine.wait(ctx, q.key)
}

// Mutate applies an optimistic update to the bound key.
func (q *Query) Mutate(fn Updater) error {
	if q.err != nil {
		return q.err
	}
	return q.engine.Mutate(q.key, fn)
}

// trigger handles an environment event.
func (q *Query) trigger(t trigger) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed || !q.opts.Enabled {
		return
	}

	checkStale := false
	switch t {
	case triggerFocus:
		if !q.opts.RefetchOnFocus {
			return
		}
		checkStale = !q.opts.FocusIgnoresStaleTime
	case triggerReconnect:
		if !q.opts.RefetchOnReconnect {
			return
		}
		checkStale = q.opts.ReconnectRespectsStaleTime
	}
	if checkStale && q.engine.isFresh(q.key, q.opts.StaleTime) {
		return
	}
	q.engine.logger.Debug("environment refetch", "key", q.key, "trigger", t.String())
	q.request()
}

// schedulePoll arms the next polling tick.
func (q *Query) schedulePoll() {
	if q.opts.RefetchInterval <= 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.pollGen++
	gen := q.pollGen
	q.pollTimer = q.engine.scheduler.AfterFunc(q.opts.RefetchInterval, func() { q.poll(gen) })
}

// poll runs one polling tick and re-arms the timer.
func (q *Query) poll(gen uint64) {
	q.mu.Lock()
	if q.closed || q.pollGen != gen {
		q.mu.Unlock()
		return
	}
	q.pollTimer = nil
	q.mu.Unlock()

	if q.opts.Enabled {
		q.request()
	}
	q.schedulePoll()
}

// Close unbinds the consumer. When it was the last subscriber of the key
// the eviction grace timer starts. Close is idempotent.
func (q *Query) Close() {
	if q.err != nil {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.listeners = nil
	if q.pollTimer != nil {
		q.pollTimer.Stop()
		q.pollTimer = nil
	}
	q.pollGen++
	q.mu.Unlock()

	e := q.engine
	e.untrack(q)
	if e.bus.unsubscribe(q.key, q.subID) {
		e.scheduleEviction(q.key, q.opts.CacheTime)
	}
}

// detach closes the query without arming eviction, used by Reset.
func (q *Query) detach() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.listeners = nil
	if q.pollTimer != nil {
		q.pollTimer.Stop()
		q.pollTimer = nil
	}
	q.pollGen++
}
