// fetch.go: fetch coordination with deduplication and retry
//
// This file implements the fetch coordinator: one fetch call per key at a
// time, shared by every request that arrives while it runs, retried
// according to the request's policy and written back through the store.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package fresco

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fetchCall is the pending operation for one key. done is closed once the
// result is written, broadcasting to every waiter.
type fetchCall struct {
	key  string
	fn   FetchFunc
	opts QueryOptions
	done chan struct{}

	// final result, written before done is closed
	data any
	err  error

	mu        sync.Mutex
	sealed    bool
	onSuccess []func(string, any)
	onError   []func(string, error)
	next      *fetchCall // queued run for requests that opted out of dedup
}

func newFetchCall(key string, fn FetchFunc, opts QueryOptions) *fetchCall {
	call := &fetchCall{
		key:  key,
		fn:   fn,
		opts: opts,
		done: make(chan struct{}),
	}
	call.addCallbacks(opts)
	return call
}

func (c *fetchCall) addCallbacks(opts QueryOptions) {
	if opts.OnSuccess != nil {
		c.onSuccess = append(c.onSuccess, opts.OnSuccess)
	}
	if opts.OnError != nil {
		c.onError = append(c.onError, opts.OnError)
	}
}

// join attaches a request to the call. With dedupe the request shares this
// call; without it the request shares the queued follow-up run. It returns
// nil when the call is already settling and the caller must try again.
func (c *fetchCall) join(fn FetchFunc, opts QueryOptions) (target *fetchCall, queued bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return nil, false
	}
	if opts.Dedupe {
		c.addCallbacks(opts)
		return c, false
	}
	if c.next == nil {
		c.next = newFetchCall(c.key, fn, opts)
		return c.next, true
	}
	c.next.addCallbacks(opts)
	return c.next, false
}

// seal stops further joins and returns the queued follow-up, if any.
func (c *fetchCall) seal() *fetchCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sealed = true
	return c.next
}

func (c *fetchCall) callbacks() ([]func(string, any), []func(string, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.onSuccess, c.onError
}

// wait blocks until the call settles or ctx is done.
func (c *fetchCall) wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.data, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// engineCounters are the atomic statistics shared by the engine parts.
type engineCounters struct {
	fetches       int64
	fetchErrors   int64
	retries       int64
	dedups        int64
	mutations     int64
	invalidations int64
	evictions     int64
}

// fetchCoordinator runs fetch calls. It writes only through the store.
type fetchCoordinator struct {
	store     *cacheStore
	bus       *notificationBus
	logger    Logger
	clock     TimeProvider
	scheduler Scheduler
	metrics   MetricsCollector
	counters  *engineCounters

	// afterWrite runs after every settled write (eviction scheduling, size bound)
	afterWrite func(key string, cacheTime time.Duration)

	ctxMu  sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func (f *fetchCoordinator) context() context.Context {
	f.ctxMu.RLock()
	defer f.ctxMu.RUnlock()
	return f.ctx
}

// restart cancels every running fetch context and starts a new one.
func (f *fetchCoordinator) restart(parent context.Context) {
	f.ctxMu.Lock()
	defer f.ctxMu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	if parent == nil {
		parent = context.Background()
	}
	f.ctx, f.cancel = context.WithCancel(parent)
}

// stop cancels every running fetch context for good.
func (f *fetchCoordinator) stop() {
	f.ctxMu.Lock()
	defer f.ctxMu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
}

// fetch starts a call for key or attaches to the one in flight.
// The returned call settles once the result is in the store and
// subscribers were notified.
func (f *fetchCoordinator) fetch(key string, fn FetchFunc, opts QueryOptions) *fetchCall {
	call := newFetchCall(key, fn, opts)
	for {
		actual, started := f.store.setPending(key, call)
		if started {
			atomic.AddInt64(&f.counters.fetches, 1)
			f.logger.Debug("fetch started", "key", key)
			f.start(call)
			return call
		}
		target, queued := actual.join(fn, opts)
		if target == nil {
			continue
		}
		if queued {
			f.logger.Debug("fetch queued behind in-flight call", "key", key)
		} else {
			atomic.AddInt64(&f.counters.dedups, 1)
			f.metrics.RecordDedup()
			f.logger.Debug("fetch deduplicated", "key", key)
		}
		return target
	}
}

// start notifies subscribers that the key is loading and runs the call
// under the current fetch context.
func (f *fetchCoordinator) start(call *fetchCall) {
	ctx := f.context()
	f.bus.notify(call.key)
	go f.run(ctx, call)
}

// run executes the attempt sequence of call.
func (f *fetchCoordinator) run(ctx context.Context, call *fetchCall) {
	begin := f.clock.Now()
	attempt := 0

	for {
		data, err := f.invoke(ctx, call)
		if ctx.Err() != nil {
			f.abort(call, NewErrFetchCancelled(call.key))
			return
		}
		if err == nil {
			f.settle(call, begin, data, nil)
			return
		}
		attempt++

		if f.abandoned(call.key) {
			f.logger.Debug("retries stopped for evicted key", "key", call.key, "attempt", attempt)
			f.settle(call, begin, nil, NewErrFetchFailed(call.key, attempt, err))
			return
		}
		if !call.opts.Retry.ShouldRetry(attempt, err) {
			f.settle(call, begin, nil, NewErrFetchFailed(call.key, attempt, err))
			return
		}

		delay := call.opts.RetryDelay.Delay(attempt, err)
		atomic.AddInt64(&f.counters.retries, 1)
		f.metrics.RecordRetry(attempt)
		f.logger.Debug("retrying fetch", "key", call.key, "attempt", attempt, "delay", delay, "error", err)

		if !f.sleep(ctx, delay) {
			f.abort(call, NewErrFetchCancelled(call.key))
			return
		}
	}
}

// invoke calls the fetch function with panic recovery.
func (f *fetchCoordinator) invoke(ctx context.Context, call *fetchCall) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewErrPanicRecovered("fetch:"+call.key, r)
			f.logger.Error("fetch function panicked", "key", call.key, "panic", r)
		}
	}()
	return call.fn(ctx)
}

// requeue marks call for one more run with its own fetch function once its
// attempt sequence settles. It runs under the store lock while call still
// holds the slot, so call cannot be sealed yet.
func (f *fetchCoordinator) requeue(call *fetchCall) {
	opts := call.opts
	opts.Dedupe = false
	opts.OnSuccess, opts.OnError = nil, nil
	call.join(call.fn, opts)
}

// abandoned reports whether the key was evicted while the call ran and
// nobody is bound to it anymore.
func (f *fetchCoordinator) abandoned(key string) bool {
	return f.store.isOrphaned(key) && !f.bus.isObserved(key)
}

// sleep waits d on the scheduler. It returns false if ctx ends first.
func (f *fetchCoordinator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	fired := make(chan struct{})
	timer := f.scheduler.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return true
	case <-ctx.Done():
		timer.Stop()
		return false
	}
}

// settle writes the final outcome of call, hands the slot to a queued
// follow-up, notifies subscribers and runs the callbacks.
func (f *fetchCoordinator) settle(call *fetchCall, begin int64, data any, err error) {
	now := f.clock.Now()
	if err == nil {
		f.store.set(call.key, data, true, nil, now)
	} else {
		f.store.fail(call.key, err, now)
		atomic.AddInt64(&f.counters.fetchErrors, 1)
		f.logger.Warn("fetch failed", "key", call.key, "error", err)
	}
	f.metrics.RecordFetch(now-begin, err == nil)

	next := f.release(call)
	f.afterWrite(call.key, call.opts.CacheTime)
	f.bus.notify(call.key)

	onSuccess, onError := call.callbacks()
	if err == nil {
		for _, cb := range onSuccess {
			cb(call.key, data)
		}
	} else {
		for _, cb := range onError {
			cb(call.key, err)
		}
	}

	call.data, call.err = data, err
	close(call.done)

	if next != nil {
		atomic.AddInt64(&f.counters.fetches, 1)
		f.logger.Debug("queued fetch started", "key", call.key)
		f.start(next)
	}
}

// release frees the slot of call and returns the follow-up that took it
// over. A follow-up that could not take the slot (the store was reset) is
// aborted.
func (f *fetchCoordinator) release(call *fetchCall) *fetchCall {
	next := f.store.releasePending(call.key, call, call.seal)
	if queued := call.seal(); queued != nil && next == nil {
		f.abort(queued, NewErrFetchCancelled(call.key))
	}
	return next
}

// abort ends call without writing, used when the engine went away.
func (f *fetchCoordinator) abort(call *fetchCall, err error) {
	next := f.release(call)
	call.data, call.err = nil, err
	close(call.done)
	if next != nil {
		f.abort(next, err)
	}
}
