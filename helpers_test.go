// helpers_test.go: fake clock and fetch helpers shared by the tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a TimeProvider and Scheduler driven by Advance.
// Timers fire on the goroutine calling Advance, never inside AfterFunc.
type fakeClock struct {
	mu     sync.Mutex
	now    int64
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      int64
	f       func()
	done    bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()}
}

func (c *fakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now + int64(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + int64(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.done || t.stopped || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.compactLocked()
			c.mu.Unlock()
			return
		}
		if next.at > c.now {
			c.now = next.at
		}
		next.done = true
		c.mu.Unlock()

		next.f()
	}
}

func (c *fakeClock) compactLocked() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.done && !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
}

// active returns the number of armed timers.
func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.done && !t.stopped {
			n++
		}
	}
	return n
}

// testFetcher counts invocations and can hold them on a gate.
type testFetcher struct {
	calls int64

	mu     sync.Mutex
	gate   chan struct{}
	result func(n int64) (any, error)
}

func newTestFetcher(result func(n int64) (any, error)) *testFetcher {
	if result == nil {
		result = func(n int64) (any, error) { return n, nil }
	}
	return &testFetcher{result: result}
}

func (f *testFetcher) fetch(ctx context.Context) (any, error) {
	n := atomic.AddInt64(&f.calls, 1)

	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result(n)
}

// hold makes later invocations block until release.
func (f *testFetcher) hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

func (f *testFetcher) release() {
	f.mu.Lock()
	gate := f.gate
	f.gate = nil
	f.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (f *testFetcher) count() int64 {
	return atomic.LoadInt64(&f.calls)
}

var errBoom = errors.New("boom")

// newTestEngine creates an engine on a fake clock with retries disabled.
func newTestEngine(t *testing.T, configure ...func(*Config)) (*Engine, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.TimeProvider = clock
	cfg.Scheduler = clock
	cfg.Defaults.Retry = RetryCount(0)
	for _, fn := range configure {
		fn(&cfg)
	}

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e, clock
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func mustWait(t *testing.T, q *Query) {
	t.Helper()
	_ = q.Wait(testContext(t))
	if p := q.engine.store.pendingCall(q.key); p != nil {
		t.Fatalf("fetch still pending for %q", q.key)
	}
}
