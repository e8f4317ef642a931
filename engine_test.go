// engine_test.go: behavioural tests for the engine API
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

func TestEngine_ConcurrentQueriesShareOneFetch(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(func(n int64) (any, error) { return "user-1", nil })
	f.hold()

	const consumers = 10
	queries := make([]*Query, 0, consumers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := e.Query("user:1", f.fetch)
			mu.Lock()
			queries = append(queries, q)
			mu.Unlock()
		}()
	}
	wg.Wait()

	f.release()
	for _, q := range queries {
		mustWait(t, q)
	}

	if got := f.count(); got != 1 {
		t.Fatalf("expected 1 fetch invocation, got %d", got)
	}
	if stats := e.Stats(); stats.Dedups != consumers-1 {
		t.Errorf("expected %d dedups, got %d", consumers-1, stats.Dedups)
	}
	for _, q := range queries {
		snap := q.Snapshot()
		if snap.Data != "user-1" || snap.State != StateSettled {
			t.Errorf("unexpected snapshot %+v", snap)
		}
	}
}

func TestEngine_MutateIsVisibleSynchronously(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(nil)

	a := e.Query("todos", f.fetch, WithStaleTime(time.Minute))
	defer a.Close()
	mustWait(t, a)

	b := e.Query("todos", f.fetch, WithStaleTime(time.Minute))
	defer b.Close()

	var seen []Snapshot
	cancel := b.Subscribe(func(s Snapshot) { seen = append(seen, s) })
	defer cancel()

	if err := a.Mutate(func(current any, ok bool) any {
		if !ok {
			t.Error("expected current data")
		}
		return current.(int64) + 100
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	if len(seen) != 1 || seen[0].Data != int64(101) {
		t.Fatalf("expected one synchronous notification with 101, got %+v", seen)
	}
	if got := b.Snapshot().Data; got != int64(101) {
		t.Errorf("expected 101 from second consumer, got %v", got)
	}
	if got := f.count(); got != 1 {
		t.Errorf("mutate must not fetch, got %d invocations", got)
	}
	if stats := e.Stats(); stats.Mutations != 1 {
		t.Errorf("expected 1 mutation, got %d", stats.Mutations)
	}
}

func TestEngine_MutateAbsentKey(t *testing.T) {
	e, clock := newTestEngine(t)

	var hadCurrent bool
	if err := e.Mutate("draft", func(current any, ok bool) any {
		hadCurrent = ok
		return "text"
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if hadCurrent {
		t.Error("absent key must report no current data")
	}

	snap := e.Snapshot("draft")
	if snap.Data != "text" || snap.UpdatedAt.UnixNano() != clock.Now() {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	// unobserved writes get the grace period
	clock.Advance(DefaultCacheTime)
	if snap := e.Snapshot("draft"); snap.State != StateIdle {
		t.Errorf("expected eviction of unobserved mutation, got %v", snap.State)
	}
}

func TestEngine_StaleWhileError(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(func(n int64) (any, error) {
		if n == 1 {
			return "v1", nil
		}
		return nil, errBoom
	})

	var failures int64
	q := e.Query("profile", f.fetch, WithOnError(func(key string, err error) {
		atomic.AddInt64(&failures, 1)
	}))
	defer q.Close()
	mustWait(t, q)

	err := q.Refetch(testContext(t))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped errBoom, got %v", err)
	}
	if GetErrorCode(err) != ErrCodeFetchFailed {
		t.Errorf("expected %s, got %s", ErrCodeFetchFailed, GetErrorCode(err))
	}

	snap := q.Snapshot()
	if !snap.HasData || snap.Data != "v1" {
		t.Errorf("stale data must survive a failure, got %+v", snap)
	}
	if !errors.Is(snap.Err, errBoom) {
		t.Errorf("expected error on entry, got %v", snap.Err)
	}
	if snap.State != StateSettled {
		t.Errorf("expected settled, got %v", snap.State)
	}
	if atomic.LoadInt64(&failures) != 1 {
		t.Errorf("expected one OnError call, got %d", failures)
	}

	// a later success clears the error
	f.result = func(n int64) (any, error) { return "v3", nil }
	if err := q.Refetch(testContext(t)); err != nil {
		t.Fatalf("Refetch failed: %v", err)
	}
	if snap := q.Snapshot(); snap.Err != nil || snap.Data != "v3" {
		t.Errorf("expected cleared error, got %+v", snap)
	}
}

func TestEngine_InvalidateIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.Invalidate("missing"); err != nil {
		t.Fatalf("invalidating an absent key: %v", err)
	}

	if err := e.MutateValue("k", 1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := e.Invalidate("k"); err != nil {
			t.Fatalf("Invalidate #%d: %v", i, err)
		}
	}
	if snap := e.Snapshot("k"); snap.State != StateIdle {
		t.Errorf("expected idle after invalidate, got %v", snap.State)
	}
	if stats := e.Stats(); stats.Invalidations != 1 {
		t.Errorf("expected 1 invalidation, got %d", stats.Invalidations)
	}
	if err := e.Invalidate(""); !IsEmptyKey(err) {
		t.Errorf("expected empty key error, got %v", err)
	}
}

func TestEngine_InvalidateRefetchesBoundQuery(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(nil)

	q := e.Query("feed", f.fetch, WithStaleTime(time.Minute))
	defer q.Close()
	mustWait(t, q)

	if err := e.Invalidate("feed"); err != nil {
		t.Fatal(err)
	}
	mustWait(t, q)

	if got := f.count(); got != 2 {
		t.Fatalf("expected refetch after invalidate, got %d invocations", got)
	}
	if got := q.Snapshot().Data; got != int64(2) {
		t.Errorf("expected fresh data 2, got %v", got)
	}
}

func TestEngine_InvalidateDuringFetchRunsAgain(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(nil)
	f.hold()

	var successes int64
	q := e.Query("k", f.fetch, WithOnSuccess(func(string, any) { atomic.AddInt64(&successes, 1) }))
	defer q.Close()

	if err := e.Invalidate("k"); err != nil {
		t.Fatal(err)
	}
	f.release()
	mustWait(t, q)

	if got := f.count(); got != 2 {
		t.Fatalf("expected a second run after invalidate, got %d invocations", got)
	}
	if got := q.Snapshot().Data; got != int64(2) {
		t.Errorf("expected the post-invalidate result, got %v", got)
	}
	if got := atomic.LoadInt64(&successes); got != 1 {
		t.Errorf("callbacks must run once per request, got %d", got)
	}
}

func TestEngine_InvalidateAllDuringFetchRunsAgain(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(nil)
	f.hold()

	call := e.fetcher.fetch("k", f.fetch, e.Defaults())
	if err := e.InvalidateAll(); err != nil {
		t.Fatal(err)
	}
	f.release()
	if _, err := call.wait(testContext(t)); err != nil {
		t.Fatal(err)
	}
	if err := e.wait(testContext(t), "k"); err != nil {
		t.Fatal(err)
	}

	if got := f.count(); got != 2 {
		t.Fatalf("expected a second run after InvalidateAll, got %d invocations", got)
	}
	if got, _ := e.Data("k"); got != int64(2) {
		t.Errorf("expected the post-invalidate result, got %v", got)
	}
}

func TestEngine_InvalidateKeepsRetrying(t *testing.T) {
	e, clock := newTestEngine(t)
	f := newTestFetcher(func(n int64) (any, error) {
		if n < 2 {
			return nil, errBoom
		}
		return n, nil
	})
	opts := applyOptions(e.Defaults(), []QueryOption{
		WithRetry(RetryCount(1)),
		WithRetryDelay(FixedDelay(time.Second)),
	})

	call := e.fetcher.fetch("k", f.fetch, opts)
	waitFor(t, "retry delay", func() bool { return clock.active() == 1 })
	if err := e.Invalidate("k"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)

	ctx := testContext(t)
	if v, err := call.wait(ctx); err != nil || v != int64(2) {
		t.Fatalf("invalidation must not stop retries, got %v, %v", v, err)
	}
	if err := e.wait(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if got := f.count(); got != 3 {
		t.Errorf("expected retry plus one run after invalidate, got %d invocations", got)
	}
}

func TestEngine_InvalidateAll(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(nil)

	q := e.Query("bound", f.fetch, WithStaleTime(time.Minute))
	defer q.Close()
	mustWait(t, q)
	_ = e.MutateValue("loose", "x")

	if err := e.InvalidateAll(); err != nil {
		t.Fatal(err)
	}
	mustWait(t, q)

	if snap := e.Snapshot("loose"); snap.State != StateIdle {
		t.Errorf("expected loose key cleared, got %v", snap.State)
	}
	if got := f.count(); got != 2 {
		t.Errorf("expected bound query to refetch, got %d invocations", got)
	}
	if stats := e.Stats(); stats.Invalidations != 2 {
		t.Errorf("expected 2 invalidations, got %d", stats.Invalidations)
	}
}

func TestEngine_EvictionAndRebind(t *testing.T) {
	var evicted []string
	e, clock := newTestEngine(t, func(c *Config) {
		c.OnEvict = func(key string, value any) { evicted = append(evicted, key) }
	})
	f := newTestFetcher(nil)
	opts := []QueryOption{WithStaleTime(time.Minute), WithCacheTime(10 * time.Second)}

	q := e.Query("item", f.fetch, opts...)
	mustWait(t, q)
	updatedAt := q.Snapshot().UpdatedAt
	q.Close()

	clock.Advance(5 * time.Second)

	q = e.Query("item", f.fetch, opts...)
	snap := q.Snapshot()
	if snap.State != StateSettled || !snap.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("rebind within grace period must keep the entry untouched, got %+v", snap)
	}
	if got := f.count(); got != 1 {
		t.Fatalf("rebind of a fresh entry must not fetch, got %d", got)
	}

	// the cancelled timer must not fire
	clock.Advance(20 * time.Second)
	if snap := q.Snapshot(); snap.State != StateSettled {
		t.Fatalf("observed entry was evicted")
	}

	q.Close()
	clock.Advance(10 * time.Second)

	if snap := e.Snapshot("item"); snap.State != StateIdle {
		t.Fatalf("expected eviction after grace period, got %v", snap.State)
	}
	if len(evicted) != 1 || evicted[0] != "item" {
		t.Errorf("expected OnEvict for item, got %v", evicted)
	}
	if stats := e.Stats(); stats.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", stats.Evictions)
	}

	// rebinding after eviction loads from scratch
	f.hold()
	q = e.Query("item", f.fetch, opts...)
	defer q.Close()
	if snap := q.Snapshot(); snap.State != StateLoading || !snap.IsLoading {
		t.Errorf("expected loading after eviction, got %+v", snap)
	}
	f.release()
	mustWait(t, q)
	if got := f.count(); got != 2 {
		t.Errorf("expected a new fetch after eviction, got %d", got)
	}
}

func TestEngine_EvictionTimerOnObservedKeyIsDisarmed(t *testing.T) {
	e, clock := newTestEngine(t)
	f := newTestFetcher(nil)

	q := e.Query("k", f.fetch, WithStaleTime(time.Hour), WithCacheTime(time.Minute))
	mustWait(t, q)

	// timer armed by a Close that raced this binding
	e.scheduleEviction("k", time.Minute)
	clock.Advance(2 * time.Minute)
	if e.Snapshot("k").State != StateSettled {
		t.Fatal("an observed key must survive its grace timer")
	}

	q.Close()
	clock.Advance(time.Minute)
	if e.Snapshot("k").State != StateIdle {
		t.Error("expected eviction after the last subscriber left")
	}
}

func TestEngine_StaleTimeGovernsRebindFetches(t *testing.T) {
	e, clock := newTestEngine(t)
	f := newTestFetcher(nil)
	opts := []QueryOption{WithStaleTime(5 * time.Second)}

	a := e.Query("stock", f.fetch, opts...)
	defer a.Close()
	mustWait(t, a)

	clock.Advance(3 * time.Second)
	b := e.Query("stock", f.fetch, opts...)
	defer b.Close()
	if got := f.count(); got != 1 {
		t.Fatalf("fresh entry must not refetch at 3s, got %d", got)
	}

	clock.Advance(3 * time.Second)
	f.hold()
	c := e.Query("stock", f.fetch, opts...)
	defer c.Close()

	snap := c.Snapshot()
	if snap.State != StateValidating || !snap.IsValidating || snap.IsLoading {
		t.Fatalf("expected validating with stale data, got %+v", snap)
	}
	if snap.Data != int64(1) {
		t.Errorf("stale data must be served while validating, got %v", snap.Data)
	}

	f.release()
	mustWait(t, c)
	if got := f.count(); got != 2 {
		t.Errorf("expected refetch at 6s, got %d", got)
	}
	if got := a.Snapshot().Data; got != int64(2) {
		t.Errorf("every consumer sees the new data, got %v", got)
	}
}

func TestEngine_RetryUntilExhausted(t *testing.T) {
	cfg := DefaultConfig()
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = e.Close() }()

	f := newTestFetcher(func(n int64) (any, error) { return nil, errBoom })
	start := time.Now()
	_, err = e.Fetch(testContext(t), "flaky", f.fetch,
		WithRetry(RetryCount(2)), WithRetryDelay(FixedDelay(100*time.Millisecond)))

	if got := f.count(); got != 3 {
		t.Fatalf("expected 3 invocations, got %d", got)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("expected two 100ms delays, took %v", elapsed)
	}
	if !IsFetchError(err) || !errors.Is(err, errBoom) {
		t.Errorf("expected fetch error wrapping errBoom, got %v", err)
	}
	if attempts := GetErrorContext(err)["attempts"]; attempts != 3 {
		t.Errorf("expected attempts=3 in context, got %v", attempts)
	}

	stats := e.Stats()
	if stats.Retries != 2 || stats.FetchErrors != 1 || stats.Fetches != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestEngine_RetryRecovers(t *testing.T) {
	e, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = e.Close() }()

	f := newTestFetcher(func(n int64) (any, error) {
		if n < 3 {
			return nil, errBoom
		}
		return "ok", nil
	})

	start := time.Now()
	v, err := e.Fetch(testContext(t), "k", f.fetch,
		WithRetry(RetryCount(2)), WithRetryDelay(FixedDelay(100*time.Millisecond)))
	if err != nil || v != "ok" {
		t.Fatalf("expected recovery on the last allowed attempt, got %v, %v", v, err)
	}
	if got := f.count(); got != 3 {
		t.Errorf("expected 3 invocations, got %d", got)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("expected two 100ms delays, took %v", elapsed)
	}
	if stats := e.Stats(); stats.Retries != 2 || stats.FetchErrors != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if snap := e.Snapshot("k"); snap.Err != nil || snap.Data != "ok" {
		t.Errorf("intermediate failures must not be written, got %+v", snap)
	}
}

func TestEngine_FetchPanicIsRecovered(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Fetch(testContext(t), "p", func(context.Context) (any, error) {
		panic("kaboom")
	})
	if err == nil || !IsFetchError(err) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if snap := e.Snapshot("p"); snap.Err == nil {
		t.Error("expected error recorded on entry")
	}
}

func TestEngine_PrefetchSkipsCachedKeys(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(nil)

	if err := e.Prefetch(testContext(t), "k", f.fetch); err != nil {
		t.Fatal(err)
	}
	if err := e.Prefetch(testContext(t), "k", f.fetch); err != nil {
		t.Fatal(err)
	}
	if got := f.count(); got != 1 {
		t.Errorf("expected one fetch, got %d", got)
	}
	if err := e.Prefetch(testContext(t), "k", nil); GetErrorCode(err) != ErrCodeInvalidFetcher {
		t.Errorf("expected invalid fetcher, got %v", err)
	}
}

func TestEngine_PrefetchAll(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(nil)

	err := e.PrefetchAll(testContext(t), map[string]FetchFunc{
		"a": f.fetch,
		"b": f.fetch,
		"c": f.fetch,
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats := e.Stats(); stats.Size != 3 || stats.Fetches != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}

	err = e.PrefetchAll(testContext(t), map[string]FetchFunc{
		"d": func(context.Context) (any, error) { return nil, errBoom },
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected errBoom, got %v", err)
	}
}

func TestEngine_FetchForcesRefetch(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(nil)

	for i := 1; i <= 2; i++ {
		v, err := e.Fetch(testContext(t), "k", f.fetch, WithStaleTime(time.Hour))
		if err != nil || v != int64(i) {
			t.Fatalf("Fetch #%d = %v, %v", i, v, err)
		}
	}
}

func TestEngine_MutateLosesToInflightFetch(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(func(n int64) (any, error) { return "server", nil })
	f.hold()

	q := e.Query("k", f.fetch)
	defer q.Close()

	if err := q.Mutate(func(any, bool) any { return "local" }); err != nil {
		t.Fatal(err)
	}
	if snap := q.Snapshot(); snap.Data != "local" || snap.State != StateValidating {
		t.Fatalf("expected optimistic data while validating, got %+v", snap)
	}

	f.release()
	mustWait(t, q)
	if got := q.Snapshot().Data; got != "server" {
		t.Errorf("expected fetch result to win, got %v", got)
	}
}

func TestEngine_OrphanedFetchKeepsPendingSlot(t *testing.T) {
	e, clock := newTestEngine(t)
	f := newTestFetcher(nil)

	q := e.Query("k", f.fetch, WithCacheTime(time.Second))
	mustWait(t, q)

	f.hold()
	call := q.request()
	q.Close()
	clock.Advance(time.Second)

	snap := e.Snapshot("k")
	if snap.HasData || snap.State != StateLoading {
		t.Fatalf("expected data dropped with fetch still pending, got %+v", snap)
	}

	// a new request attaches instead of starting a second fetch
	again := e.fetcher.fetch("k", f.fetch, e.Defaults())
	if again != call {
		t.Fatal("expected the pending call to be reused")
	}

	f.release()
	if _, err := call.wait(testContext(t)); err != nil {
		t.Fatal(err)
	}
	if got := f.count(); got != 2 {
		t.Errorf("expected 2 invocations, got %d", got)
	}
	if e.store.isOrphaned("k") {
		t.Error("orphan flag must clear once the fetch ends")
	}
}

func TestEngine_RetriesStopForAbandonedKey(t *testing.T) {
	e, clock := newTestEngine(t)
	f := newTestFetcher(func(n int64) (any, error) { return nil, errBoom })

	q := e.Query("k", f.fetch,
		WithInitialData("seed"),
		WithCacheTime(0),
		WithRetry(RetryCount(5)),
		WithRetryDelay(FixedDelay(time.Second)))

	waitFor(t, "first retry delay", func() bool { return clock.active() == 1 })
	q.Close()
	clock.Advance(0)

	if snap := e.Snapshot("k"); snap.HasData {
		t.Fatalf("expected seeded data evicted, got %+v", snap)
	}

	clock.Advance(time.Second)
	_ = e.wait(testContext(t), "k")

	if got := f.count(); got != 2 {
		t.Errorf("expected retries to stop after abandonment, got %d invocations", got)
	}
	if stats := e.Stats(); stats.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", stats.Retries)
	}
}

func TestEngine_SizeBoundKeepsFrequentAndObservedKeys(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.MaxEntries = 2 })
	f := newTestFetcher(nil)
	ctx := testContext(t)

	for _, key := range []string{"hot", "cold"} {
		if _, err := e.Fetch(ctx, key, f.fetch); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 5; i++ {
		e.Snapshot("hot")
	}
	if _, err := e.Fetch(ctx, "new", f.fetch); err != nil {
		t.Fatal(err)
	}

	stats := e.Stats()
	if stats.Size != 2 || stats.Evictions != 1 {
		t.Fatalf("expected size 2 after one eviction, got %+v", stats)
	}
	if e.Snapshot("hot").State != StateSettled {
		t.Error("frequently read key must survive the bound")
	}
}

func TestEngine_SizeBoundSkipsObservedKeys(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.MaxEntries = 1 })
	f := newTestFetcher(nil)

	q := e.Query("watched", f.fetch)
	defer q.Close()
	mustWait(t, q)

	if _, err := e.Fetch(testContext(t), "other", f.fetch); err != nil {
		t.Fatal(err)
	}
	if q.Snapshot().State != StateSettled {
		t.Error("observed key was evicted by the size bound")
	}
	if e.Snapshot("other").State != StateIdle {
		t.Error("expected unobserved key to be dropped")
	}
}

func TestEngine_RawSubscribe(t *testing.T) {
	e, clock := newTestEngine(t)

	var calls int
	unsubscribe := e.Subscribe("k", func() { calls++ })
	_ = e.MutateValue("k", 1)
	_ = e.MutateValue("k", 2)
	if calls != 2 {
		t.Fatalf("expected 2 notifications, got %d", calls)
	}

	clock.Advance(DefaultCacheTime * 2)
	if e.Snapshot("k").State != StateSettled {
		t.Fatal("subscribed key must not be evicted")
	}

	unsubscribe()
	unsubscribe()
	_ = e.MutateValue("k", 3)
	if calls != 2 {
		t.Errorf("unsubscribed callback was called")
	}

	clock.Advance(DefaultCacheTime)
	if e.Snapshot("k").State != StateIdle {
		t.Error("expected eviction after unsubscribe")
	}
}

func TestEngine_ResetDropsState(t *testing.T) {
	e, _ := newTestEngine(t)
	f := newTestFetcher(nil)

	q := e.Query("k", f.fetch)
	mustWait(t, q)

	f.hold()
	call := e.fetcher.fetch("other", f.fetch, e.Defaults())

	e.Reset()

	if _, err := call.wait(testContext(t)); GetErrorCode(err) != ErrCodeFetchCancelled {
		t.Errorf("expected cancelled fetch, got %v", err)
	}
	f.release()

	stats := e.Stats()
	if stats.Size != 0 || stats.Observed != 0 || stats.Fetches != 0 {
		t.Errorf("expected empty engine, got %+v", stats)
	}
	if e.Snapshot("other").State != StateIdle {
		t.Error("cancelled fetch must not write")
	}

	// the engine stays usable
	v, err := e.Fetch(testContext(t), "k", f.fetch)
	if err != nil || v == nil {
		t.Errorf("Fetch after Reset = %v, %v", v, err)
	}
	q.Close()
}

func TestEngine_Close(t *testing.T) {
	focus := NewManualSignal()
	e, _ := newTestEngine(t, func(c *Config) { c.FocusSignal = focus })

	if focus.Subscribers() != 1 {
		t.Fatalf("expected engine subscribed to focus signal")
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if focus.Subscribers() != 0 {
		t.Error("expected focus signal detached")
	}

	if _, err := e.Fetch(context.Background(), "k", newTestFetcher(nil).fetch); !IsEngineClosed(err) {
		t.Errorf("expected engine closed, got %v", err)
	}
	if err := e.MutateValue("k", 1); !IsEngineClosed(err) {
		t.Errorf("expected engine closed, got %v", err)
	}
	if err := e.InvalidateAll(); !IsEngineClosed(err) {
		t.Errorf("expected engine closed, got %v", err)
	}
	q := e.Query("k", newTestFetcher(nil).fetch)
	if !IsEngineClosed(q.Snapshot().Err) {
		t.Errorf("expected unbound query, got %v", q.Snapshot().Err)
	}
}

func TestEngine_SetDefaults(t *testing.T) {
	e, _ := newTestEngine(t)

	opts := DefaultQueryOptions()
	opts.StaleTime = time.Minute
	if err := e.SetDefaults(opts); err != nil {
		t.Fatal(err)
	}
	q := e.Query("k", newTestFetcher(nil).fetch)
	defer q.Close()
	if q.Options().StaleTime != time.Minute {
		t.Errorf("expected new defaults on new queries")
	}

	opts.CacheTime = -time.Second
	if err := e.SetDefaults(opts); !IsConfigError(err) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestEngine_NewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{MaxEntries: -1}); !IsConfigError(err) {
		t.Errorf("expected config error, got %v", err)
	}
}
