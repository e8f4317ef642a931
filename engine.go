// engine.go: the public engine API
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Engine is a data-fetching and caching engine. It owns one entry store and
// one notification bus; independent engines share nothing.
// All methods are safe for concurrent use.
type Engine struct {
	store     *cacheStore
	bus       *notificationBus
	fetcher   *fetchCoordinator
	counters  engineCounters
	logger    Logger
	clock     TimeProvider
	scheduler Scheduler
	metrics   MetricsCollector
	onEvict   func(key string, value any)

	defaultsMu sync.RWMutex
	defaults   QueryOptions

	queriesMu sync.Mutex
	queries   map[*Query]struct{}

	signalCancels []func()
	closed        int32
}

// New creates an engine from cfg. The configuration is validated and
// normalized first; see Config.Validate.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		store:     newCacheStore(cfg.MaxEntries),
		bus:       newNotificationBus(),
		logger:    cfg.Logger,
		clock:     cfg.TimeProvider,
		scheduler: cfg.Scheduler,
		metrics:   cfg.MetricsCollector,
		onEvict:   cfg.OnEvict,
		defaults:  cfg.Defaults,
		queries:   make(map[*Query]struct{}),
	}
	e.fetcher = &fetchCoordinator{
		store:      e.store,
		bus:        e.bus,
		logger:     e.logger,
		clock:      e.clock,
		scheduler:  e.scheduler,
		metrics:    e.metrics,
		counters:   &e.counters,
		afterWrite: e.afterWrite,
	}
	e.fetcher.restart(context.Background())

	e.signalCancels = append(e.signalCancels,
		cfg.FocusSignal.Subscribe(func() { e.broadcast(triggerFocus) }),
		cfg.ReconnectSignal.Subscribe(func() { e.broadcast(triggerReconnect) }),
	)

	e.logger.Debug("engine created", "max_entries", cfg.MaxEntries, "cache_time", cfg.Defaults.CacheTime)
	return e, nil
}

// Defaults returns the query options every call starts from.
func (e *Engine) Defaults() QueryOptions {
	e.defaultsMu.RLock()
	defer e.defaultsMu.RUnlock()
	return e.defaults
}

// SetDefaults replaces the default query options. Bound queries keep the
// options they were created with.
func (e *Engine) SetDefaults(opts QueryOptions) error {
	if err := opts.normalize(); err != nil {
		return err
	}
	e.defaultsMu.Lock()
	e.defaults = opts
	e.defaultsMu.Unlock()
	e.logger.Info("engine defaults updated", "stale_time", opts.StaleTime, "cache_time", opts.CacheTime)
	return nil
}

func (e *Engine) options(opts []QueryOption) QueryOptions {
	return applyOptions(e.Defaults(), opts)
}

// Query binds a consumer to key and returns the live handle. A fetch starts
// in the background unless the entry is fresh or the query is disabled.
// Misuse (empty key, nil fetch, closed engine) yields an unbound handle whose
// snapshot carries the error. Call Close when the consumer goes away.
func (e *Engine) Query(key string, fetch FetchFunc, opts ...QueryOption) *Query {
	q := &Query{
		engine: e,
		key:    key,
		fetch:  fetch,
		opts:   e.options(opts),
	}

	switch {
	case key == "":
		q.err = NewErrEmptyKey("Query")
	case fetch == nil:
		q.err = NewErrInvalidFetcher(key)
	case e.isClosed():
		q.err = NewErrEngineClosed("Query")
	}
	if q.err != nil {
		e.logger.Warn("query not bound", "key", key, "error", q.err)
		return q
	}

	e.track(q)
	q.bind()
	return q
}

// Fetch forces a fetch of key regardless of staleness and waits for it.
// It attaches to an in-flight fetch when dedup is enabled.
func (e *Engine) Fetch(ctx context.Context, key string, fetch FetchFunc, opts ...QueryOption) (any, error) {
	if err := e.check("Fetch", key); err != nil {
		return nil, err
	}
	if fetch == nil {
		return nil, NewErrInvalidFetcher(key)
	}
	return e.fetcher.fetch(key, fetch, e.options(opts)).wait(ctx)
}

// Prefetch fetches key only if it holds no entry yet and waits for the
// result. No subscriber needs to exist; the entry gets the usual grace period.
func (e *Engine) Prefetch(ctx context.Context, key string, fetch FetchFunc, opts ...QueryOption) error {
	if err := e.check("Prefetch", key); err != nil {
		return err
	}
	if fetch == nil {
		return NewErrInvalidFetcher(key)
	}
	if _, ok := e.store.peek(key); ok {
		return nil
	}
	_, err := e.fetcher.fetch(key, fetch, e.options(opts)).wait(ctx)
	return err
}

// PrefetchAll prefetches every key concurrently and returns the first error.
func (e *Engine) PrefetchAll(ctx context.Context, fetches map[string]FetchFunc, opts ...QueryOption) error {
	g, gctx := errgroup.WithContext(ctx)
	for key, fetch := range fetches {
		g.Go(func() error {
			return e.Prefetch(gctx, key, fetch, opts...)
		})
	}
	return g.Wait()
}

// Mutate writes fn(current) into key, stamps it with the current time and
// notifies subscribers synchronously. No fetch runs. A fetch already in
// flight for key still writes its result when it completes.
func (e *Engine) Mutate(key string, fn Updater) error {
	if err := e.check("Mutate", key); err != nil {
		return err
	}
	if fn == nil {
		fn = func(current any, _ bool) any { return current }
	}

	e.store.update(key, fn, e.now())
	atomic.AddInt64(&e.counters.mutations, 1)
	e.metrics.RecordMutation()
	e.afterWrite(key, e.Defaults().CacheTime)
	e.bus.notify(key)
	return nil
}

// MutateValue writes v into key; see Mutate.
func (e *Engine) MutateValue(key string, v any) error {
	return e.Mutate(key, func(any, bool) any { return v })
}

// Invalidate deletes the entry of key and notifies its subscribers; bound
// enabled queries refetch. A fetch in flight for key runs once more after it
// settles, so its result never outlives the invalidation.
// Invalidating an absent key is a no-op.
func (e *Engine) Invalidate(key string) error {
	if err := e.check("Invalidate", key); err != nil {
		return err
	}
	if _, existed := e.store.delete(key, e.fetcher.requeue); existed {
		atomic.AddInt64(&e.counters.invalidations, 1)
		e.metrics.RecordInvalidation()
		e.logger.Debug("key invalidated", "key", key)
	}
	e.bus.notify(key)
	return nil
}

// InvalidateAll clears the store and notifies every observed key.
func (e *Engine) InvalidateAll() error {
	if e.isClosed() {
		return NewErrEngineClosed("InvalidateAll")
	}
	cleared := e.store.clear(e.fetcher.requeue)
	for range cleared {
		atomic.AddInt64(&e.counters.invalidations, 1)
		e.metrics.RecordInvalidation()
	}
	e.logger.Debug("store cleared", "keys", len(cleared))

	for _, key := range e.bus.observedKeys() {
		e.bus.notify(key)
	}
	return nil
}

// Snapshot returns the current view of key.
func (e *Engine) Snapshot(key string) Snapshot {
	entry, ok, pending := e.store.view(key)
	return newSnapshot(entry, ok, pending)
}

// Data returns the cached data of key without binding or fetching.
func (e *Engine) Data(key string) (any, bool) {
	entry, ok := e.store.get(key)
	if !ok || !entry.HasData {
		return nil, false
	}
	return entry.Data, true
}

// Keys returns the keys currently holding an entry, sorted.
func (e *Engine) Keys() []string {
	keys := e.store.keys()
	sort.Strings(keys)
	return keys
}

// Subscribe registers onChange for key. This is the raw binding contract:
// no fetch is started. While subscribed the entry is never evicted; the
// returned function unsubscribes and arms eviction for the last subscriber.
func (e *Engine) Subscribe(key string, onChange func()) (unsubscribe func()) {
	id, _ := e.bus.subscribe(key, onChange)
	e.store.cancelEviction(key)

	var once sync.Once
	return func() {
		once.Do(func() {
			if e.bus.unsubscribe(key, id) {
				e.scheduleEviction(key, e.Defaults().CacheTime)
			}
		})
	}
}

// Stats returns engine statistics.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Fetches:       uint64(atomic.LoadInt64(&e.counters.fetches)),       // #nosec G115 - counters only grow
		FetchErrors:   uint64(atomic.LoadInt64(&e.counters.fetchErrors)),   // #nosec G115 - counters only grow
		Retries:       uint64(atomic.LoadInt64(&e.counters.retries)),       // #nosec G115 - counters only grow
		Dedups:        uint64(atomic.LoadInt64(&e.counters.dedups)),        // #nosec G115 - counters only grow
		Mutations:     uint64(atomic.LoadInt64(&e.counters.mutations)),     // #nosec G115 - counters only grow
		Invalidations: uint64(atomic.LoadInt64(&e.counters.invalidations)), // #nosec G115 - counters only grow
		Evictions:     uint64(atomic.LoadInt64(&e.counters.evictions)),     // #nosec G115 - counters only grow
		Size:          e.store.len(),
		Observed:      len(e.bus.observedKeys()),
	}
}

// Reset drops every entry, subscription and binding and cancels the context
// of running fetches, whose results are discarded. The engine stays usable.
func (e *Engine) Reset() {
	e.fetcher.restart(context.Background())

	e.queriesMu.Lock()
	queries := e.queries
	e.queries = make(map[*Query]struct{})
	e.queriesMu.Unlock()
	for q := range queries {
		q.detach()
	}

	e.bus.reset()
	e.store.reset()
	atomic.StoreInt64(&e.counters.fetches, 0)
	atomic.StoreInt64(&e.counters.fetchErrors, 0)
	atomic.StoreInt64(&e.counters.retries, 0)
	atomic.StoreInt64(&e.counters.dedups, 0)
	atomic.StoreInt64(&e.counters.mutations, 0)
	atomic.StoreInt64(&e.counters.invalidations, 0)
	atomic.StoreInt64(&e.counters.evictions, 0)
	e.logger.Debug("engine reset")
}

// Close detaches environment signals, resets the engine and rejects
// further calls with FRESCO_ENGINE_CLOSED. Close is idempotent.
func (e *Engine) Close() error {
	if !atomic.CompareAndSwapInt32(&e.closed, 0, 1) {
		return nil
	}
	for _, cancel := range e.signalCancels {
		cancel()
	}
	e.Reset()
	e.fetcher.stop()
	e.logger.Debug("engine closed")
	return nil
}

func (e *Engine) isClosed() bool {
	return atomic.LoadInt32(&e.closed) == 1
}

func (e *Engine) check(operation, key string) error {
	if key == "" {
		return NewErrEmptyKey(operation)
	}
	if e.isClosed() {
		return NewErrEngineClosed(operation)
	}
	return nil
}

func (e *Engine) now() int64 {
	return e.clock.Now()
}

// isFresh reports whether key holds data younger than staleTime and no error.
func (e *Engine) isFresh(key string, staleTime time.Duration) bool {
	if staleTime <= 0 {
		return false
	}
	entry, ok := e.store.peek(key)
	if !ok || !entry.HasData || entry.Err != nil {
		return false
	}
	return e.now()-entry.UpdatedAt < int64(staleTime)
}

// wait blocks until no fetch is pending for key.
func (e *Engine) wait(ctx context.Context, key string) error {
	var err error
	for {
		call := e.store.pendingCall(key)
		if call == nil {
			return err
		}
		if _, err = call.wait(ctx); ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// afterWrite arms eviction for unobserved keys and enforces the size bound.
func (e *Engine) afterWrite(key string, cacheTime time.Duration) {
	if !e.bus.isObserved(key) {
		e.scheduleEviction(key, cacheTime)
	}
	for victim, entry := range e.store.enforceBound(e.bus.isObserved) {
		e.evicted(victim, entry, "size")
	}
}

func (e *Engine) scheduleEviction(key string, cacheTime time.Duration) {
	if e.store.scheduleEviction(key, cacheTime, e.scheduler, e.evict) {
		e.logger.Debug("eviction scheduled", "key", key, "cache_time", cacheTime)
	}
}

// evict is the grace timer callback. A key that gained a subscriber since
// the timer was armed is kept and its timer disarmed.
func (e *Engine) evict(key string, gen uint64) {
	if entry, ok := e.store.expire(key, gen, e.bus.isObserved); ok {
		e.evicted(key, entry, "grace_period")
	}
}

func (e *Engine) evicted(key string, entry Entry, reason string) {
	atomic.AddInt64(&e.counters.evictions, 1)
	e.metrics.RecordEviction()
	e.logger.Debug("entry evicted", "key", key, "reason", reason)
	if e.onEvict != nil {
		e.onEvict(key, entry.Data)
	}
}

func (e *Engine) track(q *Query) {
	e.queriesMu.Lock()
	defer e.queriesMu.Unlock()
	e.queries[q] = struct{}{}
}

func (e *Engine) untrack(q *Query) {
	e.queriesMu.Lock()
	defer e.queriesMu.Unlock()
	delete(e.queries, q)
}

// broadcast delivers an environment trigger to every bound query.
func (e *Engine) broadcast(t trigger) {
	e.queriesMu.Lock()
	queries := make([]*Query, 0, len(e.queries))
	for q := range e.queries {
		queries = append(queries, q)
	}
	e.queriesMu.Unlock()

	e.logger.Debug("environment signal", "trigger", t.String(), "queries", len(queries))
	for _, q := range queries {
		q.trigger(t)
	}
}
