// Package fresco provides a reactive data-fetching and caching engine for
// asynchronous reads keyed by a stable string.
//
// # Overview
//
// A fresco Engine owns one entry store and one notification bus. Consumers
// bind to keys through Query handles; the engine decides when to fetch,
// shares one in-flight fetch among every request for the same key, retries
// failures, writes results back and notifies every bound consumer, which
// re-reads its Snapshot.
//
// # Features
//
//   - Request deduplication: at most one pending fetch per key
//   - Stale-while-revalidate: cached data stays visible while a fetch runs
//   - Stale-while-error: a failed fetch keeps the last good data
//   - Retry with fixed, computed or exponential delays
//   - Optimistic updates (Mutate) visible synchronously to every consumer
//   - Eviction grace period once the last consumer unbinds
//   - Polling and focus/reconnect triggered refetches
//   - Optional size bound that drops the least read unobserved entries
//   - Structured errors with codes, MetricsCollector for observability
//   - Hot reload of default options through Argus
//
// # Quick Start
//
//	engine, err := fresco.New(fresco.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	q := fresco.QueryOf(engine, fresco.Key("user", 42), func(ctx context.Context) (User, error) {
//	    return api.GetUser(ctx, 42)
//	}, fresco.WithStaleTime(30*time.Second))
//	defer q.Close()
//
//	cancel := q.Subscribe(func(s fresco.TypedSnapshot[User]) {
//	    if s.HasData {
//	        render(s.Data)
//	    }
//	})
//	defer cancel()
//
// # Entry Lifecycle
//
// A key moves through four consumer-visible states:
//
//	Idle        nothing cached, nothing loading
//	Loading     a fetch runs and no data is available
//	Settled     the entry holds data, an error or both
//	Validating  a fetch runs while cached data is served
//
// Reads never change UpdatedAt. A successful fetch replaces data and clears
// the error; a failed fetch (after retries) records the error and keeps the
// data. Mutate writes data and UpdatedAt without fetching.
//
// # Freshness
//
// StaleTime is how long a successful result counts as fresh. Binding a new
// consumer to a fresh key does not fetch. With StaleTime 0 (the default)
// every bind refetches while serving the cached value.
//
// # Eviction
//
// When the last consumer of a key unbinds, a grace timer of CacheTime
// starts. Rebinding before it fires cancels it and keeps the entry
// untouched. If the timer fires while a fetch is in flight, the data is
// dropped but the pending slot is kept, so no second fetch can start until
// the first one ends; its retries stop once nobody is bound.
//
// With Config.MaxEntries > 0 the store also drops the least frequently read
// unobserved, idle entries once it grows past the bound.
//
// # Retry
//
// RetryPolicy and DelayPolicy are small interfaces with value variants:
//
//	fresco.WithRetry(fresco.RetryCount(2))
//	fresco.WithRetry(fresco.RetryFunc(func(attempt int, err error) bool { ... }))
//	fresco.WithRetryDelay(fresco.FixedDelay(100 * time.Millisecond))
//	fresco.WithRetryDelay(fresco.ExponentialBackoff(time.Second, 30*time.Second))
//
// The final error is wrapped as FRESCO_FETCH_FAILED and still matches the
// fetch function's error with errors.Is.
//
// # Environment Signals
//
// Config.FocusSignal and Config.ReconnectSignal are Signal sources. Servers
// keep the NoOpSignal default; hosts with their own detection wire a
// ManualSignal and call Emit.
//
// # Observability
//
// Every engine keeps atomic counters returned by Stats. A MetricsCollector
// receives the same events; the otel subpackage implements it with
// OpenTelemetry instruments:
//
//	collector, _ := otel.NewOTelMetricsCollector(meterProvider)
//	engine, _ := fresco.New(fresco.Config{MetricsCollector: collector})
//
// # Configuration
//
// Config.Defaults holds the QueryOptions every call starts from; per-call
// QueryOption values apply on top. HotConfig watches a JSON, YAML or TOML
// file and replaces the defaults when its fresco section changes:
//
//	fresco:
//	  stale_time: "5s"
//	  cache_time: "5m"
//	  retry: 3
//
// # Error Handling
//
// Errors use github.com/agilira/go-errors codes:
//
//	if fresco.IsEngineClosed(err) { ... }
//	if fresco.GetErrorCode(err) == fresco.ErrCodeFetchFailed { ... }
//
// # Thread Safety
//
// Every exported method is safe for concurrent use. Subscriber callbacks
// run synchronously on the goroutine that changed the entry, outside the
// engine locks, so they may call back into the engine.
//
// # Packages
//
//   - github.com/agilira/fresco: engine, queries, policies
//   - github.com/agilira/fresco/otel: OpenTelemetry metrics collector
//   - github.com/agilira/fresco/cmd/fresco: demo command
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package fresco
