// interfaces.go: public interfaces for fresco
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import (
	"context"
	"time"
)

// FetchFunc loads the value for one key. It is supplied by the caller and is
// the only place where the engine suspends. The context is canceled when the
// engine is closed or reset.
type FetchFunc func(ctx context.Context) (any, error)

// Updater computes a new value from the current one for Mutate.
// current is nil and hasCurrent false when the key holds no data.
type Updater func(current any, hasCurrent bool) any

// Logger defines a minimal logging interface with zero overhead.
// Implementations should use structured logging and be allocation-free.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keyvals ...interface{})

	// Info logs an info message with optional key-value pairs.
	Info(msg string, keyvals ...interface{})

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keyvals ...interface{})

	// Error logs an error message with optional key-value pairs.
	Error(msg string, keyvals ...interface{})
}

// NoOpLogger is a logger that does nothing. Used as default to avoid nil checks.
type NoOpLogger struct{}

// Debug does nothing (no-op implementation).
func (NoOpLogger) Debug(msg string, keyvals ...interface{}) {}

// Info does nothing (no-op implementation).
func (NoOpLogger) Info(msg string, keyvals ...interface{}) {}

// Warn does nothing (no-op implementation).
func (NoOpLogger) Warn(msg string, keyvals ...interface{}) {}

// Error does nothing (no-op implementation).
func (NoOpLogger) Error(msg string, keyvals ...interface{}) {}

// TimeProvider provides current time with caching for performance.
// This interface allows injecting optimized time implementations.
type TimeProvider interface {
	// Now returns the current time in nanoseconds since epoch.
	// This method must be very fast and allocation-free.
	Now() int64
}

// Timer is a scheduled callback that can be stopped before it fires.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// call stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay. Eviction grace periods, polling
// and retry backoff all go through it, so tests can drive them with a fake clock.
type Scheduler interface {
	// AfterFunc calls f on its own goroutine once d has elapsed.
	// f must never run synchronously inside AfterFunc.
	AfterFunc(d time.Duration, f func()) Timer
}

// Signal is an environment event source such as "focus regained" or
// "connectivity restored". The engine never detects these itself.
type Signal interface {
	// Subscribe registers fn to run on every emission and returns a
	// function that removes the registration.
	Subscribe(fn func()) (cancel func())
}

// MetricsCollector defines an interface for collecting engine metrics.
// Implementations can send metrics to Prometheus, DataDog, StatsD, or other monitoring systems.
//
// Thread-safety:
//   - All methods must be safe for concurrent use
//   - Fetch goroutines call these methods simultaneously
type MetricsCollector interface {
	// RecordFetch records one settled fetch call (after retries).
	// latencyNs covers every attempt including backoff delays.
	RecordFetch(latencyNs int64, success bool)

	// RecordRetry records a retry about to be scheduled; attempt starts at 1.
	RecordRetry(attempt int)

	// RecordDedup records a request that attached to an in-flight fetch.
	RecordDedup()

	// RecordEviction records an entry removed by its grace timer or the size bound.
	RecordEviction()

	// RecordMutation records an optimistic local update.
	RecordMutation()

	// RecordInvalidation records an invalidated key.
	RecordInvalidation()
}

// NoOpMetricsCollector is a metrics collector that does nothing.
// Used as default to avoid nil checks and ensure zero overhead.
type NoOpMetricsCollector struct{}

// RecordFetch does nothing.
func (NoOpMetricsCollector) RecordFetch(latencyNs int64, success bool) {}

// RecordRetry does nothing.
func (NoOpMetricsCollector) RecordRetry(attempt int) {}

// RecordDedup does nothing.
func (NoOpMetricsCollector) RecordDedup() {}

// RecordEviction does nothing.
func (NoOpMetricsCollector) RecordEviction() {}

// RecordMutation does nothing.
func (NoOpMetricsCollector) RecordMutation() {}

// RecordInvalidation does nothing.
func (NoOpMetricsCollector) RecordInvalidation() {}

// EngineStats provides statistics about engine activity.
type EngineStats struct {
	// Fetches is the number of fetch calls started (deduplicated requests excluded)
	Fetches uint64

	// FetchErrors is the number of fetch calls that ended in an error
	FetchErrors uint64

	// Retries is the number of retry attempts scheduled
	Retries uint64

	// Dedups is the number of requests that attached to an in-flight fetch
	Dedups uint64

	// Mutations is the number of optimistic updates
	Mutations uint64

	// Invalidations is the number of invalidated keys
	Invalidations uint64

	// Evictions is the number of entries evicted
	Evictions uint64

	// Size is the current number of entries
	Size int

	// Observed is the number of keys with at least one subscriber
	Observed int
}

// DedupRatio returns the share of fetch requests served by an in-flight
// fetch, as a percentage (0-100). Returns 0 when nothing was requested.
func (s EngineStats) DedupRatio() float64 {
	total := s.Fetches + s.Dedups
	if total == 0 {
		return 0
	}
	return float64(s.Dedups) / float64(total) * 100
}
