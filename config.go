// config.go: configuration for fresco
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import (
	"time"

	"github.com/agilira/go-timecache"
)

// Config holds configuration parameters for an Engine.
type Config struct {
	// MaxEntries bounds the number of entries kept in the store.
	// When exceeded, the least frequently read unobserved entry is dropped.
	// If 0, the store is bounded only by eviction grace periods. Default: 0.
	MaxEntries int

	// Defaults are the query options every Query, Prefetch and Mutate starts from.
	// Per-call QueryOption values are applied on top. Default: DefaultQueryOptions().
	Defaults QueryOptions

	// Logger is used for debugging and monitoring.
	// If nil, NoOpLogger is used. Default: NoOpLogger.
	Logger Logger

	// TimeProvider provides current time for staleness checks and timestamps.
	// If nil, a default implementation is used. Default: system time.
	TimeProvider TimeProvider

	// Scheduler runs eviction timers, polling ticks and retry delays.
	// If nil, time.AfterFunc is used.
	Scheduler Scheduler

	// MetricsCollector is used for collecting engine metrics.
	// If nil, NoOpMetricsCollector is used (zero overhead).
	MetricsCollector MetricsCollector

	// FocusSignal emits when the host regains focus.
	// If nil, NoOpSignal is used.
	FocusSignal Signal

	// ReconnectSignal emits when connectivity is restored.
	// If nil, NoOpSignal is used.
	ReconnectSignal Signal

	// OnEvict is called when an entry is evicted from the store.
	// This callback must be fast and non-blocking.
	OnEvict func(key string, value any)
}

// Validate checks configuration parameters and applies sensible defaults.
// Returns an error only for values that cannot be normalized.
//
// This method is automatically called by New, so you typically don't need
// to call it manually.
//
// Default values applied:
//   - Defaults: DefaultQueryOptions() if zero, nil Retry/RetryDelay filled in otherwise
//   - Logger: NoOpLogger{} if nil
//   - TimeProvider: systemTimeProvider{} if nil
//   - Scheduler: systemScheduler{} if nil
//   - MetricsCollector: NoOpMetricsCollector{} if nil
//   - FocusSignal, ReconnectSignal: NoOpSignal{} if nil
func (c *Config) Validate() error {
	if c.MaxEntries < 0 {
		return NewErrInvalidConfig("max_entries", c.MaxEntries)
	}

	if c.Defaults.isZero() {
		c.Defaults = DefaultQueryOptions()
	}
	if err := c.Defaults.normalize(); err != nil {
		return err
	}

	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}

	if c.TimeProvider == nil {
		c.TimeProvider = &systemTimeProvider{}
	}

	if c.Scheduler == nil {
		c.Scheduler = systemScheduler{}
	}

	if c.MetricsCollector == nil {
		c.MetricsCollector = NoOpMetricsCollector{}
	}

	if c.FocusSignal == nil {
		c.FocusSignal = NoOpSignal{}
	}

	if c.ReconnectSignal == nil {
		c.ReconnectSignal = NoOpSignal{}
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Defaults:         DefaultQueryOptions(),
		Logger:           NoOpLogger{},
		TimeProvider:     &systemTimeProvider{},
		Scheduler:        systemScheduler{},
		MetricsCollector: NoOpMetricsCollector{},
		FocusSignal:      NoOpSignal{},
		ReconnectSignal:  NoOpSignal{},
	}
}

// systemTimeProvider is the default time provider using go-timecache.
type systemTimeProvider struct{}

func (t *systemTimeProvider) Now() int64 {
	return timecache.CachedTimeNano()
}

// systemScheduler schedules callbacks on the runtime timer heap.
type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
