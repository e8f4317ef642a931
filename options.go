// options.go: per-query options
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import "time"

// QueryOptions is the configuration recognized per query.
// The zero value is not usable directly; start from DefaultQueryOptions
// or Engine.Defaults.
type QueryOptions struct {
	// StaleTime is how long a successful result counts as fresh.
	// 0 means every bind and trigger refetches.
	StaleTime time.Duration

	// CacheTime is the grace period between a key losing its last
	// subscriber and its entry being evicted. 0 evicts on the next timer tick.
	CacheTime time.Duration

	// RefetchInterval enables polling while a consumer is bound. 0 disables it.
	RefetchInterval time.Duration

	// RefetchOnFocus refetches bound queries when FocusSignal emits.
	RefetchOnFocus bool

	// RefetchOnReconnect refetches bound queries when ReconnectSignal emits.
	RefetchOnReconnect bool

	// FocusIgnoresStaleTime makes focus refetch even fresh entries.
	FocusIgnoresStaleTime bool

	// ReconnectRespectsStaleTime makes reconnect skip fresh entries.
	ReconnectRespectsStaleTime bool

	// Retry decides whether a failed attempt is retried.
	Retry RetryPolicy

	// RetryDelay decides how long to wait before the next attempt.
	RetryDelay DelayPolicy

	// InitialData seeds the entry on first bind when the key holds nothing.
	InitialData any

	// HasInitialData reports whether InitialData is set (nil is a valid value).
	HasInitialData bool

	// Enabled gates automatic fetching (bind, polling, triggers).
	// Explicit Refetch still runs when disabled.
	Enabled bool

	// Dedupe lets a request attach to an in-flight fetch for the same key.
	// When false the request schedules one fresh run after the current one.
	Dedupe bool

	// OnSuccess is called with the fetched value after a successful fetch.
	OnSuccess func(key string, data any)

	// OnError is called with the final error once retries are exhausted.
	OnError func(key string, err error)
}

// DefaultQueryOptions returns the options used when no Config.Defaults is given.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		CacheTime:          DefaultCacheTime,
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
		Retry:              RetryCount(DefaultRetryCount),
		RetryDelay:         ExponentialBackoff(DefaultRetryBaseDelay, DefaultRetryMaxDelay),
		Enabled:            true,
		Dedupe:             true,
	}
}

func (o *QueryOptions) isZero() bool {
	return o.StaleTime == 0 && o.CacheTime == 0 && o.RefetchInterval == 0 &&
		!o.RefetchOnFocus && !o.RefetchOnReconnect && o.Retry == nil &&
		o.RetryDelay == nil && !o.Enabled && !o.Dedupe && !o.HasInitialData
}

func (o *QueryOptions) normalize() error {
	if o.StaleTime < 0 {
		return NewErrInvalidConfig("stale_time", o.StaleTime)
	}
	if o.CacheTime < 0 {
		return NewErrInvalidConfig("cache_time", o.CacheTime)
	}
	if o.RefetchInterval < 0 {
		return NewErrInvalidConfig("refetch_interval", o.RefetchInterval)
	}
	o.fillPolicies()
	return nil
}

// fillPolicies replaces nil retry policies with "never retry, no delay".
func (o *QueryOptions) fillPolicies() {
	if o.Retry == nil {
		o.Retry = RetryCount(0)
	}
	if o.RetryDelay == nil {
		o.RetryDelay = FixedDelay(0)
	}
}

// QueryOption is a functional option applied on top of the engine defaults.
type QueryOption func(*QueryOptions)

// WithStaleTime sets how long a result counts as fresh.
func WithStaleTime(d time.Duration) QueryOption {
	return func(o *QueryOptions) { o.StaleTime = d }
}

// WithCacheTime sets the eviction grace period.
func WithCacheTime(d time.Duration) QueryOption {
	return func(o *QueryOptions) { o.CacheTime = d }
}

// WithRefetchInterval enables polling at the given interval.
func WithRefetchInterval(d time.Duration) QueryOption {
	return func(o *QueryOptions) { o.RefetchInterval = d }
}

// WithRefetchOnFocus toggles focus-triggered refetches.
func WithRefetchOnFocus(enabled bool) QueryOption {
	return func(o *QueryOptions) { o.RefetchOnFocus = enabled }
}

// WithRefetchOnReconnect toggles reconnect-triggered refetches.
func WithRefetchOnReconnect(enabled bool) QueryOption {
	return func(o *QueryOptions) { o.RefetchOnReconnect = enabled }
}

// WithFocusIgnoringStaleTime makes focus refetch even when the entry is fresh.
func WithFocusIgnoringStaleTime() QueryOption {
	return func(o *QueryOptions) { o.FocusIgnoresStaleTime = true }
}

// WithReconnectRespectingStaleTime makes reconnect skip fresh entries.
func WithReconnectRespectingStaleTime() QueryOption {
	return func(o *QueryOptions) { o.ReconnectRespectsStaleTime = true }
}

// WithRetry sets the retry policy.
func WithRetry(p RetryPolicy) QueryOption {
	return func(o *QueryOptions) { o.Retry = p }
}

// WithRetryDelay sets the delay policy between attempts.
func WithRetryDelay(p DelayPolicy) QueryOption {
	return func(o *QueryOptions) { o.RetryDelay = p }
}

// WithInitialData seeds the entry when the key holds nothing yet.
func WithInitialData(v any) QueryOption {
	return func(o *QueryOptions) {
		o.InitialData = v
		o.HasInitialData = true
	}
}

// WithEnabled gates automatic fetching.
func WithEnabled(enabled bool) QueryOption {
	return func(o *QueryOptions) { o.Enabled = enabled }
}

// WithDedupe toggles attaching to in-flight fetches.
func WithDedupe(enabled bool) QueryOption {
	return func(o *QueryOptions) { o.Dedupe = enabled }
}

// WithOnSuccess registers a success callback.
func WithOnSuccess(fn func(key string, data any)) QueryOption {
	return func(o *QueryOptions) { o.OnSuccess = fn }
}

// WithOnError registers a callback for the final fetch error.
func WithOnError(fn func(key string, err error)) QueryOption {
	return func(o *QueryOptions) { o.OnError = fn }
}

func applyOptions(base QueryOptions, opts []QueryOption) QueryOptions {
	for _, opt := range opts {
		if opt != nil {
			opt(&base)
		}
	}
	// Negative durations clamp to zero.
	if base.StaleTime < 0 {
		base.StaleTime = 0
	}
	if base.RefetchInterval < 0 {
		base.RefetchInterval = 0
	}
	if base.CacheTime < 0 {
		base.CacheTime = 0
	}
	base.fillPolicies()
	return base
}
