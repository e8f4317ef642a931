// Package fresco provides a reactive data-fetching and caching engine.
//
// Fresco keeps the results of asynchronous reads keyed by a stable string,
// shares one in-flight fetch between concurrent requests for the same key,
// serves stale data while it revalidates in the background, retries failed
// fetches with backoff and notifies every bound consumer when an entry changes.
//
// Example usage:
//
//	engine, err := fresco.New(fresco.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	q := engine.Query("user:1", fetchUser, fresco.WithStaleTime(5*time.Second))
//	defer q.Close()
//	snap := q.Snapshot()
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package fresco

import "time"

const (
	// Version of the fresco library
	Version = "v0.1.0-dev"

	// DefaultCacheTime is the default grace period before an unobserved entry is evicted
	DefaultCacheTime = 5 * time.Minute

	// DefaultRetryCount is the default number of retries after a failed fetch
	DefaultRetryCount = 3

	// DefaultRetryBaseDelay is the first delay of the default exponential backoff
	DefaultRetryBaseDelay = time.Second

	// DefaultRetryMaxDelay caps the default exponential backoff
	DefaultRetryMaxDelay = 30 * time.Second

	// evictionSampleSize is the number of entries inspected to pick a size-bound victim
	evictionSampleSize = 5
)
