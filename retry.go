// retry.go: retry and backoff policies
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import "time"

// RetryPolicy decides whether a failed attempt is retried.
// attempt is the number of failed attempts so far (1 after the first failure).
//
// Two variants are provided: RetryCount (fixed) and RetryFunc (computed).
type RetryPolicy interface {
	ShouldRetry(attempt int, err error) bool
}

// DelayPolicy decides how long to wait before the next attempt.
//
// Variants: FixedDelay, DelayFunc and ExponentialBackoff.
type DelayPolicy interface {
	Delay(attempt int, err error) time.Duration
}

// RetryCount retries up to n times after the first failure.
type RetryCount int

// ShouldRetry reports whether fewer than n retries have run.
func (n RetryCount) ShouldRetry(attempt int, err error) bool {
	return attempt <= int(n)
}

// RetryFunc computes the retry decision per attempt.
type RetryFunc func(attempt int, err error) bool

// ShouldRetry calls f. A nil RetryFunc never retries.
func (f RetryFunc) ShouldRetry(attempt int, err error) bool {
	if f == nil {
		return false
	}
	return f(attempt, err)
}

// RetryIfRetryable retries errors flagged retryable (see IsRetryable),
// at most n times.
func RetryIfRetryable(n int) RetryPolicy {
	return RetryFunc(func(attempt int, err error) bool {
		return attempt <= n && IsRetryable(err)
	})
}

// FixedDelay waits the same duration before every retry.
type FixedDelay time.Duration

// Delay returns d.
func (d FixedDelay) Delay(attempt int, err error) time.Duration {
	return time.Duration(d)
}

// DelayFunc computes the delay per attempt.
type DelayFunc func(attempt int, err error) time.Duration

// Delay calls f. A nil DelayFunc waits nothing.
func (f DelayFunc) Delay(attempt int, err error) time.Duration {
	if f == nil {
		return 0
	}
	return f(attempt, err)
}

// ExponentialBackoff doubles base for every attempt, capped at max.
func ExponentialBackoff(base, max time.Duration) DelayPolicy {
	return DelayFunc(func(attempt int, err error) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max || d <= 0 {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	})
}
