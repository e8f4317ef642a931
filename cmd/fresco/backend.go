// backend.go: simulated remote data source
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/agilira/fresco"
)

// backend is a simulated remote data source.
type backend struct {
	latency   time.Duration
	failEvery int64
	n         int64
}

func newBackend(latency time.Duration, failEvery int) *backend {
	return &backend{latency: latency, failEvery: int64(failEvery)}
}

func (b *backend) calls() int64 {
	return atomic.LoadInt64(&b.n)
}

func (b *backend) fetcher(key string) fresco.FetchFunc {
	return func(ctx context.Context) (any, error) {
		n := atomic.AddInt64(&b.n, 1)
		select {
		case <-time.After(b.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if b.failEvery > 0 && n%b.failEvery == 0 {
			return nil, fmt.Errorf("backend unavailable (call %d)", n)
		}
		return fmt.Sprintf("%s@%d", key, n), nil
	}
}
