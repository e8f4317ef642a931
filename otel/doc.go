// Package otel provides OpenTelemetry integration for fresco engine metrics.
//
// # Quick Start
//
//	import (
//	    "github.com/agilira/fresco"
//	    frescootel "github.com/agilira/fresco/otel"
//	    "go.opentelemetry.io/otel/sdk/metric"
//	)
//
//	provider := metric.NewMeterProvider(metric.WithReader(reader))
//	defer provider.Shutdown(context.Background())
//
//	collector, err := frescootel.NewOTelMetricsCollector(provider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := fresco.DefaultConfig()
//	cfg.MetricsCollector = collector
//	engine, err := fresco.New(cfg)
//
// # Metrics Exposed
//
// Histograms:
//   - fresco_fetch_latency_ns: settled fetch latency, retries and backoff included
//
// Counters:
//   - fresco_fetches_total: settled fetches, attribute outcome=success|failure
//   - fresco_retries_total: scheduled retries
//   - fresco_dedups_total: requests that attached to an in-flight fetch
//   - fresco_evictions_total: entries evicted by grace timer or size bound
//   - fresco_mutations_total: optimistic updates
//   - fresco_invalidations_total: invalidated keys
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package otel
