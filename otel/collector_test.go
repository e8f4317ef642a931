// collector_test.go: tests for the OpenTelemetry metrics collector
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package otel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agilira/fresco"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestCollector(t *testing.T) (*OTelMetricsCollector, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Errorf("Failed to shutdown provider: %v", err)
		}
	})

	collector, err := NewOTelMetricsCollector(provider)
	if err != nil {
		t.Fatalf("NewOTelMetricsCollector() error = %v", err)
	}
	return collector, reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumTotal(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("Expected Sum[int64] for %s, got %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// TestOTelMetricsCollector_Interface verifies the collector implements fresco.MetricsCollector
func TestOTelMetricsCollector_Interface(t *testing.T) {
	var _ fresco.MetricsCollector = (*OTelMetricsCollector)(nil)
}

// TestNewOTelMetricsCollector_NilProvider tests error handling with nil provider
func TestNewOTelMetricsCollector_NilProvider(t *testing.T) {
	collector, err := NewOTelMetricsCollector(nil)
	if !errors.Is(err, ErrNilMeterProvider) {
		t.Fatalf("Expected ErrNilMeterProvider, got %v", err)
	}
	if collector != nil {
		t.Fatal("NewOTelMetricsCollector(nil) should return nil collector")
	}
}

// TestOTelMetricsCollector_RecordFetch tests fetch latency and outcome counters
func TestOTelMetricsCollector_RecordFetch(t *testing.T) {
	collector, reader := newTestCollector(t)

	collector.RecordFetch(1000, true)
	collector.RecordFetch(2000, false)
	collector.RecordFetch(1500, true)

	metrics := collect(t, reader)

	latency, ok := metrics["fresco_fetch_latency_ns"]
	if !ok {
		t.Fatal("fresco_fetch_latency_ns metric not found")
	}
	hist, ok := latency.Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatalf("Expected Histogram[int64], got %T", latency.Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("Expected 3 fetches in histogram, got %d", count)
	}

	fetches, ok := metrics["fresco_fetches_total"]
	if !ok {
		t.Fatal("fresco_fetches_total metric not found")
	}
	sum := fetches.Data.(metricdata.Sum[int64])
	byOutcome := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("outcome"))
		byOutcome[v.AsString()] += dp.Value
	}
	if byOutcome["success"] != 2 || byOutcome["failure"] != 1 {
		t.Errorf("Expected 2 successes and 1 failure, got %v", byOutcome)
	}
}

// TestOTelMetricsCollector_Counters tests the plain event counters
func TestOTelMetricsCollector_Counters(t *testing.T) {
	collector, reader := newTestCollector(t)

	collector.RecordRetry(1)
	collector.RecordRetry(2)
	collector.RecordDedup()
	collector.RecordEviction()
	collector.RecordEviction()
	collector.RecordEviction()
	collector.RecordMutation()
	collector.RecordInvalidation()

	metrics := collect(t, reader)
	want := map[string]int64{
		"fresco_retries_total":       2,
		"fresco_dedups_total":        1,
		"fresco_evictions_total":     3,
		"fresco_mutations_total":     1,
		"fresco_invalidations_total": 1,
	}
	for name, expected := range want {
		m, ok := metrics[name]
		if !ok {
			t.Errorf("%s metric not found", name)
			continue
		}
		if got := sumTotal(t, m); got != expected {
			t.Errorf("%s = %d, expected %d", name, got, expected)
		}
	}
}

// TestOTelMetricsCollector_WithEngine wires the collector into a live engine
func TestOTelMetricsCollector_WithEngine(t *testing.T) {
	collector, reader := newTestCollector(t)

	cfg := fresco.DefaultConfig()
	cfg.MetricsCollector = collector
	engine, err := fresco.New(cfg)
	if err != nil {
		t.Fatalf("fresco.New() error = %v", err)
	}
	defer func() { _ = engine.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := engine.Fetch(ctx, "user:1", func(context.Context) (any, error) {
		return "alice", nil
	}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if err := engine.MutateValue("user:1", "bob"); err != nil {
		t.Fatalf("MutateValue() error = %v", err)
	}
	if err := engine.Invalidate("user:1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	metrics := collect(t, reader)
	for _, name := range []string{"fresco_fetches_total", "fresco_mutations_total", "fresco_invalidations_total"} {
		m, ok := metrics[name]
		if !ok {
			t.Errorf("%s metric not found", name)
			continue
		}
		if got := sumTotal(t, m); got != 1 {
			t.Errorf("%s = %d, expected 1", name, got)
		}
	}
}

// TestWithMeterName tests the meter name option
func TestWithMeterName(t *testing.T) {
	opts := Options{}
	WithMeterName("custom")(&opts)
	if opts.MeterName != "custom" {
		t.Errorf("Expected meter name 'custom', got %q", opts.MeterName)
	}
}
