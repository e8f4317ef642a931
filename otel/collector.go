// collector.go: OpenTelemetry metrics collector for fresco
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package otel

import (
	"context"
	"errors"

	"github.com/agilira/fresco"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsCollector implements fresco.MetricsCollector using OpenTelemetry.
//
// Thread-safety: Safe for concurrent use by multiple goroutines.
// The underlying OTEL instruments are thread-safe.
type OTelMetricsCollector struct {
	fetchLatency  metric.Int64Histogram // settled fetch latency, retries included
	fetches       metric.Int64Counter   // settled fetches by outcome
	retries       metric.Int64Counter   // scheduled retries
	dedups        metric.Int64Counter   // requests served by an in-flight fetch
	evictions     metric.Int64Counter   // evicted entries
	mutations     metric.Int64Counter   // optimistic updates
	invalidations metric.Int64Counter   // invalidated keys

	successAttrs metric.MeasurementOption
	failureAttrs metric.MeasurementOption
}

// Options for configuring OTelMetricsCollector.
type Options struct {
	// MeterName is the name of the OpenTelemetry meter.
	// Default: "github.com/agilira/fresco"
	MeterName string
}

// Option is a functional option for configuring OTelMetricsCollector.
type Option func(*Options)

// WithMeterName sets a custom meter name.
// This is useful for distinguishing metrics from multiple engines.
func WithMeterName(name string) Option {
	return func(o *Options) {
		o.MeterName = name
	}
}

// ErrNilMeterProvider is returned by NewOTelMetricsCollector for a nil provider.
var ErrNilMeterProvider = errors.New("meter provider cannot be nil")

// NewOTelMetricsCollector creates a new OpenTelemetry metrics collector.
//
// The collector creates the following OTEL instruments:
//   - fresco_fetch_latency_ns (Int64Histogram)
//   - fresco_fetches_total (Int64Counter, attribute outcome=success|failure)
//   - fresco_retries_total, fresco_dedups_total, fresco_evictions_total,
//     fresco_mutations_total, fresco_invalidations_total (Int64Counter)
func NewOTelMetricsCollector(provider metric.MeterProvider, opts ...Option) (*OTelMetricsCollector, error) {
	if provider == nil {
		return nil, ErrNilMeterProvider
	}

	options := Options{
		MeterName: "github.com/agilira/fresco",
	}
	for _, opt := range opts {
		opt(&options)
	}

	meter := provider.Meter(options.MeterName)
	collector := &OTelMetricsCollector{
		successAttrs: metric.WithAttributes(attribute.String("outcome", "success")),
		failureAttrs: metric.WithAttributes(attribute.String("outcome", "failure")),
	}

	var err error
	collector.fetchLatency, err = meter.Int64Histogram(
		"fresco_fetch_latency_ns",
		metric.WithDescription("Latency of settled fetch calls in nanoseconds, retries included"),
		metric.WithUnit("ns"),
	)
	if err != nil {
		return nil, err
	}

	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&collector.fetches, "fresco_fetches_total", "Total number of settled fetch calls"},
		{&collector.retries, "fresco_retries_total", "Total number of scheduled retries"},
		{&collector.dedups, "fresco_dedups_total", "Total number of requests served by an in-flight fetch"},
		{&collector.evictions, "fresco_evictions_total", "Total number of evicted entries"},
		{&collector.mutations, "fresco_mutations_total", "Total number of optimistic updates"},
		{&collector.invalidations, "fresco_invalidations_total", "Total number of invalidated keys"},
	}
	for _, c := range counters {
		*c.target, err = meter.Int64Counter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return nil, err
		}
	}

	return collector, nil
}

// RecordFetch records one settled fetch call.
func (c *OTelMetricsCollector) RecordFetch(latencyNs int64, success bool) {
	ctx := context.Background()
	attrs := c.failureAttrs
	if success {
		attrs = c.successAttrs
	}
	c.fetchLatency.Record(ctx, latencyNs, attrs)
	c.fetches.Add(ctx, 1, attrs)
}

// RecordRetry records a scheduled retry.
func (c *OTelMetricsCollector) RecordRetry(attempt int) {
	c.retries.Add(context.Background(), 1)
}

// RecordDedup records a deduplicated request.
func (c *OTelMetricsCollector) RecordDedup() {
	c.dedups.Add(context.Background(), 1)
}

// RecordEviction records an eviction event.
func (c *OTelMetricsCollector) RecordEviction() {
	c.evictions.Add(context.Background(), 1)
}

// RecordMutation records an optimistic update.
func (c *OTelMetricsCollector) RecordMutation() {
	c.mutations.Add(context.Background(), 1)
}

// RecordInvalidation records an invalidated key.
func (c *OTelMetricsCollector) RecordInvalidation() {
	c.invalidations.Add(context.Background(), 1)
}

// Compile-time interface check
var _ fresco.MetricsCollector = (*OTelMetricsCollector)(nil)
