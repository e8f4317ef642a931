// metrics.go: Prometheus endpoint for the demo command
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"

	frescootel "github.com/agilira/fresco/otel"
)

// fetchLatencyBuckets are in nanoseconds: 1ms up to 10s.
var fetchLatencyBuckets = []float64{1e6, 5e6, 10e6, 50e6, 100e6, 500e6, 1e9, 5e9, 10e9}

// metricsServer exposes engine metrics on /metrics.
type metricsServer struct {
	collector *frescootel.OTelMetricsCollector
	provider  *metric.MeterProvider
	server    *http.Server
	addr      string
}

// startMetrics listens on addr and serves the registry the collector
// reports into. A private registry keeps repeated runs independent.
func startMetrics(addr string) (*metricsServer, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithView(metric.NewView(
			metric.Instrument{Name: "fresco_fetch_latency_ns"},
			metric.Stream{
				Aggregation: metric.AggregationExplicitBucketHistogram{Boundaries: fetchLatencyBuckets},
			},
		)),
	)

	collector, err := frescootel.NewOTelMetricsCollector(provider)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()

	return &metricsServer{
		collector: collector,
		provider:  provider,
		server:    server,
		addr:      ln.Addr().String(),
	}, nil
}

func (m *metricsServer) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(m.server.Shutdown(ctx), m.provider.Shutdown(ctx))
}
