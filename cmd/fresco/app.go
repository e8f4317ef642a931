// app.go: command-line surface of the demo command
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/agilira/fresco"
	"github.com/agilira/fresco/internal/applog"
)

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "fresco",
		Usage:   "exercise a fresco engine against a simulated backend",
		Version: fresco.Version,
		Commands: []*cli.Command{
			simulateCommand(out),
		},
	}
}

func simulateCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "bind consumers to keys and report engine statistics",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "keys", Value: 3, Usage: "number of distinct keys"},
			&cli.IntFlag{Name: "consumers", Value: 10, Usage: "consumers bound per key"},
			&cli.DurationFlag{Name: "latency", Value: 20 * time.Millisecond, Usage: "simulated backend latency"},
			&cli.IntFlag{Name: "fail-every", Value: 0, Usage: "fail every Nth backend call (0 never fails)"},
			&cli.DurationFlag{Name: "stale-time", Value: 0, Usage: "freshness window of a result"},
			&cli.DurationFlag{Name: "cache-time", Value: 100 * time.Millisecond, Usage: "eviction grace period"},
			&cli.DurationFlag{Name: "poll", Value: 0, Usage: "refetch interval while bound (0 disables)"},
			&cli.IntFlag{Name: "retry", Value: 2, Usage: "retries after a failed fetch"},
			&cli.DurationFlag{Name: "retry-delay", Value: 10 * time.Millisecond, Usage: "delay between retries"},
			&cli.DurationFlag{Name: "duration", Value: 200 * time.Millisecond, Usage: "how long consumers stay bound"},
			&cli.DurationFlag{Name: "focus-every", Value: 0, Usage: "emit a focus signal at this interval (0 disables)"},
			&cli.StringFlag{Name: "config", Usage: "watch this file and hot-reload engine defaults"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address while running"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runSimulation(ctx, out, simulation{
				keys:        cmd.Int("keys"),
				consumers:   cmd.Int("consumers"),
				latency:     cmd.Duration("latency"),
				failEvery:   cmd.Int("fail-every"),
				staleTime:   cmd.Duration("stale-time"),
				cacheTime:   cmd.Duration("cache-time"),
				poll:        cmd.Duration("poll"),
				retry:       cmd.Int("retry"),
				retryDelay:  cmd.Duration("retry-delay"),
				duration:    cmd.Duration("duration"),
				focusEvery:  cmd.Duration("focus-every"),
				configPath:  cmd.String("config"),
				metricsAddr: cmd.String("metrics-addr"),
			})
		},
	}
}

type simulation struct {
	keys, consumers int
	latency         time.Duration
	failEvery       int
	staleTime       time.Duration
	cacheTime       time.Duration
	poll            time.Duration
	retry           int
	retryDelay      time.Duration
	duration        time.Duration
	focusEvery      time.Duration
	configPath      string
	metricsAddr     string
}

func runSimulation(ctx context.Context, out io.Writer, sim simulation) error {
	if sim.keys <= 0 || sim.consumers <= 0 {
		return errors.New("keys and consumers must be positive")
	}

	focus := fresco.NewManualSignal()
	cfg := fresco.DefaultConfig()
	cfg.Logger = applog.New(log.Log)
	cfg.FocusSignal = focus
	cfg.Defaults.StaleTime = sim.staleTime
	cfg.Defaults.CacheTime = sim.cacheTime
	cfg.Defaults.RefetchInterval = sim.poll
	cfg.Defaults.Retry = fresco.RetryCount(sim.retry)
	cfg.Defaults.RetryDelay = fresco.FixedDelay(sim.retryDelay)

	if sim.metricsAddr != "" {
		ms, err := startMetrics(sim.metricsAddr)
		if err != nil {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
		defer func() { _ = ms.shutdown() }()
		cfg.MetricsCollector = ms.collector
		fmt.Fprintf(out, "metrics at http://%s/metrics\n", ms.addr)
	}

	engine, err := fresco.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	if sim.configPath != "" {
		hc, err := fresco.NewHotConfig(engine, fresco.HotConfigOptions{ConfigPath: sim.configPath})
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", sim.configPath, err)
		}
		if err := hc.Start(); err != nil {
			return err
		}
		defer func() { _ = hc.Stop() }()
	}

	backend := newBackend(sim.latency, sim.failEvery)

	queries := make([]*fresco.Query, 0, sim.keys*sim.consumers)
	for k := 0; k < sim.keys; k++ {
		key := fresco.Key("item", k)
		for c := 0; c < sim.consumers; c++ {
			queries = append(queries, engine.Query(key, backend.fetcher(key)))
		}
	}

	if sim.focusEvery > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(sim.focusEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					focus.Emit()
				case <-stop:
					return
				}
			}
		}()
	}

	select {
	case <-time.After(sim.duration):
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, key := range engine.Keys() {
		snap := engine.Snapshot(key)
		fmt.Fprintf(out, "%s state=%s data=%v err=%v\n", key, snap.State, snap.Data, snap.Err)
	}
	for _, q := range queries {
		q.Close()
	}

	// leave time for the grace timers of the now unobserved keys
	select {
	case <-time.After(sim.cacheTime + 50*time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	stats := engine.Stats()
	fmt.Fprintf(out, "backend_calls=%d fetches=%d dedups=%d retries=%d errors=%d evictions=%d size=%d dedup_ratio=%.1f%%\n",
		backend.calls(), stats.Fetches, stats.Dedups, stats.Retries, stats.FetchErrors, stats.Evictions, stats.Size, stats.DedupRatio())
	return nil
}
