// app_test.go: tests for the demo command
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestSimulate_DeduplicatesConsumers(t *testing.T) {
	var out bytes.Buffer
	app := newApp(&out)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := app.Run(ctx, []string{"fresco", "simulate",
		"--keys", "2",
		"--consumers", "5",
		"--latency", "20ms",
		"--stale-time", "1m",
		"--cache-time", "10ms",
		"--duration", "100ms",
	})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "item:0 state=settled") || !strings.Contains(text, "item:1 state=settled") {
		t.Errorf("expected both keys settled, got:\n%s", text)
	}

	m := regexp.MustCompile(`backend_calls=(\d+) fetches=(\d+) dedups=(\d+)`).FindStringSubmatch(text)
	if m == nil {
		t.Fatalf("stats line missing:\n%s", text)
	}
	calls, _ := strconv.Atoi(m[1])
	dedups, _ := strconv.Atoi(m[3])
	if calls != 2 {
		t.Errorf("expected one backend call per key, got %d", calls)
	}
	if dedups != 8 {
		t.Errorf("expected 8 deduplicated requests, got %d", dedups)
	}
	if !strings.Contains(text, "evictions=2 size=0") {
		t.Errorf("expected both keys evicted after unbind, got:\n%s", text)
	}
}

func TestSimulate_RejectsEmptyWorkload(t *testing.T) {
	var out bytes.Buffer
	app := newApp(&out)

	err := app.Run(context.Background(), []string{"fresco", "simulate", "--keys", "0"})
	if err == nil {
		t.Fatal("expected error for zero keys")
	}
}
