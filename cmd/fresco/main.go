// main.go: entry point of the fresco demo command
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Command fresco drives a fresco engine against a simulated backend and
// reports what the engine did: fetches, dedups, retries and evictions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/agilira/fresco/internal/applog"
)

func main() {
	os.Exit(realMain(context.Background(), os.Args))
}

func realMain(ctx context.Context, args []string) int {
	applog.Init(os.Stderr)

	app := newApp(os.Stdout)
	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
