// hot-reload.go: dynamic default options with Argus integration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fresco

import (
	"sync"
	"time"

	"github.com/agilira/argus"
)

// HotConfig watches a configuration file and applies its `fresco` section
// to the engine default query options whenever the file changes.
type HotConfig struct {
	engine  *Engine
	watcher *argus.Watcher
	path    string
	logger  Logger
	mu      sync.RWMutex
	options QueryOptions

	// OnReload is called after configuration is successfully reloaded.
	// This callback is optional and must be fast and non-blocking.
	OnReload func(oldOptions, newOptions QueryOptions)
}

// HotConfigOptions configures hot reload behavior.
type HotConfigOptions struct {
	// ConfigPath is the path to the configuration file to watch.
	// Supports JSON, YAML, TOML, HCL, INI, Properties formats.
	ConfigPath string

	// PollInterval is how often to check for configuration changes.
	// Default: 1 second. Minimum: 100ms.
	PollInterval time.Duration

	// OnReload is called after configuration is successfully reloaded.
	OnReload func(oldOptions, newOptions QueryOptions)

	// Logger for hot reload operations.
	// If nil, uses the engine's logger.
	Logger Logger
}

// NewHotConfig creates a hot-reloadable configuration for an engine.
// Call Start to begin watching.
//
// Example configuration file (YAML):
//
//	fresco:
//	  stale_time: "5s"
//	  cache_time: "5m"
//	  refetch_interval: "30s"
//	  retry: 3
//	  retry_delay: "500ms"
//	  refetch_on_focus: true
//	  refetch_on_reconnect: true
//	  dedupe: true
//
// Keys that are missing or invalid keep the engine's current default, including
// values set through SetDefaults since the last reload. Bound queries keep their options; new queries use
// the reloaded defaults.
func NewHotConfig(engine *Engine, opts HotConfigOptions) (*HotConfig, error) {
	if engine == nil {
		return nil, NewErrInvalidConfig("engine", nil)
	}
	if opts.ConfigPath == "" {
		return nil, NewErrInvalidConfig("config_path", opts.ConfigPath)
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = 1 * time.Second
	} else if opts.PollInterval < 100*time.Millisecond {
		opts.PollInterval = 100 * time.Millisecond
	}

	if opts.Logger == nil {
		opts.Logger = engine.logger
	}

	hc := &HotConfig{
		engine:   engine,
		path:     opts.ConfigPath,
		logger:   opts.Logger,
		OnReload: opts.OnReload,
		options:  engine.Defaults(),
	}

	argusConfig := argus.Config{
		PollInterval: opts.PollInterval,
	}

	watcher, err := argus.UniversalConfigWatcherWithConfig(opts.ConfigPath, hc.handleConfigChange, argusConfig)
	if err != nil {
		return nil, err
	}
	hc.watcher = watcher

	return hc, nil
}

// Start begins watching the configuration file for changes.
func (hc *HotConfig) Start() error {
	if hc.watcher.IsRunning() {
		return nil
	}
	return hc.watcher.Start()
}

// Stop stops watching the configuration file.
func (hc *HotConfig) Stop() error {
	return hc.watcher.Stop()
}

// Options returns the options applied by the last reload (thread-safe).
func (hc *HotConfig) Options() QueryOptions {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.options
}

// handleConfigChange is called by Argus when configuration changes.
func (hc *HotConfig) handleConfigChange(configData map[string]interface{}) {
	hc.mu.Lock()
	oldOptions := hc.engine.Defaults()
	newOptions := parseOptions(oldOptions, configData)
	hc.options = newOptions
	hc.mu.Unlock()

	if err := hc.engine.SetDefaults(newOptions); err != nil {
		hc.logger.Error("hot reload rejected", "path", hc.path, "error", err)
		return
	}

	hc.logger.Info("configuration reloaded", "path", hc.path)
	if hc.OnReload != nil {
		hc.OnReload(oldOptions, newOptions)
	}
}

// parseNonNegativeInt extracts a non-negative integer.
// Supports both int and float64 types (YAML/JSON may vary).
func parseNonNegativeInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		if v >= 0 {
			return v, true
		}
	case int64:
		if v >= 0 {
			return int(v), true
		}
	case float64:
		if v >= 0 {
			return int(v), true
		}
	}
	return 0, false
}

// parseDuration extracts a non-negative time.Duration from a string value.
func parseDuration(value interface{}) (time.Duration, bool) {
	if str, ok := value.(string); ok {
		if d, err := time.ParseDuration(str); err == nil && d >= 0 {
			return d, true
		}
	}
	return 0, false
}

// parseBool extracts a bool, accepting "true"/"false" strings from INI-like formats.
func parseBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch v {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// parseOptions applies the fresco section of data on top of base.
func parseOptions(base QueryOptions, data map[string]interface{}) QueryOptions {
	opts := base

	section, ok := data["fresco"].(map[string]interface{})
	if !ok {
		// Try if the whole data IS the fresco section
		if _, hasStale := data["stale_time"]; hasStale {
			section = data
		} else {
			return opts
		}
	}

	if d, ok := parseDuration(section["stale_time"]); ok {
		opts.StaleTime = d
	}
	if d, ok := parseDuration(section["cache_time"]); ok {
		opts.CacheTime = d
	}
	if d, ok := parseDuration(section["refetch_interval"]); ok {
		opts.RefetchInterval = d
	}
	if n, ok := parseNonNegativeInt(section["retry"]); ok {
		opts.Retry = RetryCount(n)
	}
	if d, ok := parseDuration(section["retry_delay"]); ok {
		opts.RetryDelay = FixedDelay(d)
	}
	if b, ok := parseBool(section["refetch_on_focus"]); ok {
		opts.RefetchOnFocus = b
	}
	if b, ok := parseBool(section["refetch_on_reconnect"]); ok {
		opts.RefetchOnReconnect = b
	}
	if b, ok := parseBool(section["dedupe"]); ok {
		opts.Dedupe = b
	}
	if b, ok := parseBool(section["enabled"]); ok {
		opts.Enabled = b
	}

	return opts
}
