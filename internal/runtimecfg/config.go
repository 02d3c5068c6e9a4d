// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package runtimecfg is the ambient engine configuration: default
// channel capacity, shutdown deadline, the plugin directory to
// hot-watch, and resource caps for sandboxed plugin HTTP fetches.
// Loaded from YAML with environment-variable overrides, following the
// teacher's internal/config precedence (file, then env, env wins).
package runtimecfg

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs a streamkitd host reads at startup.
type Config struct {
	// DefaultChannelCapacity is the fabric.Channel buffer size used
	// for every connection; connections cannot set their own
	// (spec.md §4.4).
	DefaultChannelCapacity int `yaml:"defaultChannelCapacity"`

	// ShutdownDeadline bounds how long the engine's Stop waits for
	// cancelled tasks to exit before it returns an error
	// (spec.md §4.6 "Stop").
	ShutdownDeadline time.Duration `yaml:"shutdownDeadline"`

	// PluginDir is watched for native (.so) and sandboxed (.wasm)
	// plugin modules (spec.md §7).
	PluginDir string `yaml:"pluginDir"`

	// ArchiveDir is the badger database directory for the
	// observability event archive.
	ArchiveDir string `yaml:"archiveDir"`

	// Redis, if Addr is non-empty, fans observability events out to a
	// Redis stream per session.
	Redis RedisConfig `yaml:"redis"`

	// PluginFetch bounds a sandboxed plugin's http_fetch host call.
	PluginFetch PluginFetchConfig `yaml:"pluginFetch"`
}

// RedisConfig configures the observability redisout sink.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PluginFetchConfig configures the sandboxed plugin host's outbound
// HTTP allowance.
type PluginFetchConfig struct {
	AllowedHosts  []string      `yaml:"allowedHosts"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Burst         int           `yaml:"burst"`
	MaxConcurrent int64         `yaml:"maxConcurrent"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Default returns the built-in fallback configuration.
func Default() Config {
	return Config{
		DefaultChannelCapacity: 64,
		ShutdownDeadline:       10 * time.Second,
		PluginDir:              "./plugins",
		ArchiveDir:             "./data/observability",
		PluginFetch: PluginFetchConfig{
			RatePerSecond: 5,
			Burst:         10,
			MaxConcurrent: 4,
			Timeout:       5 * time.Second,
		},
	}
}

// Load reads path (if it exists) over the defaults, then applies
// environment overrides. A missing file is not an error: the defaults
// (plus env overrides) stand alone.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("runtimecfg: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults stand alone.
		default:
			return Config{}, fmt.Errorf("runtimecfg: read %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}
