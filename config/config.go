// Package config holds all tool configuration. Values come from built-in
// defaults, overridden by an optional YAML file, overridden by EVIDENCER_*
// environment variables; CLI flags are applied last by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Browser BrowserConfig `yaml:"browser"`
	Capture CaptureConfig `yaml:"capture"`
	Batch   BatchConfig   `yaml:"batch"`
	Index   IndexConfig   `yaml:"index"`
	Log     LogConfig     `yaml:"log"`
}

// OutputConfig controls where evidence directories are written.
type OutputConfig struct {
	// BaseDir is the root under which one directory per target is created.
	BaseDir string `yaml:"base_dir"` // default: "evidence"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int `yaml:"max_pages"` // default: 6

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`
}

// CaptureConfig controls per-page capture behavior.
type CaptureConfig struct {
	// TimeoutMs bounds navigation of one page. The network-idle wait gets
	// half of it.
	TimeoutMs int `yaml:"timeout_ms"` // default: 25000

	// SettleDelay is the fixed pause after load so late-rendering widgets
	// (price, stock) finish before screenshots.
	SettleDelay time.Duration `yaml:"settle_delay"` // default: 800ms

	// RemoveOverlays strips cookie banners and modal overlays before
	// screenshots.
	RemoveOverlays bool `yaml:"remove_overlays"` // default: true

	// UserAgents is the pool a job's UA is picked from, once, at job entry.
	UserAgents []string `yaml:"user_agents"`
}

// BatchConfig controls the batch runner.
type BatchConfig struct {
	// Concurrency bounds simultaneously active capture jobs.
	Concurrency int `yaml:"concurrency"` // default: 3

	// StartsPerSecond paces job starts; 0 disables pacing.
	StartsPerSecond float64 `yaml:"starts_per_second"` // default: 0
}

// IndexConfig controls the optional SQLite evidence index.
type IndexConfig struct {
	// Path is the index database file; empty disables indexing.
	Path string `yaml:"path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "text"
}

// defaultUserAgents rotates a few realistic desktop UAs.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123 Safari/537.36",
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Output: OutputConfig{BaseDir: "evidence"},
		Browser: BrowserConfig{
			Headless: true,
			MaxPages: 6,
		},
		Capture: CaptureConfig{
			TimeoutMs:      25000,
			SettleDelay:    800 * time.Millisecond,
			RemoveOverlays: true,
			UserAgents:     defaultUserAgents,
		},
		Batch: BatchConfig{Concurrency: 3},
		Log:   LogConfig{Level: "info", Format: "text"},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Output.BaseDir = envOr("EVIDENCER_OUT_DIR", cfg.Output.BaseDir)
	cfg.Browser.Headless = envBoolOr("EVIDENCER_HEADLESS", cfg.Browser.Headless)
	cfg.Browser.MaxPages = envIntOr("EVIDENCER_MAX_PAGES", cfg.Browser.MaxPages)
	cfg.Browser.NoSandbox = envBoolOr("EVIDENCER_NO_SANDBOX", cfg.Browser.NoSandbox)
	cfg.Browser.BrowserBin = envOr("EVIDENCER_BROWSER_BIN", cfg.Browser.BrowserBin)
	cfg.Capture.TimeoutMs = envIntOr("EVIDENCER_TIMEOUT_MS", cfg.Capture.TimeoutMs)
	cfg.Capture.SettleDelay = envDurationOr("EVIDENCER_SETTLE_DELAY", cfg.Capture.SettleDelay)
	cfg.Capture.RemoveOverlays = envBoolOr("EVIDENCER_REMOVE_OVERLAYS", cfg.Capture.RemoveOverlays)
	cfg.Capture.UserAgents = envSliceOr("EVIDENCER_USER_AGENTS", cfg.Capture.UserAgents)
	cfg.Batch.Concurrency = envIntOr("EVIDENCER_CONCURRENCY", cfg.Batch.Concurrency)
	cfg.Batch.StartsPerSecond = envFloatOr("EVIDENCER_STARTS_PER_SECOND", cfg.Batch.StartsPerSecond)
	cfg.Index.Path = envOr("EVIDENCER_INDEX_DB", cfg.Index.Path)
	cfg.Log.Level = envOr("EVIDENCER_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("EVIDENCER_LOG_FORMAT", cfg.Log.Format)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
