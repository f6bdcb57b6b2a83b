// Package daemon loads and validates the harvester's TOML configuration:
// nested sections, a DefaultConfig, and small human-readable-string
// parsers like parseDuration.
package daemon

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/harvestnet/reharvest/internal/fetcher"
)

// Config is the root TOML document.
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Output    OutputConfig    `toml:"output"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	API       APIConfig       `toml:"api"`
}

// GeneralConfig holds the harvest run's top-level parameters.
type GeneralConfig struct {
	URLListPath  string  `toml:"url_list_path"`
	DefaultDelay string  `toml:"default_delay"` // e.g. "10m"
	Target       float64 `toml:"target"`
}

// OutputConfig controls where captures and history are written.
type OutputConfig struct {
	WARCPath      string `toml:"warc_path"`
	HistoryDBPath string `toml:"history_db_path"`
}

// StrategyConfig selects the delay-estimation strategy.
type StrategyConfig struct {
	Selector string `toml:"selector"` // constant|simple|bisection|reciprocal|average
}

// SchedulerConfig bounds scheduler concurrency and the clamp window.
type SchedulerConfig struct {
	MaxConcurrent int    `toml:"max_concurrent"`
	ClampMin      string `toml:"clamp_min"`
	ClampMax      string `toml:"clamp_max"`

	// Autoscale, when enabled, lets the worker pool shrink below
	// MaxConcurrent during quiet periods and grow back toward it once the
	// queue backs up, instead of running at a fixed size.
	Autoscale AutoscaleConfig `toml:"autoscale"`
}

// AutoscaleConfig controls the scheduler's reactive worker-pool sizing.
type AutoscaleConfig struct {
	Enabled    bool   `toml:"enabled"`
	MinWorkers int    `toml:"min_workers"`
	Interval   string `toml:"interval"` // how often to re-evaluate, e.g. "1m"
}

// APIConfig controls the admin HTTP surface.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DefaultConfig returns the harvester's out-of-the-box settings.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			URLListPath:  "urls.txt",
			DefaultDelay: "10m",
			Target:       0.9,
		},
		Output: OutputConfig{
			WARCPath:      "captures.warc.gz",
			HistoryDBPath: "history.db",
		},
		Strategy: StrategyConfig{
			Selector: "simple",
		},
		Scheduler: SchedulerConfig{
			MaxConcurrent: 8,
			ClampMin:      "60s",
			ClampMax:      "24h",
			Autoscale: AutoscaleConfig{
				Enabled:    false,
				MinWorkers: 1,
				Interval:   "1m",
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8989,
		},
	}
}

// Load reads and decodes a TOML file, then applies defaults for any
// unset field.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("daemon: decode config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultDelayDuration parses General.DefaultDelay, falling back to 10 minutes
// on an empty or malformed value.
func (c Config) DefaultDelayDuration() time.Duration {
	return parseDuration(c.General.DefaultDelay, 10*time.Minute)
}

// Clamp builds the fetcher clamp bounds from the configured strings.
func (c Config) Clamp() fetcher.Clamp {
	return fetcher.Clamp{
		Min: parseDuration(c.Scheduler.ClampMin, 60*time.Second),
		Max: parseDuration(c.Scheduler.ClampMax, 24*time.Hour),
	}
}

// AutoscaleIntervalDuration parses Scheduler.Autoscale.Interval, falling
// back to one minute on an empty or malformed value.
func (c Config) AutoscaleIntervalDuration() time.Duration {
	return parseDuration(c.Scheduler.Autoscale.Interval, time.Minute)
}

// parseDuration parses s as a Go duration string, returning def if s is
// empty or fails to parse.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
