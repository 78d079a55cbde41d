package threadpool

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Swind/go-thread-pool/core"
)

// FileConfig is the on-disk form of a pool configuration.
//
//	threads: 8
//	blocker_threads: 4
//	stats_interval: 500ms
//	event_source: epoll
type FileConfig struct {
	Threads        int    `yaml:"threads"`
	BlockerThreads int    `yaml:"blocker_threads"`
	StatsInterval  string `yaml:"stats_interval"`
	EventSource    string `yaml:"event_source"`
}

// Environment variables overriding the file, checked by LoadConfig.
const (
	EnvThreads        = "THREADPOOL_THREADS"
	EnvBlockerThreads = "THREADPOOL_BLOCKER_THREADS"
	EnvStatsInterval  = "THREADPOOL_STATS_INTERVAL"
	EnvEventSource    = "THREADPOOL_EVENT_SOURCE"
)

// LoadConfig reads a YAML pool configuration from path, applies the
// THREADPOOL_* environment overrides and fills the remaining fields from
// DefaultConfig. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	var fc FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	var err error
	if fc.Threads, err = getenvInt(EnvThreads, fc.Threads); err != nil {
		return Config{}, err
	}
	if fc.BlockerThreads, err = getenvInt(EnvBlockerThreads, fc.BlockerThreads); err != nil {
		return Config{}, err
	}
	fc.StatsInterval = getenv(EnvStatsInterval, fc.StatsInterval)
	fc.EventSource = getenv(EnvEventSource, fc.EventSource)

	return fc.Config()
}

// ParseConfig decodes YAML data into a Config without consulting the
// environment.
func ParseConfig(data []byte) (Config, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return fc.Config()
}

// Config validates fc and merges it over DefaultConfig.
func (fc FileConfig) Config() (Config, error) {
	cfg := core.DefaultConfig()
	if fc.Threads != 0 {
		if fc.Threads < 1 || fc.Threads > core.MaxThreads {
			return Config{}, fmt.Errorf("threads: %d out of range 1..%d", fc.Threads, core.MaxThreads)
		}
		cfg.Threads = fc.Threads
	}
	if fc.BlockerThreads < 0 {
		return Config{}, fmt.Errorf("blocker_threads: %d is negative", fc.BlockerThreads)
	}
	if fc.BlockerThreads > 0 {
		cfg.BlockerThreads = fc.BlockerThreads
	}
	if fc.StatsInterval != "" {
		d, err := time.ParseDuration(fc.StatsInterval)
		if err != nil {
			return Config{}, fmt.Errorf("stats_interval: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("stats_interval: %s must be positive", d)
		}
		cfg.StatsInterval = d
	}
	switch fc.EventSource {
	case core.EventSourceDefault, core.EventSourceEpoll, core.EventSourceChannel:
		cfg.EventSource = fc.EventSource
	default:
		return Config{}, fmt.Errorf("event_source: %w: %q", core.ErrUnknownEventSource, fc.EventSource)
	}
	return cfg, nil
}

// getenv returns the environment variable k, or def when unset or empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}
