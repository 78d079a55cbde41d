package core

import (
	"runtime"
	"time"
)

const (
	// MaxThreads bounds the number of worker threads in one pool.
	MaxThreads = 256

	// GenericBlockerThreadCount is the default size of the blocker pool
	// backing RunInBlockerPool.
	GenericBlockerThreadCount = 2

	// DefaultStatsInterval is the period of each worker's maintenance timer.
	DefaultStatsInterval = time.Second
)

// Config holds the construction options of a ThreadPool.
// Zero-valued handler fields fall back to the defaults; Threads is used as is.
type Config struct {
	// Threads is the number of worker threads, 1..MaxThreads.
	Threads int

	// BlockerThreads is the number of OS threads serving blocking calls.
	// Defaults to GenericBlockerThreadCount.
	BlockerThreads int

	// StatsInterval is the period of the per-worker maintenance timer.
	// Defaults to DefaultStatsInterval.
	StatsInterval time.Duration

	// EventSource selects the reactor wake mechanism: "" (platform
	// default), "epoll" or "channel".
	EventSource string

	// DisableSignalHandling stops Run from routing SIGINT/SIGTERM.
	DisableSignalHandling bool

	Logger       Logger
	Metrics      Metrics
	CrashHandler CrashHandler
}

// DefaultConfig returns a config with one worker per CPU and default handlers.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads > MaxThreads {
		threads = MaxThreads
	}
	return Config{
		Threads:        threads,
		BlockerThreads: GenericBlockerThreadCount,
		StatsInterval:  DefaultStatsInterval,
		Logger:         NewDefaultLogger(),
		Metrics:        &NilMetrics{},
		CrashHandler:   &DefaultCrashHandler{},
	}
}

func (c Config) withDefaults() Config {
	if c.BlockerThreads <= 0 {
		c.BlockerThreads = GenericBlockerThreadCount
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = DefaultStatsInterval
	}
	if c.Logger == nil {
		c.Logger = NewDefaultLogger()
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.CrashHandler == nil {
		c.CrashHandler = &DefaultCrashHandler{}
	}
	return c
}
