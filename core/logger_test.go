package core

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

// TestDefaultLogger_LevelsAndFields verifies filtering and field rendering
// Given: A DefaultLogger at the default Info level
// When: Debug, Info and Error messages are logged
// Then: Debug is dropped and fields render as {key: value}
func TestDefaultLogger_LevelsAndFields(t *testing.T) {
	buf := captureLog(t)
	logger := NewDefaultLogger()

	logger.Debug("hidden")
	logger.Info("worker started", F("worker", 3), F("pool", "main"))
	logger.Error("boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message logged at info level: %q", out)
	}
	if !strings.Contains(out, "[INFO] worker started {worker: 3, pool: main}") {
		t.Errorf("info line missing or malformed: %q", out)
	}
	if !strings.Contains(out, "[ERROR] boom\n") {
		t.Errorf("error line missing: %q", out)
	}
}

func TestDefaultLogger_DebugLevel(t *testing.T) {
	buf := captureLog(t)
	logger := NewDefaultLoggerWithLevel(LogLevelDebug)

	logger.Debug("visible")
	logger.Warn("careful")

	out := buf.String()
	if !strings.Contains(out, "[DEBUG] visible") || !strings.Contains(out, "[WARN] careful") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestNoOpLogger(t *testing.T) {
	buf := captureLog(t)
	var logger Logger = NewNoOpLogger()
	logger.Error("nothing", F("k", "v"))
	if buf.Len() != 0 {
		t.Errorf("NoOpLogger wrote %q", buf.String())
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Threads: 3}.withDefaults()

	if cfg.Threads != 3 {
		t.Errorf("Threads = %d, want 3 (never defaulted)", cfg.Threads)
	}
	if cfg.BlockerThreads != GenericBlockerThreadCount {
		t.Errorf("BlockerThreads = %d, want %d", cfg.BlockerThreads, GenericBlockerThreadCount)
	}
	if cfg.StatsInterval != DefaultStatsInterval {
		t.Errorf("StatsInterval = %v, want %v", cfg.StatsInterval, DefaultStatsInterval)
	}
	if cfg.Logger == nil || cfg.Metrics == nil || cfg.CrashHandler == nil {
		t.Error("handler defaults not applied")
	}
}

func TestDefaultConfig_ThreadsWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Threads < 1 || cfg.Threads > MaxThreads {
		t.Errorf("DefaultConfig().Threads = %d, want 1..%d", cfg.Threads, MaxThreads)
	}
}
