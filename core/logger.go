package core

import (
	"fmt"
	"log"
	"strings"
)

// Logger is the structured logging sink used by workers, the blocker pool
// and the orchestrator. Implementations may wrap logrus, zap, slog, etc.
//
// Implementations must be safe for concurrent use: every worker thread,
// blocker thread and the signal router log through the same instance.
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LogLevel orders the DefaultLogger severities.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// DefaultLogger writes through the standard log package, dropping
// messages below its minimum level.
type DefaultLogger struct {
	min LogLevel
}

// NewDefaultLogger creates a DefaultLogger that logs Info and above.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{min: LogLevelInfo}
}

// NewDefaultLoggerWithLevel creates a DefaultLogger with an explicit minimum level.
func NewDefaultLoggerWithLevel(min LogLevel) *DefaultLogger {
	return &DefaultLogger{min: min}
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.log(LogLevelDebug, msg, fields...)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.log(LogLevelInfo, msg, fields...)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.log(LogLevelWarn, msg, fields...)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, fields ...Field) {
	l.log(LogLevelError, msg, fields...)
}

func (l *DefaultLogger) log(level LogLevel, msg string, fields ...Field) {
	if level < l.min {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	if len(fields) > 0 {
		b.WriteString(" {")
		for i, f := range fields {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %v", f.Key, f.Value)
		}
		b.WriteString("}")
	}
	log.Println(b.String())
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
