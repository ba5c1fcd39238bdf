// Package observability defines shared logging primitives for the client core.
package observability

import (
	"fmt"
	"log"
	"strings"
)

// Logger captures structured logging behaviours shared across layers.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

var defaultLogger Logger = noopLogger{}

// SetLogger overrides the global logger used by the client core.
func SetLogger(logger Logger) {
	if logger == nil {
		defaultLogger = noopLogger{}
		return
	}
	defaultLogger = logger
}

// Log returns the current global logger instance.
func Log() Logger {
	return defaultLogger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// StdLogger adapts the standard library logger to the Logger interface.
type StdLogger struct {
	L *log.Logger
}

// Debug writes a debug-level line.
func (s StdLogger) Debug(msg string, fields ...Field) { s.write("DEBUG", msg, fields) }

// Info writes an info-level line.
func (s StdLogger) Info(msg string, fields ...Field) { s.write("INFO", msg, fields) }

// Error writes an error-level line.
func (s StdLogger) Error(msg string, fields ...Field) { s.write("ERROR", msg, fields) }

func (s StdLogger) write(level, msg string, fields []Field) {
	if s.L == nil {
		return
	}
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(f.Value))
	}
	s.L.Print(b.String())
}
