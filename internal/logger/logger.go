// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package logger is the process-wide structured logger. It wraps
// log/slog behind a small package-level API so commands and the
// server log the same way without threading a logger through every
// constructor.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// OutputFormat selects the handler encoding.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Fields is a type alias for log fields to make the API cleaner.
type Fields map[string]interface{}

var (
	logger *slog.Logger

	// testOutput captures log output during tests.
	testOutput   io.Writer
	testOutputMu sync.Mutex
)

// SetTestOutput redirects log output, for tests.
func SetTestOutput(w io.Writer) {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	testOutput = w
	logger = nil
}

// UnsetTestOutput restores the default output.
func UnsetTestOutput() {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	testOutput = nil
	logger = nil
}

func getOutput() io.Writer {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	if testOutput != nil {
		return testOutput
	}
	return os.Stderr
}

// InitLogger configures the global logger. Unknown levels fall back
// to info, unknown formats to text.
func InitLogger(logLevel string, format OutputFormat) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(getOutput(), opts)
	} else {
		handler = slog.NewTextHandler(getOutput(), opts)
	}
	logger = slog.New(handler)
}

// GetLogger returns the configured logger, initializing defaults on
// first use.
func GetLogger() *slog.Logger {
	if logger == nil {
		InitLogger("info", FormatText)
	}
	return logger
}

// Debug logs a debug message.
func Debug(msg string, fields ...Fields) {
	GetLogger().Debug(msg, mergeFields(fields...)...)
}

// Info logs an info message.
func Info(msg string, fields ...Fields) {
	GetLogger().Info(msg, mergeFields(fields...)...)
}

// Warn logs a warning message.
func Warn(msg string, fields ...Fields) {
	GetLogger().Warn(msg, mergeFields(fields...)...)
}

// Error logs an error message.
func Error(msg string, fields ...Fields) {
	GetLogger().Error(msg, mergeFields(fields...)...)
}

// mergeFields flattens field maps into slog key-value pairs.
func mergeFields(fields ...Fields) []interface{} {
	var result []interface{}
	for _, field := range fields {
		for k, v := range field {
			result = append(result, k, v)
		}
	}
	return result
}
