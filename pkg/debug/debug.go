// Package debug provides category-based debug logging for cloudcompchem.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): CLOUDCOMPCHEM_DEBUG env or logging.debug in config
//   - Levels (HOW MUCH detail): CLOUDCOMPCHEM_LOG_LEVEL or LOG_LEVEL env, or logging.level in config
//
// Usage:
//
//	debug.Log("providers", "engine request", "url", url)
//	if debug.Enabled("jobs") { /* expensive formatting */ }
//
// Categories: providers, engine, jobs, storage, auth, transport, mcp, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, full engine request/response bodies are logged.
const LevelTrace = slog.LevelDebug - 4

const (
	envCategories = "CLOUDCOMPCHEM_DEBUG"
	envLevel      = "CLOUDCOMPCHEM_LOG_LEVEL"
	envLevelShort = "LOG_LEVEL"
)

// categories holds the set of enabled debug categories.
// Access is read-only after Init(), so no synchronization needed.
var categories map[string]bool

func init() {
	// Initialize from environment for immediate availability.
	// Can be re-initialized later via Init() with config values.
	categories = parseCategories(os.Getenv(envCategories))
}

// Init configures the debug system and installs the default slog handler.
// Environment overrides config. format is "text" (default) or "json".
func Init(configCategories, configLevel, format string) {
	InitWriter(os.Stderr, configCategories, configLevel, format)
}

// InitWriter is Init with an explicit log destination.
func InitWriter(w io.Writer, configCategories, configLevel, format string) {
	cats := os.Getenv(envCategories)
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)

	level := firstNonEmpty(os.Getenv(envLevel), os.Getenv(envLevelShort), configLevel, "INFO")
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: renameTraceLevel,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// renameTraceLevel prints LevelTrace as "TRACE" instead of "DEBUG-4".
func renameTraceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when the log level is TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes plain text to stderr without any slog formatting.
// Only emitted when category is enabled AND level is TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the sorted list of enabled categories.
func Categories() []string {
	result := make([]string, 0, len(categories))
	for k := range categories {
		result = append(result, k)
	}
	slices.Sort(result)
	return result
}

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
