// Package observability provides the logging surface shared by every
// component. Components receive a Logger; none write to the standard
// library logger directly.
package observability

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Logger is the structured logging interface used across the service.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithPrefix(prefix string) Logger
	With(fields map[string]interface{}) Logger
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
	levelFatal
)

var levelNames = map[level]string{
	levelDebug: "DEBUG",
	levelInfo:  "INFO",
	levelWarn:  "WARN",
	levelError: "ERROR",
	levelFatal: "FATAL",
}

// StandardLogger writes timestamped lines to stderr. Fields render as
// sorted key=value pairs for stable output.
type StandardLogger struct {
	prefix string
	min    level
	base   map[string]interface{}
}

// NewStandardLogger returns a logger at the given minimum level
// ("debug", "info", "warn", "error"; unknown values mean info).
func NewStandardLogger(prefix, minLevel string) *StandardLogger {
	return &StandardLogger{prefix: prefix, min: parseLevel(minLevel)}
}

func parseLevel(s string) level {
	switch strings.ToLower(s) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (l *StandardLogger) log(lv level, msg string, fields map[string]interface{}) {
	if lv < l.min {
		return
	}
	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(levelNames[lv])
	b.WriteString("]")
	if l.prefix != "" {
		b.WriteString(" ")
		b.WriteString(l.prefix)
		b.WriteString(":")
	}
	b.WriteString(" ")
	b.WriteString(msg)
	merged := mergeFields(l.base, fields)
	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, merged[k])
		}
	}
	fmt.Fprintln(os.Stderr, b.String())
	if lv == levelFatal {
		os.Exit(1)
	}
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	if len(base) == 0 {
		return extra
	}
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func (l *StandardLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(levelDebug, msg, fields)
}
func (l *StandardLogger) Info(msg string, fields map[string]interface{}) {
	l.log(levelInfo, msg, fields)
}
func (l *StandardLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(levelWarn, msg, fields)
}
func (l *StandardLogger) Error(msg string, fields map[string]interface{}) {
	l.log(levelError, msg, fields)
}
func (l *StandardLogger) Fatal(msg string, fields map[string]interface{}) {
	l.log(levelFatal, msg, fields)
}

func (l *StandardLogger) Debugf(format string, args ...interface{}) {
	l.log(levelDebug, fmt.Sprintf(format, args...), nil)
}
func (l *StandardLogger) Infof(format string, args ...interface{}) {
	l.log(levelInfo, fmt.Sprintf(format, args...), nil)
}
func (l *StandardLogger) Warnf(format string, args ...interface{}) {
	l.log(levelWarn, fmt.Sprintf(format, args...), nil)
}
func (l *StandardLogger) Errorf(format string, args ...interface{}) {
	l.log(levelError, fmt.Sprintf(format, args...), nil)
}

func (l *StandardLogger) WithPrefix(prefix string) Logger {
	p := prefix
	if l.prefix != "" {
		p = l.prefix + "." + prefix
	}
	return &StandardLogger{prefix: p, min: l.min, base: l.base}
}

func (l *StandardLogger) With(fields map[string]interface{}) Logger {
	return &StandardLogger{prefix: l.prefix, min: l.min, base: mergeFields(l.base, fields)}
}
