// Package logging provides a small leveled wrapper around the standard
// library logger. Every component in this repository logs through it rather
// than calling log.Printf directly, so log lines carry a level and a
// component tag ("[C4 scanner chain=1]") the way the reference validator
// tags its own log.Printf call sites by file and operation.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Level is a log severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a case-insensitive level name, defaulting to Info.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger tags every line with a component name and filters by level.
type Logger struct {
	component string
	level     *atomic.Int32
	std       *log.Logger
}

// New creates a root logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	lv := &atomic.Int32{}
	lv.Store(int32(level))
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		level: lv,
		std:   log.New(w, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// SetLevel adjusts the logger's level at runtime (used on SIGHUP reload).
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// With returns a child logger tagged with an additional component name.
func (l *Logger) With(component string) *Logger {
	tag := component
	if l.component != "" {
		tag = l.component + " " + component
	}
	return &Logger{component: tag, level: l.level, std: l.std}
}

func (l *Logger) enabled(level Level) bool {
	return int32(level) >= l.level.Load()
}

func (l *Logger) log(level Level, format string, args ...any) {
	if !l.enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		l.std.Printf("%s [%s] %s", level, l.component, msg)
		return
	}
	l.std.Printf("%s %s", level, msg)
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }
