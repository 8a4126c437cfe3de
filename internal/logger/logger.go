// ABOUTME: Structured logging with level control and component-scoped loggers
// ABOUTME: Backward compatible with existing log.Printf usage

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level orders log severities; messages below the current level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel accepts debug, info, warn/warning and error in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

var (
	mu     sync.RWMutex
	level            = LevelInfo
	output io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose (DEBUG) logging
func SetVerbose(v bool) {
	if v {
		SetLevel(LevelDebug)
	} else {
		SetLevel(LevelInfo)
	}
}

// IsVerbose returns current verbose setting
func IsVerbose() bool {
	return GetLevel() == LevelDebug
}

func SetLevel(l Level) {
	mu.Lock()
	level = l
	mu.Unlock()
}

func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// SetOutput sets the output destination for logs
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		output = os.Stderr
	} else {
		output = w
	}
	log.SetOutput(output)
}

func logf(l Level, component, format string, args ...interface{}) {
	if l < GetLevel() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if component != "" {
		log.Printf("[%s] %s: %s", l, component, msg)
		return
	}
	log.Printf("[%s] %s", l, msg)
}

// Debug logs at DEBUG level (only shown when verbose)
func Debug(format string, args ...interface{}) {
	logf(LevelDebug, "", format, args...)
}

// Info logs at INFO level
func Info(format string, args ...interface{}) {
	logf(LevelInfo, "", format, args...)
}

// Warn logs at WARN level
func Warn(format string, args ...interface{}) {
	logf(LevelWarn, "", format, args...)
}

// Error logs at ERROR level (always shown)
func Error(format string, args ...interface{}) {
	logf(LevelError, "", format, args...)
}

// Logger prefixes every message with a component name.
type Logger struct {
	component string
}

// Named returns a logger for one component, e.g. Named("rpc").
func Named(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	logf(LevelDebug, l.component, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	logf(LevelInfo, l.component, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	logf(LevelWarn, l.component, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	logf(LevelError, l.component, format, args...)
}
