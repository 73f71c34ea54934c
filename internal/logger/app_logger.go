// internal/logger/app_logger.go

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel defines the available logging levels
type LogLevel int

const (
	// Log levels
	TRACE LogLevel = 10
	DEBUG LogLevel = 20
	INFO  LogLevel = 30
	WARN  LogLevel = 40
	ERROR LogLevel = 50
	FATAL LogLevel = 60
)

// LogLevel to string mapping
var logLevelNames = map[LogLevel]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// LogLevelNameToLevel maps string level names to level values
var LogLevelNameToLevel = map[string]LogLevel{
	"TRACE": TRACE,
	"DEBUG": DEBUG,
	"INFO":  INFO,
	"WARN":  WARN,
	"ERROR": ERROR,
	"FATAL": FATAL,
}

// AppLogger is the process's own diagnostic logger. It writes to stderr and
// doubles as the fallback channel for debug log sink failures.
type AppLogger struct {
	mu     sync.Mutex
	writer io.Writer
	level  LogLevel
	exit   func(int)
}

// Global instance
var (
	defaultLogger *AppLogger
	once          sync.Once
)

// GetAppLogger returns the singleton instance of the application logger
func GetAppLogger() *AppLogger {
	once.Do(func() {
		defaultLogger = NewAppLogger(os.Stderr, WARN)
	})
	return defaultLogger
}

// NewAppLogger creates a standalone logger writing to w.
func NewAppLogger(w io.Writer, level LogLevel) *AppLogger {
	return &AppLogger{
		writer: w,
		level:  level,
		exit:   os.Exit,
	}
}

// SetOutput replaces the destination writer.
func (l *AppLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// SetLogLevel sets the minimum log level
func (l *AppLogger) SetLogLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetLogLevelFromString sets the log level from a string name
func (l *AppLogger) SetLogLevelFromString(levelName string) error {
	levelName = strings.ToUpper(levelName)
	level, ok := LogLevelNameToLevel[levelName]
	if !ok {
		return fmt.Errorf("invalid log level: %s", levelName)
	}
	l.SetLogLevel(level)
	return nil
}

// Enabled reports whether messages at level would be written.
func (l *AppLogger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

// logf formats and logs a message if the level is sufficient.
// The lock is not held while formatting.
func (l *AppLogger) logf(level LogLevel, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}

	now := time.Now().Format(time.RFC3339)
	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("[%s] %s: %s\n", now, logLevelNames[level], message)

	l.mu.Lock()
	_, _ = io.WriteString(l.writer, logLine)
	exit := l.exit
	l.mu.Unlock()

	if level == FATAL {
		exit(1)
	}
}

// Trace logs a message at TRACE level
func (l *AppLogger) Trace(format string, args ...interface{}) {
	l.logf(TRACE, format, args...)
}

// Debug logs a message at DEBUG level
func (l *AppLogger) Debug(format string, args ...interface{}) {
	l.logf(DEBUG, format, args...)
}

// Info logs a message at INFO level
func (l *AppLogger) Info(format string, args ...interface{}) {
	l.logf(INFO, format, args...)
}

// Warn logs a message at WARN level
func (l *AppLogger) Warn(format string, args ...interface{}) {
	l.logf(WARN, format, args...)
}

// Error logs a message at ERROR level
func (l *AppLogger) Error(format string, args ...interface{}) {
	l.logf(ERROR, format, args...)
}

// Fatal logs a message at FATAL level and exits the program
func (l *AppLogger) Fatal(format string, args ...interface{}) {
	l.logf(FATAL, format, args...)
}

// Raw writes s unchanged, bypassing level and formatting. It is used to
// emit already-encoded debug log lines when the persistent log is unavailable.
func (l *AppLogger) Raw(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.writer, s)
}
