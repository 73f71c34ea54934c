package debuglog

import (
	"fmt"
	"strings"
)

// Level is the severity of a debug log record.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARNING
	ERROR
)

var levelNames = map[Level]string{
	DEBUG:   "DEBUG",
	INFO:    "INFO",
	WARNING: "WARNING",
	ERROR:   "ERROR",
}

var levelByName = map[string]Level{
	"DEBUG":   DEBUG,
	"INFO":    INFO,
	"WARNING": WARNING,
	"WARN":    WARNING,
	"ERROR":   ERROR,
	"ERR":     ERROR,
}

// ParseLevel converts a case-insensitive level name to a Level.
func ParseLevel(name string) (Level, error) {
	level, ok := levelByName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return DEBUG, fmt.Errorf("invalid log level: %q", name)
	}
	return level, nil
}

// String returns the upper-case level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	level, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}
