package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MuhdNihalCY/wpdebuglog/internal/config"
	"github.com/MuhdNihalCY/wpdebuglog/internal/debuglog"
	"github.com/MuhdNihalCY/wpdebuglog/internal/logger"
	"github.com/MuhdNihalCY/wpdebuglog/internal/version"
)

const usage = `Usage: debuglog <command> [flags]

Commands:
  write    append a record: debuglog write [-level INFO] [-caller cli] <message or JSON>
  tail     print the last lines: debuglog tail [-n 200]
  clear    truncate the active log file
  retain   delete sealed files: debuglog retain [-max-files N] [-max-age 7d]
  smoke    write a set of sample records and verify they can be read back
  version  print version information

Every command accepts -config <path> (default config/config.yaml).
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "version":
		fmt.Fprintln(stdout, version.VersionInfo())
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	case "write", "tail", "clear", "retain", "smoke":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config/config.yaml", "Path to the configuration file")
	level := fs.String("level", "INFO", "Record level (write)")
	caller := fs.String("caller", "cli", "Caller location (write)")
	lines := fs.Int("n", config.DefaultLines, "Number of lines (tail)")
	maxFiles := fs.Int("max-files", -1, "Override retention.max_files (retain)")
	maxAge := fs.String("max-age", "", "Override retention.max_age (retain)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	appLogger := logger.NewAppLogger(stderr, logger.WARN)
	if err := appLogger.SetLogLevelFromString(cfg.AppLog.Level); err != nil {
		appLogger.Warn("Invalid log level '%s': %v", cfg.AppLog.Level, err)
	}

	l, err := debuglog.Open(cfg.DebugLog, debuglog.WithFallback(appLogger))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer l.Close()

	switch cmd {
	case "write":
		return runWrite(l, *level, *caller, strings.Join(fs.Args(), " "), stderr)
	case "tail":
		return runTail(l, *lines, stdout, stderr)
	case "clear":
		if err := l.Clear(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "Debug log cleared.")
		return 0
	case "retain":
		return runRetain(l, *maxFiles, *maxAge, stdout, stderr)
	default:
		return runSmoke(l, stdout, stderr)
	}
}

func runWrite(l *debuglog.Logger, levelName, caller, message string, stderr io.Writer) int {
	level, err := debuglog.ParseLevel(levelName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if message == "" {
		fmt.Fprintln(stderr, "Error: message is required")
		return 2
	}
	if !l.Enabled() {
		fmt.Fprintln(stderr, "Warning: debug logging is disabled, nothing written")
	}
	l.Log(debuglog.NewRecord(level, caller, parseMessage(message)))
	return 0
}

// parseMessage turns a JSON object or array into a structured payload and
// keeps anything else as text.
func parseMessage(message string) debuglog.Payload {
	trimmed := strings.TrimSpace(message)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v interface{}
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return debuglog.FromValue(v)
		}
	}
	return debuglog.Text(message)
}

func runTail(l *debuglog.Logger, n int, stdout, stderr io.Writer) int {
	lines, err := l.Tail(n)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, line := range lines {
		fmt.Fprintln(stdout, line)
	}
	return 0
}

func runRetain(l *debuglog.Logger, maxFiles int, maxAge string, stdout, stderr io.Writer) int {
	policy := l.Policy()
	if maxFiles >= 0 {
		policy.MaxFiles = maxFiles
	}
	if maxAge != "" {
		age, err := config.ParseDuration(maxAge)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		policy.MaxAge = age
	}

	removed, errs := l.EnforceRetention(policy)
	fmt.Fprintf(stdout, "Removed %d sealed file(s).\n", removed)
	for _, err := range errs {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	if len(errs) > 0 {
		return 1
	}
	return 0
}

// runSmoke writes one record of each kind and checks they come back.
func runSmoke(l *debuglog.Logger, stdout, stderr io.Writer) int {
	if !l.Enabled() {
		fmt.Fprintln(stderr, "Error: debug logging is disabled in the configuration")
		return 1
	}

	marker := fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	const caller = "debuglog/smoke"

	l.Log(debuglog.NewRecord(debuglog.INFO, caller, debuglog.Text("Test log message "+marker)))
	l.Log(debuglog.NewRecord(debuglog.INFO, caller, debuglog.FromValue(map[string]interface{}{
		"test_id":    "array_test",
		"marker":     marker,
		"timestamp":  time.Now().Unix(),
		"test_array": []string{"item1", "item2", "item3"},
	})))
	l.LogError(caller, "Test error message "+marker, map[string]interface{}{
		"error_code":   999,
		"test_context": "smoke",
	}, nil)
	for _, level := range []debuglog.Level{debuglog.DEBUG, debuglog.INFO, debuglog.WARNING, debuglog.ERROR} {
		l.Log(debuglog.NewRecord(level, caller, debuglog.Text(level.String()+" level test "+marker)))
	}

	lines, err := l.Tail(20)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	found := 0
	for _, line := range lines {
		if strings.Contains(line, marker) {
			fmt.Fprintln(stdout, line)
			found++
		}
	}

	// records below the minimum level are filtered on purpose
	expected := 3
	for _, level := range []debuglog.Level{debuglog.DEBUG, debuglog.INFO, debuglog.WARNING, debuglog.ERROR} {
		if l.Allows(level, caller) {
			expected++
		}
	}
	expected -= filteredBase(l, caller)

	if found != expected {
		fmt.Fprintf(stderr, "Error: smoke test failed: expected %d record(s), found %d\n", expected, found)
		return 1
	}
	fmt.Fprintf(stdout, "Smoke test passed: %d record(s) written and read back.\n", found)
	return 0
}

// filteredBase counts the fixed smoke records (two INFO, one ERROR) that the
// filter drops.
func filteredBase(l *debuglog.Logger, caller string) int {
	n := 0
	if !l.Allows(debuglog.INFO, caller) {
		n += 2
	}
	if !l.Allows(debuglog.ERROR, caller) {
		n++
	}
	return n
}
