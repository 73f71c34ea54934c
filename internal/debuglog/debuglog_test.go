package debuglog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MuhdNihalCY/wpdebuglog/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingFallback captures everything sent to the fallback channel.
type recordingFallback struct {
	mu     sync.Mutex
	warns  []string
	errors []string
	raw    []string
}

func (f *recordingFallback) Warn(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warns = append(f.warns, fmt.Sprintf(format, args...))
}

func (f *recordingFallback) Error(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, fmt.Sprintf(format, args...))
}

func (f *recordingFallback) Raw(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, s)
}

func testConfig(dir string) config.DebugLog {
	return config.DebugLog{
		Enabled:      true,
		MinimumLevel: "DEBUG",
		Directory:    dir,
		FileName:     config.DefaultFileName,
		Rotation:     config.LogRotation{MaxSize: config.DefaultRotationSize},
	}
}

func openTestLogger(t *testing.T, cfg config.DebugLog, opts ...Option) (*Logger, *recordingFallback) {
	t.Helper()
	fb := &recordingFallback{}
	l, err := Open(cfg, append([]Option{WithFallback(fb)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, fb
}

func TestLogger_MinimumLevel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cfg := testConfig(dir)
	cfg.MinimumLevel = "WARNING"
	l, _ := openTestLogger(t, cfg)

	l.Log(NewRecord(INFO, "plugin.php:12", Text("x")))
	l.Log(NewRecord(ERROR, "plugin.php:13", Text("boom")))

	lines, err := l.Tail(10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[ERROR\] \[plugin\.php:13\] boom$`, lines[0])
}

func TestLogger_DisabledNeverTouchesDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cfg := testConfig(dir)
	cfg.Enabled = false
	l, fb := openTestLogger(t, cfg)

	assert.False(t, l.Enabled())
	l.Log(NewRecord(ERROR, "a.go:1", Text("ignored")))
	l.Logf(ERROR, "a.go:2", "also %s", "ignored")

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, fb.raw)
	assert.Empty(t, fb.errors)
}

func TestLogger_RoundTrip(t *testing.T) {
	l, _ := openTestLogger(t, testConfig(filepath.Join(t.TempDir(), "logs")))

	l.Logf(DEBUG, "cron.php:8", "job %d done", 3)
	l.Log(NewRecord(INFO, "", Text("multi\nline\r\npayload")))
	l.Log(NewRecord(WARNING, "api.php:40", FromValue(map[string]interface{}{"status": 503, "retry": true})))

	lines, err := l.Tail(3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], "] [DEBUG] [cron.php:8] job 3 done"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], `] [INFO] [unknown] multi\nline\npayload`), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], `] [WARNING] [api.php:40] {retry: "true", status: "503"}`), lines[2])
}

func TestLogger_ClearThenTail(t *testing.T) {
	l, _ := openTestLogger(t, testConfig(filepath.Join(t.TempDir(), "logs")))

	require.NoError(t, l.Clear(), "clearing before anything was written succeeds")
	l.Logf(INFO, "a.go:1", "before")
	require.NoError(t, l.Clear())
	require.NoError(t, l.Clear())

	lines, err := l.Tail(5)
	require.NoError(t, err)
	assert.Empty(t, lines)

	l.Logf(INFO, "a.go:2", "after")
	lines, err = l.Tail(5)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "after")
}

func TestLogger_LogError(t *testing.T) {
	l, _ := openTestLogger(t, testConfig(filepath.Join(t.TempDir(), "logs")))

	l.LogError("checkout.php:77", "payment declined",
		map[string]interface{}{"order": 5},
		map[string]string{"request_uri": "/checkout", "user_agent": "curl/8"})
	l.LogError("x.php:1", "no context", nil, nil)

	lines, err := l.Tail(2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0],
		`[ERROR] [checkout.php:77] {context: {order: "5"}, message: "payment declined", request_uri: "/checkout", user_agent: "curl/8"}`),
		lines[0])
	assert.True(t, strings.HasSuffix(lines[1], `[ERROR] [x.php:1] {context: {}, message: "no context"}`), lines[1])
}

func TestLogger_Mirror(t *testing.T) {
	var buf bytes.Buffer
	l, _ := openTestLogger(t, testConfig(filepath.Join(t.TempDir(), "logs")), WithMirror(&buf))

	l.Logf(INFO, "a.go:1", "mirrored")
	l.Logf(DEBUG, "a.go:2", "also mirrored")

	lines, err := l.Tail(10)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines, "\n")+"\n", buf.String())
}

func TestLogger_FileMirror(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(filepath.Join(base, "logs"))
	mirrorPath := filepath.Join(base, "mirror", "debug.log")
	cfg.Mirror = config.Mirror{Target: "file", Path: mirrorPath, MaxSize: 1, MaxBackups: 1}
	l, _ := openTestLogger(t, cfg)

	l.Logf(ERROR, "a.go:1", "to both")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(mirrorPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[ERROR] [a.go:1] to both\n")
}

func TestLogger_AppendFailureGoesToFallback(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "logs")
	l, fb := openTestLogger(t, testConfig(dir))

	// replace the future directory with a regular file
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))

	assert.NotPanics(t, func() { l.Logf(ERROR, "a.go:1", "lost") })
	require.Len(t, fb.errors, 1)
	assert.Contains(t, fb.errors[0], ErrDirectoryUnavailable.Error())
	require.Len(t, fb.raw, 1)
	assert.Contains(t, fb.raw[0], "[ERROR] [a.go:1] lost")
}

func TestLogger_ConsoleMirrorSkippedWhenFallbackHasLine(t *testing.T) {
	console, err := os.CreateTemp(t.TempDir(), "stderr")
	require.NoError(t, err)
	defer console.Close()
	orig := os.Stderr
	os.Stderr = console
	defer func() { os.Stderr = orig }()

	base := t.TempDir()
	dir := filepath.Join(base, "logs")
	cfg := testConfig(dir)
	cfg.Mirror = config.Mirror{Target: "stderr"}
	l, fb := openTestLogger(t, cfg)

	// a regular file where the directory belongs makes the append fail
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))
	l.Logf(ERROR, "a.go:2", "lost")
	require.NoError(t, os.Remove(dir))
	l.Logf(INFO, "a.go:1", "persisted")

	require.Len(t, fb.raw, 1)
	assert.Contains(t, fb.raw[0], "[ERROR] [a.go:2] lost")

	data, err := os.ReadFile(console.Name())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "persisted"))
	assert.NotContains(t, string(data), "lost", "the fallback already carried this line")
}

func TestDegraded(t *testing.T) {
	fb := &recordingFallback{}
	cfg := testConfig("")
	cfg.MinimumLevel = "INFO"
	l := Degraded(cfg, errors.New("directory missing"), WithFallback(fb))
	defer l.Close()

	l.Logf(DEBUG, "a.go:1", "filtered")
	l.Logf(INFO, "a.go:2", "kept")
	require.Len(t, fb.raw, 1)
	assert.Contains(t, fb.raw[0], "[INFO] [a.go:2] kept")

	_, err := l.Tail(5)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "directory missing")
	assert.True(t, errors.Is(l.Clear(), ErrUnavailable))
	_, errs := l.EnforceRetention(RetentionPolicy{MaxFiles: 1})
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrUnavailable))

	assert.Nil(t, l.Sink())
	assert.Contains(t, Degraded(cfg, nil).degraded.Error(), "no persistent log")
}

func TestOpen_ConfigurationErrors(t *testing.T) {
	base := t.TempDir()
	notDir := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(notDir, []byte("x"), 0o644))

	tests := []struct {
		name   string
		mutate func(*config.DebugLog)
	}{
		{"Bad level", func(c *config.DebugLog) { c.MinimumLevel = "LOUD" }},
		{"Bad rotation size", func(c *config.DebugLog) { c.Rotation.MaxSize = "ten" }},
		{"Bad line size", func(c *config.DebugLog) { c.MaxLineSize = "-1" }},
		{"Bad max age", func(c *config.DebugLog) { c.Retention.MaxAge = "soon" }},
		{"File name with path", func(c *config.DebugLog) { c.FileName = "sub/debug.log" }},
		{"Missing directory", func(c *config.DebugLog) { c.Directory = "" }},
		{"Directory is a file", func(c *config.DebugLog) { c.Directory = notDir }},
		{"Parent is a file", func(c *config.DebugLog) { c.Directory = filepath.Join(notDir, "logs") }},
		{"Bad mirror", func(c *config.DebugLog) { c.Mirror.Target = "syslog" }},
		{"File mirror without path", func(c *config.DebugLog) { c.Mirror.Target = "file" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(filepath.Join(base, "logs"))
			tt.mutate(&cfg)
			_, err := Open(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestOpen_AppliesRotationAndPolicy(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "logs"))
	cfg.Rotation.MaxSize = "100"
	cfg.Retention = config.Retention{MaxFiles: 3, MaxAge: "2d"}
	l, _ := openTestLogger(t, cfg)

	assert.Equal(t, RetentionPolicy{MaxFiles: 3, MaxAge: 48 * time.Hour}, l.Policy())

	for i := 0; i < 6; i++ {
		l.Logf(INFO, "a.go:1", "line %d with some padding to grow the file", i)
	}
	files, err := l.Sink().Files()
	require.NoError(t, err)
	assert.Greater(t, len(files), 1)
}
