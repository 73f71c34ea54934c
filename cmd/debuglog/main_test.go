package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, minimum string) (string, string) {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "logs")
	path := filepath.Join(base, "config.yaml")
	yaml := fmt.Sprintf(`app_log:
  level: ERROR
debug_log:
  enabled: true
  minimum_level: %s
  directory: %s
  retention:
    max_files: 1
`, minimum, dir)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path, dir
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_WriteTailClear(t *testing.T) {
	cfgPath, _ := writeConfig(t, "DEBUG")

	code, _, stderr := runCLI("write", "-config", cfgPath, "-level", "warning", "-caller", "shop.php:5", "low", "stock")
	require.Equal(t, 0, code, stderr)
	code, _, _ = runCLI("write", "-config", cfgPath, `{"sku":"A1","qty":0}`)
	require.Equal(t, 0, code)

	code, stdout, _ := runCLI("tail", "-config", cfgPath, "-n", "5")
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "[WARNING] [shop.php:5] low stock"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], `[INFO] [cli] {qty: "0", sku: "A1"}`), lines[1])

	code, _, _ = runCLI("clear", "-config", cfgPath)
	require.Equal(t, 0, code)
	code, stdout, _ = runCLI("tail", "-config", cfgPath)
	require.Equal(t, 0, code)
	assert.Empty(t, strings.TrimSpace(stdout))
}

func TestRun_Retain(t *testing.T) {
	cfgPath, dir := writeConfig(t, "DEBUG")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for seq := 1; seq <= 4; seq++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("custom-debug.log.%d", seq)), []byte("x\n"), 0o644))
	}

	code, stdout, _ := runCLI("retain", "-config", cfgPath, "-max-files", "2")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Removed 2 sealed file(s).")

	code, stdout, _ = runCLI("retain", "-config", cfgPath)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Removed 1 sealed file(s).", "configured policy keeps one")
}

func TestRun_Smoke(t *testing.T) {
	for _, minimum := range []string{"DEBUG", "WARNING"} {
		t.Run(minimum, func(t *testing.T) {
			cfgPath, _ := writeConfig(t, minimum)
			code, stdout, stderr := runCLI("smoke", "-config", cfgPath)
			require.Equal(t, 0, code, stderr)
			assert.Contains(t, stdout, "Smoke test passed")
		})
	}
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCLI()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage: debuglog")

	code, _, stderr = runCLI("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)

	code, stdout, _ := runCLI("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "wpdebuglog version")

	code, _, stderr = runCLI("tail", "-config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "failed to read config file")

	cfgPath, _ := writeConfig(t, "DEBUG")
	code, _, _ = runCLI("write", "-config", cfgPath, "-level", "LOUD", "x")
	assert.Equal(t, 2, code)
	code, _, _ = runCLI("write", "-config", cfgPath)
	assert.Equal(t, 2, code)
}
