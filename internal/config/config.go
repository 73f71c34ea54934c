package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gobwas/glob"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Default values applied before unmarshalling.
const (
	DefaultFileName     = "custom-debug.log"
	DefaultMinimumLevel = "DEBUG"
	DefaultRotationSize = "10MB"
	DefaultMaxFiles     = 5
	DefaultAdminPort    = 8090
	DefaultLines        = 200
	DefaultMaxLines     = 10000
	DefaultTokenTTL     = "10m"
)

// Config represents the application configuration
type Config struct {
	AppLog struct {
		Level string `yaml:"level"`
	} `yaml:"app_log"`

	DebugLog DebugLog `yaml:"debug_log"`
	Admin    Admin    `yaml:"admin"`
}

// DebugLog configures the persistent debug log series.
type DebugLog struct {
	Enabled          bool          `yaml:"enabled"`
	MinimumLevel     string        `yaml:"minimum_level" validate:"omitempty,oneof=DEBUG INFO WARNING WARN ERROR debug info warning warn error"`
	Directory        string        `yaml:"directory"`
	FileName         string        `yaml:"file_name"`
	MaxLineSize      string        `yaml:"max_line_size,omitempty"` // e.g. "64KB"; empty means unlimited
	Rotation         LogRotation   `yaml:"rotation"`
	Retention        Retention     `yaml:"retention"`
	CallerLevels     []CallerLevel `yaml:"caller_levels,omitempty" validate:"dive"`
	CrossProcessLock bool          `yaml:"cross_process_lock,omitempty"`
	Mirror           Mirror        `yaml:"mirror"`
}

// LogRotation defines parameters for log file rotation.
type LogRotation struct {
	MaxSize string `yaml:"max_size,omitempty"` // e.g., "10MB", "512k"; "0" disables rotation
}

// Retention bounds the number and age of sealed log files.
type Retention struct {
	MaxFiles int    `yaml:"max_files" validate:"gte=0"`
	MaxAge   string `yaml:"max_age,omitempty"`  // e.g., "7d", "12h"
	Schedule string `yaml:"schedule,omitempty"` // cron spec, e.g. "@every 1h"
	OnRotate bool   `yaml:"on_rotate,omitempty"`
}

// CallerLevel overrides the minimum level for callers matching a glob pattern.
type CallerLevel struct {
	Pattern      string `yaml:"pattern" validate:"required"`
	MinimumLevel string `yaml:"minimum_level" validate:"required"`
}

// Mirror configures the secondary destination every persisted line is copied to.
type Mirror struct {
	Target     string `yaml:"target,omitempty" validate:"omitempty,oneof=none stderr file"`
	Path       string `yaml:"path,omitempty"`
	MaxSize    int    `yaml:"max_size,omitempty" validate:"gte=0"` // MB
	MaxBackups int    `yaml:"max_backups,omitempty" validate:"gte=0"`
	MaxAge     string `yaml:"max_age,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// Admin configures the HTTP surface used to view and manage the log.
type Admin struct {
	Enabled        bool     `yaml:"enabled"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Mode           string   `yaml:"mode" validate:"omitempty,oneof=debug release test"`
	TrustedProxies []string `yaml:"trusted_proxies"`
	DefaultLines   int      `yaml:"default_lines" validate:"gte=0"`
	MaxLines       int      `yaml:"max_lines" validate:"gte=0"`
	RateLimit      int      `yaml:"rate_limit" validate:"gte=0"` // requests per minute per client IP, 0 disables
	Token          struct {
		Secret     string `yaml:"secret"`
		Expiration string `yaml:"expiration"`
	} `yaml:"token"`
}

var validLevels = map[string]bool{"DEBUG": true, "INFO": true, "WARNING": true, "WARN": true, "ERROR": true}

// appLevels are the levels accepted by the process logger.
var appLevels = map[string]bool{"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "FATAL": true}

// LoadConfig loads and validates the configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file '%s': %w", path, err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration populated with default values only.
func Default() *Config {
	var cfg Config
	cfg.AppLog.Level = "WARN"

	cfg.DebugLog.MinimumLevel = DefaultMinimumLevel
	cfg.DebugLog.FileName = DefaultFileName
	cfg.DebugLog.Rotation.MaxSize = DefaultRotationSize
	cfg.DebugLog.Retention.MaxFiles = DefaultMaxFiles

	cfg.Admin.Host = "127.0.0.1"
	cfg.Admin.Port = DefaultAdminPort
	cfg.Admin.Mode = "release"
	cfg.Admin.DefaultLines = DefaultLines
	cfg.Admin.MaxLines = DefaultMaxLines
	cfg.Admin.Token.Expiration = DefaultTokenTTL
	return &cfg
}

// validateConfig performs semantic validation of the configuration
func validateConfig(cfg *Config) error {
	if !appLevels[strings.ToUpper(cfg.AppLog.Level)] {
		return fmt.Errorf("invalid app_log.level: '%s'", cfg.AppLog.Level)
	}

	if err := validateDebugLog(&cfg.DebugLog); err != nil {
		return err
	}

	if cfg.Admin.Enabled {
		if cfg.Admin.Port <= 0 || cfg.Admin.Port > 65535 {
			return fmt.Errorf("invalid admin.port: %d", cfg.Admin.Port)
		}
		if cfg.Admin.Token.Secret == "" {
			return errors.New("admin.token.secret cannot be empty when admin is enabled")
		}
		if _, err := ParseDuration(cfg.Admin.Token.Expiration); err != nil {
			return fmt.Errorf("invalid admin.token.expiration: %w", err)
		}
		if cfg.Admin.RateLimit < 0 {
			return errors.New("admin.rate_limit cannot be negative")
		}
		if cfg.Admin.MaxLines > 0 && cfg.Admin.DefaultLines > cfg.Admin.MaxLines {
			return fmt.Errorf("admin.default_lines (%d) exceeds admin.max_lines (%d)", cfg.Admin.DefaultLines, cfg.Admin.MaxLines)
		}
	}

	return nil
}

func validateDebugLog(dl *DebugLog) error {
	if !validLevels[strings.ToUpper(dl.MinimumLevel)] {
		return fmt.Errorf("invalid debug_log.minimum_level: '%s'", dl.MinimumLevel)
	}
	if dl.Enabled && dl.Directory == "" {
		return errors.New("debug_log.directory is required when debug_log is enabled")
	}
	if dl.FileName == "" {
		return errors.New("debug_log.file_name cannot be empty")
	}
	if filepath.Base(dl.FileName) != dl.FileName {
		return fmt.Errorf("debug_log.file_name '%s' must not contain a path", dl.FileName)
	}
	if dl.MaxLineSize != "" {
		if _, err := ParseSize(dl.MaxLineSize); err != nil {
			return fmt.Errorf("invalid debug_log.max_line_size: %w", err)
		}
	}
	if dl.Rotation.MaxSize != "" {
		if _, err := ParseSize(dl.Rotation.MaxSize); err != nil {
			return fmt.Errorf("invalid debug_log.rotation.max_size: %w", err)
		}
	}

	if dl.Retention.MaxFiles < 0 {
		return errors.New("debug_log.retention.max_files cannot be negative")
	}
	if dl.Retention.MaxAge != "" {
		if _, err := ParseDuration(dl.Retention.MaxAge); err != nil {
			return fmt.Errorf("invalid debug_log.retention.max_age: %w", err)
		}
	}
	if dl.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(dl.Retention.Schedule); err != nil {
			return fmt.Errorf("invalid debug_log.retention.schedule '%s': %w", dl.Retention.Schedule, err)
		}
	}

	for i, cl := range dl.CallerLevels {
		if cl.Pattern == "" {
			return fmt.Errorf("debug_log.caller_levels[%d]: pattern is required", i)
		}
		if _, err := glob.Compile(cl.Pattern); err != nil {
			return fmt.Errorf("debug_log.caller_levels[%d]: invalid pattern '%s': %w", i, cl.Pattern, err)
		}
		if !validLevels[strings.ToUpper(cl.MinimumLevel)] {
			return fmt.Errorf("debug_log.caller_levels[%d]: invalid minimum_level '%s'", i, cl.MinimumLevel)
		}
	}

	switch dl.Mirror.Target {
	case "", "none", "stderr":
	case "file":
		if dl.Mirror.Path == "" {
			return errors.New("debug_log.mirror.path is required for target 'file'")
		}
		if dl.Mirror.MaxSize < 0 || dl.Mirror.MaxBackups < 0 {
			return errors.New("debug_log.mirror.max_size and max_backups cannot be negative")
		}
		if dl.Mirror.MaxAge != "" {
			if _, err := ParseDuration(dl.Mirror.MaxAge); err != nil {
				return fmt.Errorf("invalid debug_log.mirror.max_age: %w", err)
			}
		}
	default:
		return fmt.Errorf("invalid debug_log.mirror.target '%s', must be 'none', 'stderr' or 'file'", dl.Mirror.Target)
	}

	return nil
}

// ValidateConfig uses go-playground/validator for struct-level validation.
// It complements the semantic validation in validateConfig.
func ValidateConfig(cfg *Config) error {
	validate := validator.New()

	err := validate.Struct(cfg)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		messages := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			messages = append(messages, fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", fe.Namespace(), fe.Tag()))
		}
		return errors.New(strings.Join(messages, "; "))
	}

	return validateConfig(cfg)
}

// ParseDuration parses a duration string (e.g., "10m", "1h30m", "7d").
// Supports standard time.ParseDuration units plus 'd' for days.
// Returns an error if the format is invalid or the duration is non-positive.
func ParseDuration(durationStr string) (time.Duration, error) {
	durationStr = strings.TrimSpace(durationStr)
	if durationStr == "" {
		return 0, errors.New("duration string cannot be empty")
	}

	if strings.HasSuffix(strings.ToLower(durationStr), "d") {
		numStr := strings.TrimSuffix(strings.ToLower(durationStr), "d")
		days, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number format for days in '%s': %w", durationStr, err)
		}
		if days <= 0 {
			return 0, fmt.Errorf("duration must be positive: '%s'", durationStr)
		}
		d := time.Duration(days) * 24 * time.Hour
		if d <= 0 {
			return 0, fmt.Errorf("duration %dd results in overflow", days)
		}
		return d, nil
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format '%s': %w", durationStr, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: '%s'", durationStr)
	}
	return d, nil
}

// ParseSize parses a size string (e.g., "10MB", "5k", "1G") into bytes.
// Supports K, M, G suffixes (case-insensitive), with or without a trailing B.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, errors.New("size string cannot be empty")
	}

	var multiplier int64 = 1
	numStr := sizeStr
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30},
		{"K", 1 << 10}, {"M", 1 << 20}, {"G", 1 << 30}, {"B", 1},
	} {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			multiplier = unit.mult
			numStr = strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))
			break
		}
	}

	// big.Int catches malformed and overflowing input in one place
	numBig := new(big.Int)
	if _, ok := numBig.SetString(numStr, 10); !ok {
		return 0, fmt.Errorf("invalid number format in size string '%s'", sizeStr)
	}
	if numBig.Sign() < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", numBig.String())
	}

	resultBig := new(big.Int).Mul(numBig, big.NewInt(multiplier))
	if !resultBig.IsInt64() {
		return 0, fmt.Errorf("size value '%s' overflows int64", sizeStr)
	}
	return resultBig.Int64(), nil
}
