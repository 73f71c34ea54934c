package debuglog

import (
	"fmt"

	"github.com/MuhdNihalCY/wpdebuglog/internal/config"
	"github.com/gobwas/glob"
)

// ShouldLog reports whether a record at level passes the process-wide gate.
func ShouldLog(level, minimum Level, enabled bool) bool {
	return enabled && level >= minimum
}

// callerOverride is a pre-compiled caller_levels entry.
type callerOverride struct {
	pattern string
	matcher glob.Glob
	minimum Level
}

// Filter applies the process-wide gate plus optional per-caller minimums.
// It is immutable after construction.
type Filter struct {
	enabled   bool
	minimum   Level
	overrides []callerOverride
}

// NewFilter builds a filter with no caller overrides.
func NewFilter(enabled bool, minimum Level) *Filter {
	return &Filter{enabled: enabled, minimum: minimum}
}

// NewFilterFromConfig compiles the level settings of cfg.
func NewFilterFromConfig(cfg config.DebugLog) (*Filter, error) {
	minimum, err := ParseLevel(cfg.MinimumLevel)
	if err != nil {
		return nil, fmt.Errorf("minimum_level: %w", err)
	}

	f := NewFilter(cfg.Enabled, minimum)
	for i, cl := range cfg.CallerLevels {
		g, err := glob.Compile(cl.Pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("caller_levels[%d]: invalid pattern '%s': %w", i, cl.Pattern, err)
		}
		level, err := ParseLevel(cl.MinimumLevel)
		if err != nil {
			return nil, fmt.Errorf("caller_levels[%d]: %w", i, err)
		}
		f.overrides = append(f.overrides, callerOverride{pattern: cl.Pattern, matcher: g, minimum: level})
	}
	return f, nil
}

// Enabled reports the process-wide switch.
func (f *Filter) Enabled() bool { return f.enabled }

// Minimum returns the process-wide minimum level.
func (f *Filter) Minimum() Level { return f.minimum }

// Allow reports whether a record from caller at level should be persisted.
// The first matching override replaces the process-wide minimum.
func (f *Filter) Allow(level Level, caller string) bool {
	minimum := f.minimum
	for _, o := range f.overrides {
		if o.matcher.Match(caller) {
			minimum = o.minimum
			break
		}
	}
	return ShouldLog(level, minimum, f.enabled)
}
