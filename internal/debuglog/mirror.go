package debuglog

import (
	"fmt"
	"io"
	"os"

	"github.com/MuhdNihalCY/wpdebuglog/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// consoleMirror is the stderr destination. It shares the console with the
// fallback channel.
type consoleMirror struct{ io.Writer }

func (consoleMirror) Close() error { return nil }

// newMirror builds the secondary destination every persisted line is also
// written to. A nil writer means mirroring is off.
func newMirror(cfg config.Mirror) (io.WriteCloser, error) {
	switch cfg.Target {
	case "", "none":
		return nil, nil
	case "stderr":
		return consoleMirror{os.Stderr}, nil
	case "file":
	default:
		return nil, fmt.Errorf("unsupported mirror target: %s", cfg.Target)
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("mirror target 'file' requires a path")
	}

	maxAgeDays := 0
	if cfg.MaxAge != "" {
		age, err := config.ParseDuration(cfg.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("invalid mirror.max_age '%s': %w", cfg.MaxAge, err)
		}
		// lumberjack counts whole days
		maxAgeDays = int(age.Hours() / 24)
		if maxAgeDays == 0 {
			maxAgeDays = 1
		}
	}

	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     maxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}
