package debuglog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/MuhdNihalCY/wpdebuglog/internal/config"
	"github.com/MuhdNihalCY/wpdebuglog/internal/logger"
)

// Fallback receives sink failures and, when the persistent log cannot be
// written, the encoded lines themselves. *logger.AppLogger satisfies it.
type Fallback interface {
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Raw(s string)
}

// Option customizes a Logger.
type Option func(*Logger)

// WithFallback replaces the process logger as fallback channel.
func WithFallback(f Fallback) Option {
	return func(l *Logger) { l.fallback = f }
}

// WithMirror overrides the configured mirror destination.
func WithMirror(w io.Writer) Option {
	return func(l *Logger) {
		l.mirror = w
		l.mirrorCloser = nil
	}
}

// Logger combines the level filter, the encoder and the sink. Log never
// fails; reading, clearing and retention report errors to the caller.
type Logger struct {
	filter   *Filter
	encoder  Encoder
	sink     *Sink
	policy   RetentionPolicy
	fallback Fallback
	degraded error

	mirrorMu     sync.Mutex
	mirror       io.Writer
	mirrorCloser io.Closer
}

// Open validates cfg and builds a logger. A disabled configuration never
// touches the filesystem. Errors wrap ErrConfiguration.
func Open(cfg config.DebugLog, opts ...Option) (*Logger, error) {
	filter, err := NewFilterFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	rotateBytes := DefaultRotateBytes
	if cfg.Rotation.MaxSize != "" {
		if rotateBytes, err = config.ParseSize(cfg.Rotation.MaxSize); err != nil {
			return nil, fmt.Errorf("%w: rotation.max_size: %w", ErrConfiguration, err)
		}
	}

	var maxLine int64
	if cfg.MaxLineSize != "" {
		if maxLine, err = config.ParseSize(cfg.MaxLineSize); err != nil {
			return nil, fmt.Errorf("%w: max_line_size: %w", ErrConfiguration, err)
		}
	}

	policy := RetentionPolicy{MaxFiles: cfg.Retention.MaxFiles}
	if cfg.Retention.MaxAge != "" {
		if policy.MaxAge, err = config.ParseDuration(cfg.Retention.MaxAge); err != nil {
			return nil, fmt.Errorf("%w: retention.max_age: %w", ErrConfiguration, err)
		}
	}

	name := cfg.FileName
	if name == "" {
		name = config.DefaultFileName
	}
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: file_name '%s' must not contain a path", ErrConfiguration, name)
	}

	if cfg.Enabled {
		if err := checkDirectory(cfg.Directory); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}

	l := &Logger{
		filter:   filter,
		encoder:  Encoder{MaxLineBytes: int(maxLine)},
		policy:   policy,
		fallback: logger.GetAppLogger(),
	}

	if cfg.Enabled {
		mirror, err := newMirror(cfg.Mirror)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		if mirror != nil {
			l.mirror = mirror
			l.mirrorCloser = mirror
		}
	}

	for _, opt := range opts {
		opt(l)
	}

	l.sink = NewSink(SinkOptions{
		Directory:        cfg.Directory,
		FileName:         name,
		RotateBytes:      rotateBytes,
		CrossProcessLock: cfg.CrossProcessLock,
		RetainOnRotate:   cfg.Retention.OnRotate,
		Retention:        policy,
		OnRetention:      l.reportRetention,
	})
	return l, nil
}

// Degraded returns a logger without persistent storage, used after Open
// failed. Passing records are written to the fallback channel; Tail, Clear
// and EnforceRetention return ErrUnavailable.
func Degraded(cfg config.DebugLog, reason error, opts ...Option) *Logger {
	filter, err := NewFilterFromConfig(cfg)
	if err != nil {
		filter = NewFilter(cfg.Enabled, DEBUG)
	}
	if reason == nil {
		reason = errors.New("no persistent log configured")
	}
	l := &Logger{
		filter:   filter,
		fallback: logger.GetAppLogger(),
		degraded: reason,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// checkDirectory rejects paths that can never hold the log. A missing
// directory is fine; the sink creates it on first append.
func checkDirectory(dir string) error {
	if dir == "" {
		return errors.New("directory is required")
	}
	fi, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		// the nearest existing ancestor must be a directory
		for parent := filepath.Dir(dir); ; parent = filepath.Dir(parent) {
			pfi, perr := os.Stat(parent)
			if perr == nil {
				if !pfi.IsDir() {
					return fmt.Errorf("'%s' cannot be created: '%s' is not a directory", dir, parent)
				}
				return nil
			}
			if parent == filepath.Dir(parent) {
				return nil
			}
		}
	}
	if err != nil {
		return fmt.Errorf("cannot access '%s': %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("'%s' is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("'%s' is not writable: %w", dir, err)
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	return nil
}

// Enabled reports whether any record can be persisted.
func (l *Logger) Enabled() bool { return l.filter.Enabled() }

// Allows reports whether a record at level from caller would be persisted.
func (l *Logger) Allows(level Level, caller string) bool { return l.filter.Allow(level, caller) }

// Policy returns the configured retention policy.
func (l *Logger) Policy() RetentionPolicy { return l.policy }

// Sink returns the underlying sink, nil for a degraded logger.
func (l *Logger) Sink() *Sink { return l.sink }

// Log filters, encodes and appends a record. Failures are reported to the
// fallback channel and never returned.
func (l *Logger) Log(r Record) {
	if !l.filter.Allow(r.Level, r.Caller) {
		return
	}
	line := l.encoder.Encode(r)

	if l.sink == nil {
		l.fallback.Raw(line)
		return
	}
	if err := l.sink.Append([]byte(line)); err != nil {
		l.fallback.Error("debug log append failed: %v", err)
		l.fallback.Raw(line)
		if l.mirrorIsConsole() {
			return
		}
	}
	l.writeMirror(line)
}

// Logf logs a formatted text payload.
func (l *Logger) Logf(level Level, caller, format string, args ...interface{}) {
	if !l.filter.Allow(level, caller) {
		return
	}
	l.Log(NewRecord(level, caller, Text(fmt.Sprintf(format, args...))))
}

// LogError logs an ERROR record whose payload maps message and context plus
// any request metadata such as request_uri or user_agent.
func (l *Logger) LogError(caller, message string, context map[string]interface{}, meta map[string]string) {
	m := make(map[string]Payload, len(meta)+2)
	for k, v := range meta {
		m[k] = Text(v)
	}
	m["message"] = Text(message)
	if context == nil {
		context = map[string]interface{}{}
	}
	m["context"] = FromValue(context)
	l.Log(NewRecord(ERROR, caller, Mapping(m)))
}

func (l *Logger) mirrorIsConsole() bool {
	l.mirrorMu.Lock()
	defer l.mirrorMu.Unlock()
	_, ok := l.mirror.(consoleMirror)
	return ok
}

func (l *Logger) writeMirror(line string) {
	l.mirrorMu.Lock()
	defer l.mirrorMu.Unlock()
	if l.mirror == nil {
		return
	}
	if _, err := io.WriteString(l.mirror, line); err != nil {
		l.fallback.Warn("debug log mirror write failed: %v", err)
	}
}

func (l *Logger) reportRetention(removed int, errs []error) {
	if removed > 0 {
		l.fallback.Warn("debug log retention removed %d sealed file(s)", removed)
	}
	for _, err := range errs {
		l.fallback.Error("%v", err)
	}
}

// Tail returns up to the last n lines of the series, oldest first.
func (l *Logger) Tail(n int) ([]string, error) {
	if l.sink == nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, l.degraded)
	}
	return l.sink.Tail(n)
}

// Clear truncates the active file.
func (l *Logger) Clear() error {
	if l.sink == nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, l.degraded)
	}
	return l.sink.Clear()
}

// EnforceRetention sweeps sealed files with policy.
func (l *Logger) EnforceRetention(policy RetentionPolicy) (int, []error) {
	if l.sink == nil {
		return 0, []error{fmt.Errorf("%w: %w", ErrUnavailable, l.degraded)}
	}
	return l.sink.Enforce(policy)
}

// Close releases the sink and the mirror.
func (l *Logger) Close() error {
	var errs []error
	if l.sink != nil {
		errs = append(errs, l.sink.Close())
	}
	l.mirrorMu.Lock()
	if l.mirrorCloser != nil {
		errs = append(errs, l.mirrorCloser.Close())
		l.mirrorCloser = nil
	}
	l.mirror = nil
	l.mirrorMu.Unlock()
	return errors.Join(errs...)
}
