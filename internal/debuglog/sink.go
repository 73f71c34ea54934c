package debuglog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultRotateBytes is the rotation threshold used when none is configured.
const DefaultRotateBytes int64 = 10 << 20

// LogFile describes one file of the series.
type LogFile struct {
	Path    string
	Seq     int
	Size    int64
	ModTime time.Time
	Active  bool
}

// SinkOptions configures a Sink.
type SinkOptions struct {
	Directory string
	FileName  string
	// RotateBytes seals the active file once it grows beyond this size;
	// zero or negative disables rotation.
	RotateBytes int64
	// CrossProcessLock adds an advisory file lock around every mutation so
	// several processes can share the directory.
	CrossProcessLock bool
	// RetainOnRotate runs Retention right after each rotation.
	RetainOnRotate bool
	Retention      RetentionPolicy
	// OnRetention receives the outcome of sweeps triggered by rotation.
	OnRetention func(removed int, errs []error)
}

// Sink owns a log series: one active file plus sealed files named
// <name>.<seq>. All mutation goes through mu; the set of files is
// additionally guarded by series so readers can take a consistent snapshot
// without blocking plain appends.
type Sink struct {
	dir          string
	name         string
	rotateBytes  int64
	crossProcess bool
	retainOnRot  bool
	policy       RetentionPolicy
	onRetention  func(removed int, errs []error)

	mu       sync.Mutex
	series   sync.RWMutex
	file     *os.File
	size     int64
	lastSeq  int
	procLock *fileLock
}

// NewSink creates a sink. Nothing touches the filesystem until the first
// Append.
func NewSink(opts SinkOptions) *Sink {
	return &Sink{
		dir:          opts.Directory,
		name:         opts.FileName,
		rotateBytes:  opts.RotateBytes,
		crossProcess: opts.CrossProcessLock,
		retainOnRot:  opts.RetainOnRotate,
		policy:       opts.Retention,
		onRetention:  opts.OnRetention,
	}
}

// Directory returns the log directory.
func (s *Sink) Directory() string { return s.dir }

// ActivePath returns the path of the active file.
func (s *Sink) ActivePath() string {
	return filepath.Join(s.dir, s.name)
}

func (s *Sink) sealedPath(seq int) string {
	return filepath.Join(s.dir, s.name+"."+strconv.Itoa(seq))
}

func (s *Sink) lockPath() string {
	return filepath.Join(s.dir, "."+s.name+".lock")
}

// Append writes line to the active file with a single write and rotates
// when the file has grown beyond the threshold.
func (s *Sink) Append(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockProcess()
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}

	n, err := s.file.Write(line)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, s.ActivePath(), err)
	}
	if s.crossProcess {
		// other processes append too; trust the file, not our counter
		if fi, err := s.file.Stat(); err == nil {
			s.size = fi.Size()
		}
	}

	if s.rotateBytes <= 0 || s.size <= s.rotateBytes {
		return nil
	}
	if err := s.rotate(); err != nil {
		return err
	}
	if s.retainOnRot {
		removed, errs := s.enforce(s.policy)
		if s.onRetention != nil {
			s.onRetention(removed, errs)
		}
	}
	return nil
}

// ensureOpen opens the active file, creating the directory if needed.
// Caller holds mu.
func (s *Sink) ensureOpen() error {
	if s.file != nil && s.crossProcess && !s.activeIsCurrent() {
		_ = s.file.Close()
		s.file = nil
	}
	if s.file != nil {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDirectoryUnavailable, s.dir, err)
	}
	f, err := os.OpenFile(s.ActivePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %w", ErrWriteFailed, s.ActivePath(), err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: failed to stat %s: %w", ErrWriteFailed, s.ActivePath(), err)
	}

	s.file = f
	s.size = fi.Size()
	return nil
}

// activeIsCurrent reports whether our handle still refers to the file at
// the active path, which is false after another process rotated it.
func (s *Sink) activeIsCurrent() bool {
	ours, err := s.file.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(s.ActivePath())
	if err != nil {
		return false
	}
	return os.SameFile(ours, onDisk)
}

// rotate seals the active file under the next sequence number and opens a
// fresh one. Caller holds mu. On rename failure the active file is reopened
// and keeps every byte written so far.
func (s *Sink) rotate() error {
	s.series.Lock()
	defer s.series.Unlock()

	files, err := s.listFiles()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRotateFailed, err)
	}
	// retention may have removed every sealed file; never reuse a number
	seq := s.lastSeq + 1
	for _, f := range files {
		if !f.Active && f.Seq >= seq {
			seq = f.Seq + 1
		}
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
		s.size = 0
	}

	sealed := s.sealedPath(seq)
	if err := os.Rename(s.ActivePath(), sealed); err != nil {
		rotateErr := fmt.Errorf("%w: %s -> %s: %w", ErrRotateFailed, s.ActivePath(), sealed, err)
		if openErr := s.ensureOpen(); openErr != nil {
			return errors.Join(rotateErr, openErr)
		}
		return rotateErr
	}
	s.lastSeq = seq

	return s.ensureOpen()
}

// Clear truncates the active file. Sealed files are left to retention.
// Clearing a missing or empty file succeeds.
func (s *Sink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	unlock, err := s.lockProcess()
	if err != nil {
		return err
	}
	defer unlock()

	s.series.Lock()
	defer s.series.Unlock()

	if err := os.Truncate(s.ActivePath(), 0); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: failed to truncate %s: %w", ErrWriteFailed, s.ActivePath(), err)
	}
	s.size = 0
	return nil
}

// Files lists the series oldest first; the active file, when present, is last.
func (s *Sink) Files() ([]LogFile, error) {
	s.series.RLock()
	defer s.series.RUnlock()

	files, err := s.listFiles()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return files, err
}

// listFiles reads the directory. Caller holds series in either mode.
func (s *Sink) listFiles() ([]LogFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var files []LogFile
	var active *LogFile
	maxSeq := 0
	prefix := s.name + "."
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		seq := 0
		switch {
		case name == s.name:
		case strings.HasPrefix(name, prefix):
			n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
			if err != nil || n <= 0 {
				continue
			}
			seq = n
		default:
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		lf := LogFile{
			Path:    filepath.Join(s.dir, name),
			Seq:     seq,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if seq == 0 {
			lf.Active = true
			active = &lf
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
		files = append(files, lf)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Seq < files[j].Seq })
	if active != nil {
		active.Seq = maxSeq + 1
		files = append(files, *active)
	}
	return files, nil
}

// lockProcess takes the cross-process lock exclusively when enabled.
// Caller holds mu.
func (s *Sink) lockProcess() (func(), error) {
	if !s.crossProcess {
		return func() {}, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDirectoryUnavailable, s.dir, err)
	}
	if s.procLock == nil {
		l, err := openFileLock(s.lockPath())
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open lock file: %w", ErrWriteFailed, err)
		}
		s.procLock = l
	}
	if err := s.procLock.lock(true); err != nil {
		return nil, fmt.Errorf("%w: failed to lock %s: %w", ErrWriteFailed, s.lockPath(), err)
	}
	return func() { _ = s.procLock.unlock() }, nil
}

// Close releases the active file and the lock file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
	}
	if s.procLock != nil {
		errs = append(errs, s.procLock.close())
		s.procLock = nil
	}
	return errors.Join(errs...)
}
