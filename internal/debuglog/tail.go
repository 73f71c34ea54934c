package debuglog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// tailChunkSize is the size of each backward read.
const tailChunkSize = 64 << 10

// seriesHandle is an open file plus the size observed when it was opened.
type seriesHandle struct {
	path string
	f    *os.File
	size int64
}

// Tail returns up to the last n complete lines of the whole series,
// oldest first. Files are read backward from the newest; older files are
// opened for reading only while more lines are needed.
func (s *Sink) Tail(n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}

	handles, err := s.openSeries()
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, h := range handles {
			_ = h.f.Close()
		}
	}()

	out := []string{}
	for i := len(handles) - 1; i >= 0 && len(out) < n; i-- {
		h := handles[i]
		lines, err := readTail(h.f, h.size, n-len(out))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrRetrieval, h.path, err)
		}
		out = append(lines, out...)
	}
	return out, nil
}

// openSeries opens every file of the series while holding the series lock
// shared, so the snapshot is either entirely before or entirely after any
// rotation. Reading happens after the lock is released.
func (s *Sink) openSeries() ([]seriesHandle, error) {
	if _, err := os.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if s.crossProcess {
		l, err := openFileLock(s.lockPath())
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open lock file: %w", ErrRetrieval, err)
		}
		defer l.close()
		if err := l.lock(false); err != nil {
			return nil, fmt.Errorf("%w: failed to lock %s: %w", ErrRetrieval, s.lockPath(), err)
		}
		defer l.unlock()
	}

	s.series.RLock()
	defer s.series.RUnlock()

	files, err := s.listFiles()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	handles := make([]seriesHandle, 0, len(files))
	for _, lf := range files {
		f, err := os.Open(lf.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			closeHandles(handles)
			return nil, fmt.Errorf("%w: %s: %w", ErrRetrieval, lf.Path, err)
		}
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			closeHandles(handles)
			return nil, fmt.Errorf("%w: %s: %w", ErrRetrieval, lf.Path, err)
		}
		handles = append(handles, seriesHandle{path: lf.Path, f: f, size: fi.Size()})
	}
	return handles, nil
}

func closeHandles(handles []seriesHandle) {
	for _, h := range handles {
		_ = h.f.Close()
	}
}

// readTail returns up to n complete lines from the first size bytes of r,
// oldest first, reading backward in fixed-size chunks. Bytes after the last
// newline belong to a write still in progress and are skipped.
func readTail(r io.ReaderAt, size int64, n int) ([]string, error) {
	var reversed []string
	var carry []byte
	terminated := false
	pos := size

	for pos > 0 && len(reversed) < n {
		chunk := int64(tailChunkSize)
		if pos < chunk {
			chunk = pos
		}
		pos -= chunk

		buf := make([]byte, chunk)
		read, err := r.ReadAt(buf, pos)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if int64(read) < chunk {
			// truncated under us by Clear; what was collected still stands
			return reverseLines(reversed), nil
		}

		end := len(buf)
		for i := len(buf) - 1; i >= 0; i-- {
			if buf[i] != '\n' {
				continue
			}
			if terminated {
				line := make([]byte, 0, end-i-1+len(carry))
				line = append(line, buf[i+1:end]...)
				line = append(line, carry...)
				reversed = append(reversed, string(line))
				carry = nil
				if len(reversed) == n {
					return reverseLines(reversed), nil
				}
			}
			terminated = true
			end = i
		}

		if terminated {
			head := make([]byte, 0, end+len(carry))
			head = append(head, buf[:end]...)
			carry = append(head, carry...)
		}
	}

	// the first line of the file has no newline before it
	if pos == 0 && terminated && len(reversed) < n {
		reversed = append(reversed, string(carry))
	}
	return reverseLines(reversed), nil
}

func reverseLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[len(lines)-1-i] = line
	}
	return out
}
