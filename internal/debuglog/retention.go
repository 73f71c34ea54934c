package debuglog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// RetentionPolicy bounds the sealed files of a series. Zero fields are unset.
type RetentionPolicy struct {
	MaxFiles int
	MaxAge   time.Duration
}

// IsZero reports whether the policy removes nothing.
func (p RetentionPolicy) IsZero() bool {
	return p.MaxFiles <= 0 && p.MaxAge <= 0
}

// Enforce deletes sealed files beyond policy.MaxFiles (oldest first) and
// those last modified before now-policy.MaxAge. The active file is never
// removed. A failed deletion is collected and the sweep continues.
func (s *Sink) Enforce(policy RetentionPolicy) (int, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	unlock, err := s.lockProcess()
	if err != nil {
		return 0, []error{fmt.Errorf("%w: %w", ErrRetention, err)}
	}
	defer unlock()

	return s.enforce(policy)
}

// enforce does the sweep. Caller holds mu and the process lock.
func (s *Sink) enforce(policy RetentionPolicy) (int, []error) {
	if policy.IsZero() {
		return 0, nil
	}

	s.series.Lock()
	defer s.series.Unlock()

	files, err := s.listFiles()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, []error{fmt.Errorf("%w: %w", ErrRetention, err)}
	}

	sealed := files[:0:0]
	for _, f := range files {
		if !f.Active {
			sealed = append(sealed, f)
		}
	}

	cutoff := time.Now().Add(-policy.MaxAge)
	removed := 0
	var errs []error
	for i, f := range sealed {
		overCount := policy.MaxFiles > 0 && i < len(sealed)-policy.MaxFiles
		expired := policy.MaxAge > 0 && f.ModTime.Before(cutoff)
		if !overCount && !expired {
			continue
		}
		if err := os.Remove(f.Path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrRetention, f.Path, err))
			continue
		}
		removed++
	}
	return removed, errs
}
