//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package debuglog

// fileLock is a no-op where flock(2) is not available; only the in-process
// mutex protects the series there.
type fileLock struct{}

func openFileLock(string) (*fileLock, error) { return &fileLock{}, nil }

func (l *fileLock) lock(bool) error { return nil }

func (l *fileLock) unlock() error { return nil }

func (l *fileLock) close() error { return nil }
