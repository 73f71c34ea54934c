package debuglog

import "errors"

var (
	// ErrConfiguration marks an unusable directory or file setting at startup.
	ErrConfiguration = errors.New("debug log configuration error")
	// ErrDirectoryUnavailable means the log directory could not be created.
	ErrDirectoryUnavailable = errors.New("log directory unavailable")
	// ErrWriteFailed means the active file could not be opened or written.
	ErrWriteFailed = errors.New("log write failed")
	// ErrRotateFailed means the active file could not be sealed.
	ErrRotateFailed = errors.New("log rotation failed")
	// ErrRetrieval means a file of the series could not be read.
	ErrRetrieval = errors.New("log retrieval failed")
	// ErrRetention wraps a single failed deletion during a retention sweep.
	ErrRetention = errors.New("log retention failed")
	// ErrUnavailable is returned by a degraded logger that has no persistent log.
	ErrUnavailable = errors.New("persistent debug log unavailable")
)
