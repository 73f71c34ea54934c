// Package debuglog is a leveled debug log persisted to a rotating file
// series.
//
// A Record passes the Filter, is rendered to one line by the Encoder and
// appended by the Sink, which rotates the active file into numbered sealed
// files once it exceeds its size threshold. Tail reads the most recent lines
// of the series backward without loading whole files, Clear empties the
// active file, and Enforce deletes sealed files beyond a RetentionPolicy.
//
// Logger ties these together. Its Log method never returns an error: sink
// failures go to a fallback channel (the process logger on stderr).
package debuglog
