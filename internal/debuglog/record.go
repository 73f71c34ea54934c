package debuglog

import "time"

// Record is a single debug log entry. It is passed by value and not
// modified after construction.
type Record struct {
	Time    time.Time
	Level   Level
	Caller  string
	Payload Payload
}

// NewRecord stamps a record with the current time at second resolution.
func NewRecord(level Level, caller string, payload Payload) Record {
	return Record{
		Time:    time.Now().Truncate(time.Second),
		Level:   level,
		Caller:  caller,
		Payload: payload,
	}
}
