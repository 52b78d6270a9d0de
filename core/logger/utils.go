package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures sweep events so runs can be audited and summarized later.
type Logger struct {
	Record LogRecorder

	// Now is used to timestamp entries, defaults to time.Now.
	Now func() time.Time
}

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format. It's safe for concurrent use.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	var mu sync.Mutex
	return &Logger{
		Record: func(le *LogEntry) error {
			entry, err := json.Marshal(le)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// NewNopLogger creates a Logger that drops every event.
func NewNopLogger() *Logger {
	return &Logger{
		Record: func(*LogEntry) error { return nil },
	}
}

func (l *Logger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Logger) recordLogType(sweepID string, event LogType) error {
	le := &LogEntry{}
	le.TimestampMicros = l.now().UnixMicro()
	le.SweepID = sweepID
	event.setOn(le)

	return l.Record(le)
}

// NewSweep creates a logger with attached sweep ID.
func (l *Logger) NewSweep(sweepID string) *SweepLogger {
	return &SweepLogger{Logger: l, sweepID: sweepID}
}

// SweepLogger logs messages with a shared sweep ID.
type SweepLogger struct {
	*Logger
	sweepID string
}

// SweepID returns the ID stamped on every entry.
func (l *SweepLogger) SweepID() string {
	return l.sweepID
}

func (l *SweepLogger) Record(event LogType) error {
	return l.recordLogType(l.sweepID, event)
}
