package logger

// LogEntry is a single line in the journal. Exactly one of the event fields
// is set.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SweepID         string `json:"sweep_id,omitempty"`

	SweepStarted  *SweepStarted  `json:"sweep_started,omitempty"`
	RunStarted    *RunStarted    `json:"run_started,omitempty"`
	RunFinished   *RunFinished   `json:"run_finished,omitempty"`
	SweepFinished *SweepFinished `json:"sweep_finished,omitempty"`
}

// LogType is implemented by every event that can be recorded.
type LogType interface {
	setOn(le *LogEntry)
}

// GetLogType returns the event held by the entry or nil.
func (le *LogEntry) GetLogType() LogType {
	switch {
	case le.SweepStarted != nil:
		return le.SweepStarted
	case le.RunStarted != nil:
		return le.RunStarted
	case le.RunFinished != nil:
		return le.RunFinished
	case le.SweepFinished != nil:
		return le.SweepFinished
	default:
		return nil
	}
}

type SweepStarted struct {
	Name        string `json:"name"`
	Algorithm   string `json:"algorithm"`
	SweepKey    string `json:"sweep_key"`
	Runs        int    `json:"runs"`
	Parallelism int    `json:"parallelism"`
	DryRun      bool   `json:"dry_run,omitempty"`
}

func (e *SweepStarted) setOn(le *LogEntry) { le.SweepStarted = e }

type RunStarted struct {
	Index   int      `json:"index"`
	EnvID   string   `json:"env_id"`
	Seed    int      `json:"seed"`
	Attempt int      `json:"attempt"`
	Command []string `json:"command"`
	LogFile string   `json:"log_file,omitempty"`
}

func (e *RunStarted) setOn(le *LogEntry) { le.RunStarted = e }

type RunFinished struct {
	Index          int    `json:"index"`
	EnvID          string `json:"env_id"`
	Seed           int    `json:"seed"`
	Attempt        int    `json:"attempt"`
	Status         string `json:"status"`
	ExitCode       int    `json:"exit_code"`
	DurationMillis int64  `json:"duration_millis"`
	PeakRSSBytes   uint64 `json:"peak_rss_bytes,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (e *RunFinished) setOn(le *LogEntry) { le.RunFinished = e }

type SweepFinished struct {
	Succeeded      int   `json:"succeeded"`
	Failed         int   `json:"failed"`
	Skipped        int   `json:"skipped"`
	Canceled       int   `json:"canceled"`
	DurationMillis int64 `json:"duration_millis"`
}

func (e *SweepFinished) setOn(le *LogEntry) { le.SweepFinished = e }
