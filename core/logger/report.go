package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{
		Failures: NewPathCounter("env_id", "status", "error"),
	}
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	Sweeps      SweepReport    `json:"sweep_report"`
	RunStatuses StrCounter     `json:"run_statuses"`
	RunsByEnv   StrCounter     `json:"runs_by_env"`
	Failures    *PathCounter   `json:"failures"`
	Durations   DurationReport `json:"duration_report"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++

	switch event := le.GetLogType().(type) {
	case *SweepStarted:
		r.Sweeps.update(event)
	case *RunFinished:
		r.RunStatuses.Increment(event.Status)
		r.RunsByEnv.Increment(event.EnvID)
		if event.Error != "" {
			r.Failures.Increment(event.EnvID, event.Status, event.Error)
		}
		r.Durations.update(event)
	case *RunStarted, *SweepFinished:
		// Ignore
	default:
		r.InvalidEntries.Increment(fmt.Sprintf("%T", event))
	}
}

type SweepReport struct {
	Count int `json:"count"`
	// Names of the sweeps and their counts.
	Names StrCounter `json:"names"`
	// Algorithms swept and their counts.
	Algorithms StrCounter `json:"algorithms"`
	DryRuns    int        `json:"dry_runs"`
}

func (r *SweepReport) update(ss *SweepStarted) {
	r.Count++
	r.Names.Increment(ss.Name)
	r.Algorithms.Increment(ss.Algorithm)
	if ss.DryRun {
		r.DryRuns++
	}
}

// DurationReport summarizes wall clock time of finished runs per environment.
type DurationReport struct {
	seconds map[string][]float64
	peakRSS map[string]uint64
}

// DurationStats holds summary statistics for a set of runs.
type DurationStats struct {
	Runs          int     `json:"runs"`
	MeanSeconds   float64 `json:"mean_seconds"`
	StdDevSeconds float64 `json:"stddev_seconds"`
	MaxSeconds    float64 `json:"max_seconds"`
	PeakRSSBytes  uint64  `json:"peak_rss_bytes,omitempty"`
}

func (d *DurationReport) update(rf *RunFinished) {
	if d.seconds == nil {
		d.seconds = make(map[string][]float64)
		d.peakRSS = make(map[string]uint64)
	}

	elapsed := time.Duration(rf.DurationMillis) * time.Millisecond
	d.seconds[rf.EnvID] = append(d.seconds[rf.EnvID], elapsed.Seconds())
	if rf.PeakRSSBytes > d.peakRSS[rf.EnvID] {
		d.peakRSS[rf.EnvID] = rf.PeakRSSBytes
	}
}

// Stats returns the summary for a single environment.
func (d *DurationReport) Stats(envID string) DurationStats {
	samples := d.seconds[envID]
	out := DurationStats{
		Runs:         len(samples),
		PeakRSSBytes: d.peakRSS[envID],
	}

	switch len(samples) {
	case 0:
		return out
	case 1:
		out.MeanSeconds = samples[0]
	default:
		out.MeanSeconds, out.StdDevSeconds = stat.MeanStdDev(samples, nil)
	}

	for _, s := range samples {
		if s > out.MaxSeconds {
			out.MaxSeconds = s
		}
	}
	return out
}

// MarshalJSON implemnts custom JSON marshaler.
func (d DurationReport) MarshalJSON() ([]byte, error) {
	out := make(map[string]DurationStats)
	for env := range d.seconds {
		out[env] = d.Stats(env)
	}
	return json.Marshal(out)
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for a key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	if s.internal == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of distinct tuples seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// Get returns the count for a tuple.
func (ctr *PathCounter) Get(vals ...string) int {
	return ctr.internal[toKey(vals...)]
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
