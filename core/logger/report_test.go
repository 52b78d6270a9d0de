package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	start := time.Date(2021, time.July, 4, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return start }
}

func writeJournal(t *testing.T, events ...LogType) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	journal := NewJsonLinesLogRecorder(buf)
	journal.Now = fixedClock()
	sweep := journal.NewSweep("sweep-1")
	for _, e := range events {
		require.Nil(t, sweep.Record(e))
	}
	return buf
}

func TestJsonLinesRoundTrip(t *testing.T) {
	buf := writeJournal(t,
		&SweepStarted{Name: "td3-mujoco", Algorithm: "TD3", SweepKey: "abc", Runs: 2, Parallelism: 1},
		&RunStarted{Index: 0, EnvID: "Hopper-v3", Seed: 1, Attempt: 1, Command: []string{"train", "--seed", "1"}},
	)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var raw map[string]interface{}
	require.Nil(t, json.Unmarshal(lines[0], &raw))
	assert.Equal(t, "sweep-1", raw["sweep_id"])
	assert.Contains(t, raw, "sweep_started")
	assert.NotContains(t, raw, "run_started")

	var entries []*LogEntry
	require.Nil(t, ReadJSONLinesLog(buf, func(le *LogEntry) {
		entries = append(entries, le)
	}))
	require.Len(t, entries, 2)

	assert.Equal(t, fixedClock()().UnixMicro(), entries[0].TimestampMicros)
	assert.IsType(t, &SweepStarted{}, entries[0].GetLogType())
	started, ok := entries[1].GetLogType().(*RunStarted)
	require.True(t, ok)
	assert.Equal(t, []string{"train", "--seed", "1"}, started.Command)
}

func TestReadJSONLinesLogError(t *testing.T) {
	err := ReadJSONLinesLog(bytes.NewBufferString("{\"sweep_id\": 1}\n"), func(*LogEntry) {})
	assert.NotNil(t, err)
}

func TestReport(t *testing.T) {
	buf := writeJournal(t,
		&SweepStarted{Name: "td3-mujoco", Algorithm: "TD3", Runs: 4},
		&RunFinished{Index: 0, EnvID: "Hopper-v3", Status: "succeeded", DurationMillis: 10000, PeakRSSBytes: 100},
		&RunFinished{Index: 1, EnvID: "Hopper-v3", Status: "succeeded", DurationMillis: 20000, PeakRSSBytes: 300},
		&RunFinished{Index: 2, EnvID: "Ant-v3", Status: "failed", ExitCode: 1, DurationMillis: 1000, Error: "exit status 1"},
		&RunFinished{Index: 3, EnvID: "Ant-v3", Status: "failed", ExitCode: 1, DurationMillis: 3000, Error: "exit status 1"},
		&SweepFinished{Succeeded: 2, Failed: 2},
	)
	// An entry with no event.
	buf.WriteString("{\"timestamp_micros\": 1}\n")

	report := NewReport()
	require.Nil(t, ReadJSONLinesLog(buf, report.Update))

	assert.Equal(t, 7, report.LogEntries)
	assert.Equal(t, 1, report.InvalidEntries.Get("<nil>"))
	assert.Equal(t, 1, report.Sweeps.Count)
	assert.Equal(t, 1, report.Sweeps.Algorithms.Get("TD3"))
	assert.Equal(t, 2, report.RunStatuses.Get("succeeded"))
	assert.Equal(t, 2, report.RunStatuses.Get("failed"))
	assert.Equal(t, 2, report.RunsByEnv.Get("Ant-v3"))
	assert.Equal(t, 2, report.Failures.Get("Ant-v3", "failed", "exit status 1"))

	hopper := report.Durations.Stats("Hopper-v3")
	assert.Equal(t, 2, hopper.Runs)
	assert.InDelta(t, 15.0, hopper.MeanSeconds, 1e-9)
	assert.InDelta(t, 7.0710678, hopper.StdDevSeconds, 1e-6)
	assert.InDelta(t, 20.0, hopper.MaxSeconds, 1e-9)
	assert.Equal(t, uint64(300), hopper.PeakRSSBytes)

	t.Run("marshal", func(t *testing.T) {
		out, err := json.Marshal(report)
		require.Nil(t, err)

		var raw map[string]interface{}
		require.Nil(t, json.Unmarshal(out, &raw))
		assert.Contains(t, raw, "duration_report")
		failures, ok := raw["failures"].([]interface{})
		require.True(t, ok)
		assert.Len(t, failures, 1)
	})
}

func TestDurationStatsSingleSample(t *testing.T) {
	var d DurationReport
	d.update(&RunFinished{EnvID: "Ant-v3", DurationMillis: 1500})

	stats := d.Stats("Ant-v3")
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 1.5, stats.MeanSeconds)
	assert.Equal(t, 0.0, stats.StdDevSeconds)

	assert.Equal(t, DurationStats{}, d.Stats("Hopper-v3"))
}

func TestEmptyReportMarshals(t *testing.T) {
	out, err := json.Marshal(NewReport())
	require.Nil(t, err)
	assert.Contains(t, string(out), `"failures":[]`)
}

func TestPathCounterPanicsOnWrongColumns(t *testing.T) {
	ctr := NewPathCounter("a", "b")
	assert.Panics(t, func() { ctr.Increment("only-one") })
}
