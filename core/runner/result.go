package runner

import (
	"errors"
	"time"

	"github.com/josephlewis42/rlsweep/core/store"
	"github.com/josephlewis42/rlsweep/core/sweep"
	"go.uber.org/multierr"
)

var (
	// ErrRunFailed wraps the error of every run that didn't succeed.
	ErrRunFailed = errors.New("run failed")
	// ErrSweepCanceled is reported when runs were abandoned before finishing.
	ErrSweepCanceled = errors.New("sweep canceled")
)

// Status is the final state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCanceled  Status = "canceled"
	StatusSkipped   Status = "skipped"
	StatusPlanned   Status = "planned"
)

// Result is the outcome of a run after all of its attempts.
type Result struct {
	Run        sweep.Run
	Status     Status
	Attempts   int
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	PeakRSS    uint64
	LogFile    string
	Err        error
}

// Duration is the wall clock time of the last attempt.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r Result) record(sweepKey, sweepID string) store.Record {
	rec := store.Record{
		SweepKey:   sweepKey,
		SweepID:    sweepID,
		Index:      r.Run.Index,
		Algorithm:  r.Run.Algorithm,
		EnvID:      r.Run.EnvID,
		Seed:       r.Run.Seed,
		Status:     string(r.Status),
		Attempts:   r.Attempts,
		ExitCode:   r.ExitCode,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		PeakRSS:    r.PeakRSS,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Summary is the outcome of a sweep.
type Summary struct {
	SweepID  string
	SweepKey string
	// Results are in plan order.
	Results []Result
}

// Count returns the number of results with the given status.
func (s *Summary) Count(status Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Err combines the errors of every failed or timed out run.
func (s *Summary) Err() error {
	var err error
	canceled := false
	for _, r := range s.Results {
		switch r.Status {
		case StatusFailed, StatusTimedOut:
			err = multierr.Append(err, r.Err)
		case StatusCanceled:
			canceled = true
		}
	}

	if canceled {
		err = multierr.Append(err, ErrSweepCanceled)
	}
	return err
}
