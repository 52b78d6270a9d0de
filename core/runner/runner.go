// Package runner launches the trainer once for every run in a sweep plan.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/josephlewis42/rlsweep/core/logger"
	"github.com/josephlewis42/rlsweep/core/store"
	"github.com/josephlewis42/rlsweep/core/sweep"
	"github.com/juju/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ResultStore persists run outcomes across sweeps.
type ResultStore interface {
	SaveRecord(ctx context.Context, r store.Record) error
	IndicesWithStatus(ctx context.Context, sweepKey, status string) (map[int]bool, error)
}

// RunLogOpener creates the file a run's output is copied to and returns its
// display path.
type RunLogOpener func(name string) (io.WriteCloser, string, error)

// Options control how a plan is executed.
type Options struct {
	// Parallelism is the maximum number of concurrent runs, values below one
	// run sequentially.
	Parallelism int
	// Timeout kills a run that takes longer, zero means no limit.
	Timeout time.Duration
	// Retries is the number of extra attempts for failed or timed out runs,
	// negative values are treated as zero.
	Retries int
	// StopOnFailure cancels the rest of the sweep after a run fails.
	StopOnFailure bool
	// LaunchInterval is the minimum time between process starts.
	LaunchInterval time.Duration
	// Resume skips runs the store has recorded as succeeded.
	Resume bool
	// DryRun prints commands instead of running them.
	DryRun bool
}

// Runner executes sweep plans.
type Runner struct {
	Launcher Launcher
	Options  Options

	// Dir and Env are passed to every trainer process.
	Dir string
	Env []string

	// Banner receives start and finish lines, nil is silent.
	Banner *Banner
	// TrainerStdout and TrainerStderr receive the trainer's output, nil
	// discards it.
	TrainerStdout io.Writer
	TrainerStderr io.Writer
	// OpenRunLog, if set, captures each run's output to its own file.
	OpenRunLog RunLogOpener

	Journal *logger.SweepLogger
	Store   ResultStore
	Logger  *zap.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	outMu sync.Mutex
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) journal() *logger.SweepLogger {
	if r.Journal == nil {
		r.Journal = logger.NewNopLogger().NewSweep("")
	}
	return r.Journal
}

// record appends an event to the journal, failures are only logged.
func (r *Runner) record(event logger.LogType) {
	if err := r.journal().Record(event); err != nil {
		r.log().Warn("Couldn't write journal entry", zap.Error(err))
	}
}

// banner serializes banner output between concurrent runs.
func (r *Runner) banner(write func(b *Banner)) {
	if r.Banner == nil {
		return
	}
	r.outMu.Lock()
	defer r.outMu.Unlock()
	write(r.Banner)
}

// Run executes every run in the plan. Runs start in plan order. The returned
// error combines the errors of all runs that didn't succeed.
func (r *Runner) Run(ctx context.Context, plan *sweep.Plan) (*Summary, error) {
	if r.Launcher == nil && !r.Options.DryRun {
		return nil, errors.New("runner has no launcher")
	}

	summary := &Summary{
		SweepID:  r.journal().SweepID(),
		SweepKey: plan.Key(),
		Results:  make([]Result, plan.Len()),
	}
	sweepLogger := r.log().With(zap.String("sweep_id", summary.SweepID), zap.String("sweep_key", summary.SweepKey))

	parallelism := r.Options.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	sweepDef := plan.Sweep()
	r.record(&logger.SweepStarted{
		Name:        sweepDef.Name,
		Algorithm:   sweepDef.Algorithm,
		SweepKey:    summary.SweepKey,
		Runs:        plan.Len(),
		Parallelism: parallelism,
		DryRun:      r.Options.DryRun,
	})
	sweepStart := r.now()

	if r.Options.DryRun {
		for i, run := range plan.Runs {
			r.banner(func(b *Banner) { b.Command(plan.Command(run)) })
			summary.Results[i] = Result{Run: run, Status: StatusPlanned}
		}
		r.finish(summary, sweepStart)
		return summary, nil
	}

	done := make(map[int]bool)
	if r.Options.Resume && r.Store != nil {
		var err error
		done, err = r.Store.IndicesWithStatus(ctx, summary.SweepKey, string(StatusSucceeded))
		if err != nil {
			return nil, fmt.Errorf("looking up finished runs: %w", err)
		}
		sweepLogger.Info("Resuming sweep", zap.Int("finished_runs", len(done)))
	}

	var bucket *ratelimit.Bucket
	if r.Options.LaunchInterval > 0 {
		bucket = ratelimit.NewBucket(r.Options.LaunchInterval, 1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var eg errgroup.Group
	eg.SetLimit(parallelism)

	for i, run := range plan.Runs {
		if done[run.Index] {
			r.banner(func(b *Banner) { b.Skip(run, "already succeeded") })
			summary.Results[i] = Result{Run: run, Status: StatusSkipped}
			continue
		}

		i, run := i, run // per-iteration copies for the goroutine (pre-Go 1.22 loop semantics)
		// Blocks while parallelism runs are in flight.
		eg.Go(func() error {
			res := r.execute(ctx, plan, run, bucket)
			summary.Results[i] = res

			if r.Options.StopOnFailure && (res.Status == StatusFailed || res.Status == StatusTimedOut) {
				sweepLogger.Warn("Stopping sweep after failure", zap.String("run", run.Name()))
				cancel()
			}
			return nil
		})
	}
	_ = eg.Wait()

	r.finish(summary, sweepStart)
	return summary, summary.Err()
}

func (r *Runner) finish(summary *Summary, sweepStart time.Time) {
	r.record(&logger.SweepFinished{
		Succeeded:      summary.Count(StatusSucceeded),
		Failed:         summary.Count(StatusFailed) + summary.Count(StatusTimedOut),
		Skipped:        summary.Count(StatusSkipped),
		Canceled:       summary.Count(StatusCanceled),
		DurationMillis: r.now().Sub(sweepStart).Milliseconds(),
	})
	r.banner(func(b *Banner) { b.Summary(summary) })
}

// execute runs a single entry of the plan, retrying if configured, and
// stores the final result.
func (r *Runner) execute(ctx context.Context, plan *sweep.Plan, run sweep.Run, bucket *ratelimit.Bucket) Result {
	retries := max(r.Options.Retries, 0)

	var res Result
	for attempt := 1; attempt <= 1+retries; attempt++ {
		if err := waitForLaunch(ctx, bucket); err != nil {
			res = r.canceled(run, attempt-1, err)
			break
		}

		res = r.attempt(ctx, plan, run, attempt)
		if res.Status == StatusSucceeded || res.Status == StatusCanceled {
			break
		}
		if attempt <= retries {
			r.log().Warn("Retrying run",
				zap.String("run", run.Name()),
				zap.Int("attempt", attempt),
				zap.Error(res.Err))
		}
	}

	if r.Store != nil && res.Attempts > 0 {
		// Runs abandoned on cancellation are still recorded.
		storeCtx := context.WithoutCancel(ctx)
		if err := r.Store.SaveRecord(storeCtx, res.record(plan.Key(), r.journal().SweepID())); err != nil {
			r.log().Warn("Couldn't save run result", zap.String("run", run.Name()), zap.Error(err))
		}
	}
	return res
}

func waitForLaunch(ctx context.Context, bucket *ratelimit.Bucket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bucket == nil {
		return nil
	}

	wait := bucket.Take(1)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) canceled(run sweep.Run, attempts int, err error) Result {
	now := r.now()
	res := Result{
		Run:        run,
		Status:     StatusCanceled,
		Attempts:   attempts,
		ExitCode:   -1,
		StartedAt:  now,
		FinishedAt: now,
		Err:        err,
	}
	r.banner(func(b *Banner) { b.Skip(run, "canceled") })
	return res
}

func (r *Runner) attempt(ctx context.Context, plan *sweep.Plan, run sweep.Run, attempt int) Result {
	runLogger := r.log().With(zap.String("run", run.Name()), zap.Int("attempt", attempt))

	inv := Invocation{
		Run:    run,
		Args:   plan.Command(run),
		Dir:    r.Dir,
		Env:    r.Env,
		Stdout: r.lockedWriter(r.TrainerStdout),
		Stderr: r.lockedWriter(r.TrainerStderr),
	}

	res := Result{
		Run:      run,
		Attempts: attempt,
	}

	if r.OpenRunLog != nil {
		fd, name, err := r.OpenRunLog(runLogName(run, attempt))
		if err != nil {
			runLogger.Warn("Couldn't create run log", zap.Error(err))
		} else {
			defer fd.Close()
			res.LogFile = name
			logFile := &syncWriter{w: fd}
			inv.Stdout = io.MultiWriter(inv.Stdout, logFile)
			inv.Stderr = io.MultiWriter(inv.Stderr, logFile)
		}
	}

	r.banner(func(b *Banner) { b.Start(run, attempt) })
	r.record(&logger.RunStarted{
		Index:   run.Index,
		EnvID:   run.EnvID,
		Seed:    run.Seed,
		Attempt: attempt,
		Command: inv.Args,
		LogFile: res.LogFile,
	})
	runLogger.Info("Launching trainer")

	runCtx := ctx
	if r.Options.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Options.Timeout)
		defer cancel()
	}

	res.StartedAt = r.now()
	outcome, err := r.Launcher.Launch(runCtx, inv)
	res.FinishedAt = r.now()
	res.ExitCode = outcome.ExitCode
	res.PeakRSS = outcome.PeakRSS

	switch {
	case err == nil && outcome.ExitCode == 0:
		res.Status = StatusSucceeded
	case ctx.Err() != nil:
		res.Status = StatusCanceled
		res.Err = fmt.Errorf("%s: %w", run, ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Status = StatusTimedOut
		res.Err = fmt.Errorf("%w: %s timed out after %s", ErrRunFailed, run, r.Options.Timeout)
	case err != nil:
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: %s: %v", ErrRunFailed, run, err)
	default:
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: %s: exit code %d", ErrRunFailed, run, outcome.ExitCode)
	}

	r.banner(func(b *Banner) { b.Finish(res) })
	finished := &logger.RunFinished{
		Index:          run.Index,
		EnvID:          run.EnvID,
		Seed:           run.Seed,
		Attempt:        attempt,
		Status:         string(res.Status),
		ExitCode:       res.ExitCode,
		DurationMillis: res.Duration().Milliseconds(),
		PeakRSSBytes:   res.PeakRSS,
	}
	if res.Err != nil {
		finished.Error = res.Err.Error()
	}
	r.record(finished)

	runLogger.Info("Trainer finished",
		zap.String("status", string(res.Status)),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration()))
	return res
}

// runLogName keeps the output of every attempt, retries get their own file.
func runLogName(run sweep.Run, attempt int) string {
	if attempt > 1 {
		return fmt.Sprintf("%s.attempt%d.log", run.Name(), attempt)
	}
	return run.Name() + ".log"
}

// lockedWriter shares w between the runs of the sweep.
func (r *Runner) lockedWriter(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return &syncWriter{mu: &r.outMu, w: w}
}

type syncWriter struct {
	mu *sync.Mutex
	w  io.Writer

	own sync.Mutex
}

func (s *syncWriter) Write(p []byte) (int, error) {
	mu := s.mu
	if mu == nil {
		mu = &s.own
	}
	mu.Lock()
	defer mu.Unlock()
	return s.w.Write(p)
}
