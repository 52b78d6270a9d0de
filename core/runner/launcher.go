package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/josephlewis42/rlsweep/core/sweep"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Invocation is everything needed to start the trainer for one run.
type Invocation struct {
	Run  sweep.Run
	Args []string
	Dir  string
	// Env is the full environment of the trainer, nil inherits ours.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Outcome is what's known about a trainer process after it exits.
type Outcome struct {
	ExitCode int
	PeakRSS  uint64
}

// Launcher starts the trainer and blocks until it exits or ctx is done.
type Launcher interface {
	Launch(ctx context.Context, inv Invocation) (Outcome, error)
}

// ExecLauncher runs the trainer as a child process.
type ExecLauncher struct {
	// SampleInterval is how often the child's memory is sampled, zero
	// disables sampling.
	SampleInterval time.Duration
	// WaitDelay bounds how long output is drained after the child is killed.
	WaitDelay time.Duration
	Logger    *zap.Logger
	// Fs is searched for the trainer executable, nil uses the OS.
	Fs afero.Fs
}

var _ Launcher = (*ExecLauncher)(nil)

func (l *ExecLauncher) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func (l *ExecLauncher) Launch(ctx context.Context, inv Invocation) (Outcome, error) {
	if len(inv.Args) == 0 {
		return Outcome{ExitCode: -1}, errors.New("empty command")
	}

	environ := inv.Env
	if environ == nil {
		environ = os.Environ()
	}

	fsys := l.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	path, err := LookPath(fsys, inv.Args[0], environ, inv.Dir)
	if err != nil {
		return Outcome{ExitCode: -1}, fmt.Errorf("finding trainer: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, inv.Args[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	cmd.WaitDelay = l.WaitDelay

	if err := cmd.Start(); err != nil {
		return Outcome{ExitCode: -1}, err
	}

	logger := l.logger().With(zap.Int("pid", cmd.Process.Pid), zap.String("run", inv.Run.Name()))
	logger.Debug("Trainer started", zap.Strings("args", inv.Args))

	sampler := startSampler(int32(cmd.Process.Pid), l.SampleInterval, logger)
	waitErr := cmd.Wait()
	out := Outcome{
		ExitCode: cmd.ProcessState.ExitCode(),
		PeakRSS:  sampler.Stop(),
	}

	logger.Debug("Trainer exited", zap.Int("exit_code", out.ExitCode), zap.Uint64("peak_rss", out.PeakRSS))
	return out, waitErr
}
