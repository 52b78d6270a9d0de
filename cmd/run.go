package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/josephlewis42/rlsweep/core/config"
	"github.com/josephlewis42/rlsweep/core/logger"
	"github.com/josephlewis42/rlsweep/core/runner"
	"github.com/josephlewis42/rlsweep/core/store"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runSweep      sweepFlags
	dryRun        bool
	resume        bool
	parallel      int
	timeout       time.Duration
	retries       int
	stopOnFailure bool
)

// runCmd launches the sweep
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trainer for every environment and seed of the sweep.",
	Long: `Runs the trainer once per (seed, environment) pair, seeds in the outer
loop and environments in the inner loop. A banner is printed before and after
every run. The command fails if any run failed.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		log := newLogger(cmd)
		defer log.Sync()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}

		plan, err := runSweep.plan(cfg)
		if err != nil {
			return err
		}
		opts, err := runOptions(cmd, cfg.Execution)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sweepID := uuid.NewString()
		log = log.With(zap.String("sweep_id", sweepID))

		journalFd, err := cfg.OpenAppLog()
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer journalFd.Close()

		environ, err := cfg.TrainerEnviron()
		if err != nil {
			return err
		}

		dir := workDir(cfg)
		if !opts.DryRun && plan.Len() > 0 {
			argv := plan.Command(plan.Runs[0])
			if _, err := runner.LookPath(afero.NewOsFs(), argv[0], environ, dir); err != nil {
				return fmt.Errorf("trainer isn't runnable: %w", err)
			}
		}

		r := &runner.Runner{
			Launcher: &runner.ExecLauncher{
				SampleInterval: cfg.Execution.SampleInterval.Std(),
				WaitDelay:      10 * time.Second,
				Logger:         log,
			},
			Options:       opts,
			Dir:           dir,
			Env:           environ,
			Banner:        runner.NewBanner(cmd.OutOrStdout(), bannerColor(cmd, cfg)),
			TrainerStdout: cmd.OutOrStdout(),
			TrainerStderr: cmd.ErrOrStderr(),
			Journal:       logger.NewJsonLinesLogRecorder(journalFd).NewSweep(sweepID),
			Logger:        log,
		}

		if !opts.DryRun {
			runStore := store.NewSQLiteStore(cfg.DatabasePath())
			if err := runStore.Init(ctx); err != nil {
				return fmt.Errorf("opening run history: %w", err)
			}
			defer runStore.Close()
			r.Store = runStore

			r.OpenRunLog = func(name string) (io.WriteCloser, string, error) {
				fd, err := cfg.CreateRunLog(name)
				if err != nil {
					return nil, "", err
				}
				return fd, filepath.Join(cfg.Dir(), cfg.RunLogPath(name)), nil
			}
		}

		log.Info("Starting sweep",
			zap.String("sweep", plan.Sweep().Name),
			zap.String("sweep_key", plan.Key()),
			zap.Int("runs", plan.Len()))

		summary, err := r.Run(ctx, plan)
		if summary != nil {
			log.Info("Sweep finished",
				zap.Int("succeeded", summary.Count(runner.StatusSucceeded)),
				zap.Int("failed", summary.Count(runner.StatusFailed)+summary.Count(runner.StatusTimedOut)))
		}
		if ctx.Err() != nil && err != nil {
			return fmt.Errorf("sweep interrupted: %w", err)
		}
		return err
	},
}

// runOptions overlays the command line flags on the configured execution
// settings.
func runOptions(cmd *cobra.Command, exec config.Execution) (runner.Options, error) {
	opts := runner.Options{
		Parallelism:    exec.Parallelism,
		Timeout:        exec.Timeout.Std(),
		Retries:        exec.Retries,
		StopOnFailure:  exec.StopOnFailure,
		LaunchInterval: exec.LaunchInterval.Std(),
		Resume:         resume,
		DryRun:         dryRun,
	}

	flags := cmd.Flags()
	if flags.Changed("parallel") {
		opts.Parallelism = parallel
	}
	if flags.Changed("timeout") {
		opts.Timeout = timeout
	}
	if flags.Changed("retries") {
		opts.Retries = retries
	}
	if flags.Changed("stop-on-failure") {
		opts.StopOnFailure = stopOnFailure
	}

	switch {
	case opts.Parallelism < 1:
		return opts, fmt.Errorf("--parallel must be at least 1, got %d", opts.Parallelism)
	case opts.Retries < 0:
		return opts, fmt.Errorf("--retries can't be negative, got %d", opts.Retries)
	case opts.Timeout < 0:
		return opts, fmt.Errorf("--timeout can't be negative, got %s", opts.Timeout)
	}
	return opts, nil
}

// workDir resolves the trainer's working directory relative to the config
// directory.
func workDir(cfg *config.Configuration) string {
	dir := cfg.Sweep.WorkDir
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(cfg.Dir(), dir)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runSweep.register(runCmd)
	flags := runCmd.Flags()
	flags.BoolVar(&dryRun, "dry-run", false, "Print the commands without running them.")
	flags.BoolVar(&resume, "resume", false, "Skip runs that already succeeded for this sweep.")
	flags.IntVarP(&parallel, "parallel", "p", 1, "Maximum number of concurrent runs.")
	flags.DurationVar(&timeout, "timeout", 0, "Kill runs that take longer than this. (e.g. 30m, 2h)")
	flags.IntVar(&retries, "retries", 0, "Extra attempts for failed runs.")
	flags.BoolVar(&stopOnFailure, "stop-on-failure", false, "Cancel the remaining runs after a failure.")
}
