package cmd

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/josephlewis42/rlsweep/core/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default, cobra keeps values between
// executions of the same command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

func execute(t *testing.T, args ...string) (stdout string, stderr string, err error) {
	t.Helper()

	resetFlags(rootCmd)
	outBuf, errBuf := &bytes.Buffer{}, &bytes.Buffer{}
	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestInitAndPlan(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, "init", "--config", dir)
	require.Nil(t, err)
	assert.FileExists(t, filepath.Join(dir, config.ConfigurationName))
	assert.DirExists(t, filepath.Join(dir, config.RunLogsDirName))

	t.Run("default sweep", func(t *testing.T) {
		stdout, _, err := execute(t, "plan", "--config", dir)
		require.Nil(t, err)

		got := lines(stdout)
		assert.Len(t, got, 20)
		assert.Equal(t, "python -m PolicyGradient.TD3.main --env_id HalfCheetah-v3 --max_iter 1000 --model_path PolicyGradient/trained_models/TD3 --seed 1", got[0])
		assert.Equal(t, "python -m PolicyGradient.TD3.main --env_id Ant-v3 --max_iter 1000 --model_path PolicyGradient/trained_models/TD3 --seed 5", got[19])
	})

	t.Run("preset", func(t *testing.T) {
		stdout, _, err := execute(t, "plan", "--config", dir, "--preset", "ddpg-bipedal")
		require.Nil(t, err)
		assert.Equal(t, []string{
			"python -m PolicyGradient.DDPG.main --env_id BipedalWalker-v2 --max_iter 1000 --model_path PolicyGradient/DDPG/trained_models --seed 1",
		}, lines(stdout))
	})

	t.Run("filtered", func(t *testing.T) {
		stdout, _, err := execute(t, "plan", "--config", dir, "--env", "Hopper-v3", "--seed", "2")
		require.Nil(t, err)
		assert.Equal(t, []string{
			"python -m PolicyGradient.TD3.main --env_id Hopper-v3 --max_iter 1000 --model_path PolicyGradient/trained_models/TD3 --seed 2",
		}, lines(stdout))
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, _, err := execute(t, "plan", "--config", dir, "--env", "Pong-v0")
		assert.ErrorContains(t, err, `environment "Pong-v0" isn't part of sweep "td3-mujoco"`)
	})

	t.Run("dry run", func(t *testing.T) {
		stdout, _, err := execute(t, "run", "--config", dir, "--dry-run", "--seed", "1", "--color", "never")
		require.Nil(t, err)

		got := lines(stdout)
		require.Len(t, got, 5)
		assert.True(t, strings.HasSuffix(got[4], ": 4 runs, 4 planned"), got[4])
		assert.NoFileExists(t, filepath.Join(dir, config.DatabaseName))
	})

	t.Run("tmux", func(t *testing.T) {
		stdout, _, err := execute(t, "tmux", "--config", dir, "-o", "-")
		require.Nil(t, err)
		assert.Contains(t, stdout, "session_name: run-all-TD3\n")
		assert.Contains(t, stdout, "layout: tiled\n")
	})

	t.Run("tmux default file", func(t *testing.T) {
		out := t.TempDir()
		chdir(t, out)

		_, _, err := execute(t, "tmux", "--config", dir)
		require.Nil(t, err)
		assert.FileExists(t, filepath.Join(out, "run_all_TD3.yaml"))
	})

	t.Run("tmux pane seed zero", func(t *testing.T) {
		_, _, err := execute(t, "tmux", "--config", dir, "-o", "-", "--pane-seed", "0")
		assert.ErrorContains(t, err, `seed 0 isn't part of sweep "td3-mujoco"`)
	})
}

func TestPlanWithoutInit(t *testing.T) {
	_, stderr, err := execute(t, "plan", "--config", t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, stderr, "did you run init?")
}

func TestPresetsCommand(t *testing.T) {
	stdout, _, err := execute(t, "presets")
	require.Nil(t, err)

	got := lines(stdout)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "NAME")
	assert.True(t, strings.HasPrefix(got[1], "ddpg-bipedal"))
	assert.True(t, strings.HasPrefix(got[2], "td3-mujoco"))
}

const shellSweep = `sweep:
  name: shell
  algorithm: TD3
  entry_point: sh -c 'test ${ENV_ID} != Ant-v3' trainer
  envs:
    - Hopper-v3
    - Ant-v3
  seed_start: 1
  seed_end: 1
  max_iter: 10
  model_path: models
  append_algorithm: true
execution:
  parallelism: 1
  timeout: 1m
  retries: 0
  stop_on_failure: false
  launch_interval: 0s
  sample_interval: 0s
  color: never
`

func TestRunWithShellTrainer(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, config.ConfigurationName), []byte(shellSweep), 0600))

	stdout, _, err := execute(t, "run", "--config", dir)
	require.NotNil(t, err)
	assert.Equal(t, []string{
		"========== Start TD3 on Hopper-v3 with seed 1 ==========",
		"========== Finish TD3 on Hopper-v3 with seed 1 (succeeded) ==========",
		"========== Start TD3 on Ant-v3 with seed 1 ==========",
		"========== Finish TD3 on Ant-v3 with seed 1 (failed: exit code 1) ==========",
	}, lines(stdout)[:4])

	logs, err := os.ReadDir(filepath.Join(dir, config.RunLogsDirName))
	require.Nil(t, err)
	assert.Len(t, logs, 2)

	t.Run("history", func(t *testing.T) {
		stdout, _, err := execute(t, "history", "--config", dir)
		require.Nil(t, err)

		got := lines(stdout)
		require.Len(t, got, 3)
		assert.Contains(t, stdout, "succeeded")
		assert.Contains(t, stdout, "failed")
	})

	t.Run("events report", func(t *testing.T) {
		stdout, _, err := execute(t, "events", "report", "--config", dir)
		require.Nil(t, err)
		assert.Contains(t, stdout, "log_entries: 6\n")
		assert.Contains(t, stdout, "Ant-v3")
	})

	t.Run("resume", func(t *testing.T) {
		stdout, _, err := execute(t, "run", "--config", dir, "--resume")
		require.NotNil(t, err)
		assert.Equal(t, "========== Skip TD3 on Hopper-v3 with seed 1 (already succeeded) ==========", lines(stdout)[0])
		assert.NotContains(t, stdout, "Start TD3 on Hopper-v3")
	})
}

func TestRunMissingTrainer(t *testing.T) {
	dir := t.TempDir()
	missing := strings.Replace(shellSweep, "sh -c 'test ${ENV_ID} != Ant-v3' trainer", "rlsweep-missing-trainer", 1)
	require.Nil(t, os.WriteFile(filepath.Join(dir, config.ConfigurationName), []byte(missing), 0600))

	stdout, _, err := execute(t, "run", "--config", dir)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Empty(t, stdout)
	assert.NoFileExists(t, filepath.Join(dir, config.DatabaseName))
}

func TestRunRejectsNegativeRetries(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, config.ConfigurationName), []byte(shellSweep), 0600))

	stdout, _, err := execute(t, "run", "--config", dir, "--retries", "-1")
	assert.ErrorContains(t, err, "--retries can't be negative")
	assert.Empty(t, stdout)
	assert.NoFileExists(t, filepath.Join(dir, config.DatabaseName))
}

// chdir changes the working directory for the duration of the test, like
// testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.Nil(t, err)
	require.Nil(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restoring working directory: %v", err)
		}
	})
}
