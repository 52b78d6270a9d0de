package cmd

import (
	"github.com/josephlewis42/rlsweep/core/config"
	"github.com/josephlewis42/rlsweep/core/sweep"
	"github.com/spf13/cobra"
)

// sweepFlags select which runs of the configured sweep a command acts on.
type sweepFlags struct {
	preset string
	envs   []string
	seeds  []int
}

func (f *sweepFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.preset, "preset", "", "Use a builtin sweep instead of the configured one.")
	cmd.Flags().StringSliceVar(&f.envs, "env", nil, "Only run these environments, may be repeated.")
	cmd.Flags().IntSliceVar(&f.seeds, "seed", nil, "Only run these seeds, may be repeated.")
}

// plan applies the flags to the configuration and enumerates the runs.
func (f *sweepFlags) plan(cfg *config.Configuration) (*sweep.Plan, error) {
	if f.preset != "" {
		if err := cfg.UsePreset(f.preset); err != nil {
			return nil, err
		}
	}

	plan, err := sweep.NewPlan(cfg.Sweep)
	if err != nil {
		return nil, err
	}

	if len(f.envs) == 0 && len(f.seeds) == 0 {
		return plan, nil
	}
	return plan.Filter(f.envs, f.seeds)
}
