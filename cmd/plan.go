package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var planSweep sweepFlags

// planCmd prints the commands a run would execute
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the trainer command of every run, one per line.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		log := newLogger(cmd)
		defer log.Sync()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}

		plan, err := planSweep.plan(cfg)
		if err != nil {
			return err
		}
		log.Debug("Planned sweep", zap.String("sweep_key", plan.Key()), zap.Int("runs", plan.Len()))

		for _, run := range plan.Runs {
			fmt.Fprintln(cmd.OutOrStdout(), plan.CommandLine(run))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planSweep.register(planCmd)
}
