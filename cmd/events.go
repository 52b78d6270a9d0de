package cmd

import (
	"fmt"

	"github.com/josephlewis42/rlsweep/core/logger"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the sweep event journal.",
}

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Show a report of sweep and run events.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		log := newLogger(cmd)
		defer log.Sync()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}

		fd, err := cfg.ReadAppLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		report := logger.NewReport()
		if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
			return err
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(reportCommand)
}
