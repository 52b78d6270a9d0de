package cmd

import (
	"github.com/josephlewis42/rlsweep/core/config"
	"github.com/spf13/cobra"
)

// initCmd writes the default sweep configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sweep configuration in the --config directory.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		logger := newLogger(cmd)
		defer logger.Sync()

		_, err := config.Initialize(cfgPath, logger)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
