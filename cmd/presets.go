package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/josephlewis42/rlsweep/core/config"
	"github.com/spf13/cobra"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the builtin sweeps usable with --preset.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tALGORITHM\tENVIRONMENTS\tSEEDS\tMAX ITER")
		for _, name := range config.PresetNames() {
			s, err := config.Preset(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d-%d\t%d\n", name, s.Algorithm, len(s.Envs), s.SeedStart, s.SeedEnd, s.MaxIter)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
