package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/josephlewis42/rlsweep/core/store"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recently finished runs.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		log := newLogger(cmd)
		defer log.Sync()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}

		runStore := store.NewSQLiteStore(cfg.DatabasePath())
		if err := runStore.Init(cmd.Context()); err != nil {
			return err
		}
		defer runStore.Close()

		records, err := runStore.ListRecords(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "FINISHED\tSWEEP\tALGORITHM\tENV\tSEED\tSTATUS\tATTEMPTS\tDURATION\tPEAK RSS")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
				r.FinishedAt.Local().Format(time.DateTime),
				r.SweepKey,
				r.Algorithm,
				r.EnvID,
				r.Seed,
				r.Status,
				r.Attempts,
				r.Duration().Round(time.Second),
				formatBytes(r.PeakRSS))
		}
		return tw.Flush()
	},
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show.")
}
