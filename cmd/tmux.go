package cmd

import (
	"github.com/josephlewis42/rlsweep/core/tmux"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	tmuxSweep    sweepFlags
	tmuxOutput   string
	tmuxStartDir string
	tmuxSeed     int
)

// tmuxCmd writes a tmuxp session with one pane per environment
var tmuxCmd = &cobra.Command{
	Use:   "tmux",
	Short: "Generate a tmuxp session running every environment side by side.",
	Long: `Generates a tmuxp session file with one window named after the
algorithm. Every environment gets a pane running the trainer for a single
seed and, if the sweep has a tensorboard_log_dir, a tensorboard pane.

Load it with: tmuxp load run_all_<ALGORITHM>.yaml`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		log := newLogger(cmd)
		defer log.Sync()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}

		plan, err := tmuxSweep.plan(cfg)
		if err != nil {
			return err
		}

		startDir := tmuxStartDir
		if startDir == "" {
			startDir = workDir(cfg)
		}

		opts := tmux.Options{StartDirectory: startDir}
		if cmd.Flags().Changed("pane-seed") {
			opts.Seed = &tmuxSeed
		}

		session, err := tmux.NewSession(plan, opts)
		if err != nil {
			return err
		}

		data, err := session.Marshal()
		if err != nil {
			return err
		}

		if tmuxOutput == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}

		output := tmuxOutput
		if output == "" {
			output = session.FileName()
		}
		log.Info("Writing tmuxp session", zap.String("file", output), zap.Int("panes", len(session.Windows[0].Panes)))
		return afero.WriteFile(afero.NewOsFs(), output, data, 0644)
	},
}

func init() {
	rootCmd.AddCommand(tmuxCmd)

	tmuxSweep.register(tmuxCmd)
	tmuxCmd.Flags().StringVarP(&tmuxOutput, "output", "o", "", "File to write, - for stdout. (default run_all_<ALGORITHM>.yaml)")
	tmuxCmd.Flags().StringVar(&tmuxStartDir, "start-dir", "", "Directory tmuxp starts the panes in. (default work_dir)")
	tmuxCmd.Flags().IntVar(&tmuxSeed, "pane-seed", 0, "Seed each trainer pane runs. (default seed_start)")
}
