package cmd

import (
	"errors"
	"io/fs"

	"github.com/josephlewis42/rlsweep/core/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgPath   string
	verbose   bool
	colorMode string
)

func loadConfig(logger *zap.Logger) (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		logger.Error("Couldn't load config: did you run init?", zap.String("config", cfgPath))
	}

	return configuration, err
}

// newLogger writes human readable operational logs to the command's stderr so
// they don't mix with banners and trainer output on stdout.
func newLogger(cmd *cobra.Command) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(cmd.ErrOrStderr()),
		level,
	)
	return zap.New(core)
}

// bannerColor picks the --color flag over the configured value.
func bannerColor(cmd *cobra.Command, cfg *config.Configuration) string {
	if cmd.Flags().Changed("color") {
		return colorMode
	}
	return cfg.Execution.Color
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rlsweep",
	Short: "Reinforcement learning experiment sweeps",
	Long: `Launches a reinforcement learning trainer once for every environment
and seed of a sweep, recording the outcome of each run.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug messages.")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", config.ColorAuto, "Colorize banners: always, auto or never.")
}
