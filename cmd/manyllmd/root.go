package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"manyllmd/internal/config"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "manyllmd",
	Short:         "Daemon managing the lifecycle of large model artifacts on a single host",
	Long:          "manyllmd discovers model artifacts in a remote catalog, downloads them\nresumably, verifies their integrity and brokers exclusive activation of one\nartifact at a time against the host's memory budget.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", envOr("MANYLLMD_CONFIG", ""), "Path to config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", envOr("MANYLLMD_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(modelsCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newLogger builds the process logger from the --log-level flag.
func newLogger() zerolog.Logger {
	lvl, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// loadConfig reads the optional config file. Flags that were set explicitly
// override file values in the serve command.
func loadConfig() (config.Config, error) {
	if flagConfig == "" {
		return config.Config{}, nil
	}
	return config.Load(flagConfig)
}
