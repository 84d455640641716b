package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/mergeq/internal/config"
)

var (
	configPath string
	verbose    bool
	logJSON    bool
	logger     = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "mergeq",
	Short: "Deduplicating work queue and worker pool",
	Long: `mergeq drives a worker pool whose queue never holds two tasks with the same key.

Submitting a task whose key is already pending or running merges it into that
task instead of running it again.

Configuration comes from a YAML file (--config) or MERGEQ_* environment variables:
  MERGEQ_CORE_WORKERS, MERGEQ_MAX_WORKERS, MERGEQ_KEEP_ALIVE,
  MERGEQ_START_RATE, MERGEQ_START_BURST, MERGEQ_ORDER`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(os.Stderr, verbose, logJSON)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML pool configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON instead of text")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger. Without --verbose only warnings and
// errors are shown.
func newLogger(w io.Writer, verbose, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadPoolConfig returns the pool configuration from --config if given,
// otherwise base with environment overrides applied.
func loadPoolConfig(base config.PoolConfig) (config.PoolConfig, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.ApplyEnv(base)
}
