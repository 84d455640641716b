package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/mergeq/internal/config"
	"github.com/steveyegge/mergeq/internal/events"
	"github.com/steveyegge/mergeq/internal/executor"
	"github.com/steveyegge/mergeq/internal/repl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive shell over a live pool",
	Long: `Start an interactive shell bound to a running pool.

Submit tasks by key, submit bursts of duplicates and watch them merge, inspect
and edit the pending set, and read the lifecycle event log.

Type 'help' in the shell for available commands.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadPoolConfig(config.DefaultPoolConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		rec := events.NewRecorder(500)
		pool, err := executor.New(cfg, executor.WithLogger(logger), executor.WithSink(rec))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create pool: %v\n", err)
			os.Exit(1)
		}

		r, err := repl.New(&repl.Config{Pool: pool, Recorder: rec})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create REPL: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
		defer stop()

		runErr := r.Run(ctx)

		// Let queued work finish, but do not hang on it
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			abandoned := pool.ShutdownNow()
			fmt.Fprintf(os.Stderr, "Warning: shutdown timed out, %d pending task(s) abandoned\n", len(abandoned))
		}

		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
