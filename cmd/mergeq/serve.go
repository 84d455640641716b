package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/mergeq/internal/config"
	"github.com/steveyegge/mergeq/internal/control"
	"github.com/steveyegge/mergeq/internal/events"
	"github.com/steveyegge/mergeq/internal/executor"
)

var socketPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a pool that accepts work over a control socket",
	Long: `Start a pool and a control socket, then wait. Use 'mergeq ctl' from another
terminal to submit tasks, inspect the pending set and shut the pool down.

The pool drains its pending tasks before exiting on SIGINT, SIGTERM or a
'ctl shutdown' command.`,
	Run: func(cmd *cobra.Command, args []string) {
		follow, _ := cmd.Flags().GetBool("follow")

		cfg, err := loadPoolConfig(config.DefaultPoolConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var sink events.Sink = events.NopSink{}
		if follow {
			sink = newPrintSink(os.Stdout, verbose)
		}
		pool, err := executor.New(cfg, executor.WithLogger(logger), executor.WithSink(sink))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create pool: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		handler := &control.PoolHandler{Pool: pool, OnShutdown: stop}
		srv, err := control.NewServer(socketPath, handler.Handle, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := srv.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s serving on %s\n", green("●"), socketPath)
		fmt.Printf("  %s\n", gray(cfg.String()))

		<-ctx.Done()
		_ = srv.Stop()

		fmt.Printf("Draining %d pending task(s)...\n", pool.Queue().Len())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			abandoned := pool.ShutdownNow()
			fmt.Fprintf(os.Stderr, "Warning: shutdown timed out, %d pending task(s) abandoned\n", len(abandoned))
		}
		s := pool.Stats()
		fmt.Printf("Stopped: %d executed, %d merged, %d failed\n", s.Executed, s.Merged, s.Failed)
	},
}

func defaultSocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("mergeq-%d.sock", os.Getuid()))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath(), "Control socket path for serve and ctl")
	serveCmd.Flags().BoolP("follow", "f", false, "Print lifecycle events as they happen")
	rootCmd.AddCommand(serveCmd)
}
