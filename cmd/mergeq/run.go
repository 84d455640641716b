package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/mergeq/internal/config"
	"github.com/steveyegge/mergeq/internal/events"
	"github.com/steveyegge/mergeq/internal/executor"
	"github.com/steveyegge/mergeq/internal/task"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Push synthetic load through a pool and report how much was merged",
	Long: `Start a pool, let several producers submit tasks over a small key space,
then shut down gracefully and print what happened.

Tasks sharing a key while one of them is pending or running are merged, so
with few keys and slow tasks most submissions never execute.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := runOptions{}
		opts.producers, _ = cmd.Flags().GetInt("producers")
		opts.tasks, _ = cmd.Flags().GetInt("tasks")
		opts.keys, _ = cmd.Flags().GetInt("keys")
		opts.work, _ = cmd.Flags().GetDuration("work")
		opts.failEvery, _ = cmd.Flags().GetInt("fail-every")
		opts.follow, _ = cmd.Flags().GetBool("follow")
		cached, _ := cmd.Flags().GetBool("cached")

		base := config.DefaultPoolConfig()
		if cached {
			base = config.CachedPoolConfig()
		}
		cfg, err := loadPoolConfig(base)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := opts.validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := runLoad(ctx, cfg, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printReport(report)
	},
}

func init() {
	runCmd.Flags().IntP("producers", "p", 4, "Number of concurrent producers")
	runCmd.Flags().IntP("tasks", "n", 250, "Tasks submitted by each producer")
	runCmd.Flags().IntP("keys", "k", 10, "Number of distinct task keys")
	runCmd.Flags().DurationP("work", "w", 5*time.Millisecond, "How long each task runs")
	runCmd.Flags().Int("fail-every", 0, "Make every Nth execution fail (0 = never)")
	runCmd.Flags().BoolP("follow", "f", false, "Print lifecycle events as they happen")
	runCmd.Flags().Bool("cached", false, "Start from the cached pool defaults instead of the fixed ones")
	rootCmd.AddCommand(runCmd)
}

type runOptions struct {
	producers int
	tasks     int
	keys      int
	work      time.Duration
	failEvery int
	follow    bool
}

func (o runOptions) validate() error {
	if o.producers < 1 || o.tasks < 1 || o.keys < 1 {
		return fmt.Errorf("producers, tasks and keys must all be at least 1")
	}
	if o.work < 0 || o.failEvery < 0 {
		return fmt.Errorf("work and fail-every cannot be negative")
	}
	return nil
}

type runReport struct {
	config      config.PoolConfig
	stats       executor.Stats
	elapsed     time.Duration
	interrupted bool
	abandoned   int
	eventCounts map[events.EventType]int
}

var errLoadFailed = errors.New("synthetic failure")

// runLoad drives one synthetic run to completion
func runLoad(ctx context.Context, cfg config.PoolConfig, opts runOptions) (*runReport, error) {
	rec := events.NewRecorder(1000)
	sinks := events.Multi{rec}
	if opts.follow {
		sinks = append(sinks, newPrintSink(os.Stdout, verbose))
	}
	if verbose {
		sinks = append(sinks, events.LogSink{Logger: logger})
	}

	pool, err := executor.New(cfg, executor.WithLogger(logger), executor.WithSink(sinks))
	if err != nil {
		return nil, err
	}

	var runs countingRuns
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < opts.producers; p++ {
		g.Go(func() error {
			for i := 0; i < opts.tasks; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				key := fmt.Sprintf("key-%02d", (p*opts.tasks+i)%opts.keys)
				if err := pool.Submit(runs.newTask(key, opts)); err != nil {
					return fmt.Errorf("producer %d: %w", p, err)
				}
			}
			return nil
		})
	}
	produceErr := g.Wait()

	report := &runReport{config: cfg}
	if ctx.Err() != nil {
		report.interrupted = true
		report.abandoned = len(pool.ShutdownNow())
		pool.Wait()
	} else {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			report.abandoned = len(pool.ShutdownNow())
			pool.Wait()
		}
		if produceErr != nil {
			return nil, produceErr
		}
	}

	report.elapsed = time.Since(start)
	report.stats = pool.Stats()
	report.eventCounts = map[events.EventType]int{}
	for _, typ := range []events.EventType{
		events.EventTypeTaskSubmitted, events.EventTypeTaskMerged, events.EventTypeTaskCompleted,
		events.EventTypeTaskFailed, events.EventTypeTaskSkipped, events.EventTypeWorkerStarted,
	} {
		report.eventCounts[typ] = rec.Count(typ)
	}
	return report, nil
}

// countingRuns numbers executions across all tasks of a run
type countingRuns struct {
	n atomic.Int64
}

func (c *countingRuns) newTask(key string, opts runOptions) task.Task {
	return task.NewFunc(key, func(ctx context.Context) error {
		n := c.n.Add(1)
		if opts.work > 0 {
			select {
			case <-time.After(opts.work):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if opts.failEvery > 0 && n%int64(opts.failEvery) == 0 {
			return fmt.Errorf("%w on execution %d", errLoadFailed, n)
		}
		return nil
	})
}

func printReport(r *runReport) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== mergeq run ==="))
	fmt.Printf("  %s\n", gray(r.config.String()))
	if r.interrupted {
		fmt.Printf("  %s interrupted, %d pending task(s) abandoned\n", yellow("⚠"), r.abandoned)
	}
	fmt.Println()

	s := r.stats
	fmt.Printf("  Submitted: %d\n", s.Submitted)
	fmt.Printf("  %s  %d (%.1f%%)\n", yellow("Merged:"), s.Merged, percent(s.Merged, s.Submitted))
	fmt.Printf("  %s %d\n", green("Executed:"), s.Executed)
	if s.Skipped > 0 {
		fmt.Printf("  %s  %d\n", yellow("Skipped:"), s.Skipped)
	}
	if s.Failed > 0 {
		fmt.Printf("  %s   %d (panics %d)\n", red("Failed:"), s.Failed, s.Panics)
	}
	fmt.Printf("  Workers:   peak %d\n", s.PeakWorkers)
	fmt.Printf("  Elapsed:   %v\n", r.elapsed.Round(time.Millisecond))
	fmt.Println()

	types := make([]string, 0, len(r.eventCounts))
	for typ := range r.eventCounts {
		types = append(types, string(typ))
	}
	sort.Strings(types)
	fmt.Printf("  %s\n", gray("Events:"))
	for _, typ := range types {
		fmt.Printf("    %-16s %d\n", typ, r.eventCounts[events.EventType(typ)])
	}
	fmt.Println()
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}
