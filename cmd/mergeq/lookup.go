package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/steveyegge/mergeq/internal/config"
	"github.com/steveyegge/mergeq/internal/executor"
	"github.com/steveyegge/mergeq/internal/lookup"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <id>...",
	Short: "Fetch entity metadata through the pool",
	Long: `Load metadata for one or more entity ids (for example /m/0524b41) from a
topic service. Every id is requested --repeat times at once; the requests for
one id share a single fetch, and later requests are answered from the cache.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		baseURL, _ := cmd.Flags().GetString("base-url")
		repeat, _ := cmd.Flags().GetInt("repeat")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := loadPoolConfig(config.CachedPoolConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if repeat < 1 {
			repeat = 1
		}

		pool, err := executor.New(cfg, executor.WithLogger(logger))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create pool: %v\n", err)
			os.Exit(1)
		}

		fetcher := lookup.NewTopicFetcher(baseURL)
		fetcher.Client.Timeout = timeout
		loader, err := lookup.NewLoader(pool, fetcher, lookup.WithLogger(logger))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if n := loader.Abandon(pool.ShutdownNow()); n > 0 {
				logger.Warn("abandoned pending lookups", "count", n)
			}
		}()

		results := runLookups(loader, args, repeat)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = pool.Shutdown(ctx)
		s := pool.Stats()

		failed := 0
		if asJSON {
			doc, err := lookupsJSON(args, results, s)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to render results: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(doc))
			for _, o := range results {
				if o.err != nil {
					failed++
				}
			}
		} else {
			failed = printLookups(args, results)
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s\n", gray(fmt.Sprintf("%d request(s), %d fetch(es), %d merged", s.Submitted, s.Executed, s.Merged)))
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	lookupCmd.Flags().String("base-url", "https://www.googleapis.com/kgraph", "Topic service base URL")
	lookupCmd.Flags().Int("repeat", 3, "Concurrent requests per id")
	lookupCmd.Flags().Duration("timeout", 30*time.Second, "Per-request timeout")
	lookupCmd.Flags().Bool("json", false, "Print results as JSON")
	rootCmd.AddCommand(lookupCmd)
}

type lookupOutcome struct {
	result lookup.Result
	err    error
}

// runLookups requests every id repeat times and waits for every listener
func runLookups(loader *lookup.Loader, ids []string, repeat int) map[string]lookupOutcome {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make(map[string]lookupOutcome, len(ids))
	)
	for _, id := range ids {
		for i := 0; i < repeat; i++ {
			wg.Add(1)
			err := loader.Load(id, func(id string, result lookup.Result, err error) {
				defer wg.Done()
				mu.Lock()
				outcomes[id] = lookupOutcome{result: result, err: err}
				mu.Unlock()
			})
			if err != nil {
				wg.Done()
				mu.Lock()
				outcomes[id] = lookupOutcome{err: err}
				mu.Unlock()
				break
			}
		}
	}
	wg.Wait()
	return outcomes
}

func printLookups(ids []string, outcomes map[string]lookupOutcome) int {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	failed := 0
	for _, id := range ids {
		o := outcomes[id]
		if o.err != nil {
			failed++
			fmt.Printf("%s %s: %v\n", red("✗"), id, o.err)
			continue
		}
		fmt.Printf("%s %s %s\n", green("✓"), id, cyan(o.result.Title))
		if o.result.Description != "" {
			fmt.Printf("    %s\n", truncateString(o.result.Description, 120))
		}
		if o.result.ImageURI != "" {
			fmt.Printf("    image: %s\n", o.result.ImageURI)
		}
	}
	return failed
}

// lookupsJSON renders outcomes in argument order together with pool counters
func lookupsJSON(ids []string, outcomes map[string]lookupOutcome, s executor.Stats) ([]byte, error) {
	doc := []byte(`{"results":[]}`)
	for _, id := range ids {
		o := outcomes[id]
		item := []byte(`{}`)
		var err error
		if item, err = sjson.SetBytes(item, "id", id); err != nil {
			return nil, err
		}
		if o.err != nil {
			item, err = sjson.SetBytes(item, "error", o.err.Error())
		} else {
			item, err = sjson.SetBytes(item, "result", o.result)
		}
		if err != nil {
			return nil, err
		}
		if doc, err = sjson.SetRawBytes(doc, "results.-1", item); err != nil {
			return nil, err
		}
	}

	var err error
	for _, field := range []struct {
		path  string
		value int64
	}{
		{"stats.requests", s.Submitted},
		{"stats.fetches", s.Executed},
		{"stats.merged", s.Merged},
	} {
		if doc, err = sjson.SetBytes(doc, field.path, field.value); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
