package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/mergeq/internal/control"
)

var ctlCmd = &cobra.Command{
	Use:   "ctl <status|submit|pending|remove|clear|shutdown> [args]",
	Short: "Send a command to a running 'mergeq serve'",
	Long: `Send one control command to a pool started with 'mergeq serve'.

  ctl status                 show pool counters
  ctl submit <key> [work]    submit a task that runs for work (default 0s)
  ctl pending                list pending task keys
  ctl remove <key>           remove a pending task
  ctl clear                  remove all pending tasks
  ctl shutdown               drain the pool and stop the server`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		command, err := buildCommand(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		resp, err := control.NewClient(socketPath).SendCommand(command)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		red := color.New(color.FgRed).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		if !resp.Success {
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", red("✗"), resp.Message, resp.Error)
			os.Exit(1)
		}
		fmt.Printf("%s %s\n", green("✓"), resp.Message)
		printData(resp.Data, "  ")
	},
}

func init() {
	rootCmd.AddCommand(ctlCmd)
}

// buildCommand turns ctl arguments into a control command
func buildCommand(args []string) (control.Command, error) {
	cmd := control.Command{Type: args[0]}
	rest := args[1:]

	switch cmd.Type {
	case control.CmdStatus, control.CmdPending, control.CmdClear, control.CmdShutdown:
		if len(rest) != 0 {
			return cmd, fmt.Errorf("%s takes no arguments", cmd.Type)
		}
	case control.CmdSubmit:
		if len(rest) < 1 || len(rest) > 2 {
			return cmd, fmt.Errorf("usage: ctl submit <key> [work]")
		}
		cmd.Key = rest[0]
		if len(rest) == 2 {
			if _, err := time.ParseDuration(rest[1]); err != nil {
				return cmd, fmt.Errorf("invalid work duration %q: %w", rest[1], err)
			}
			cmd.Work = rest[1]
		}
	case control.CmdRemove:
		if len(rest) != 1 {
			return cmd, fmt.Errorf("usage: ctl remove <key>")
		}
		cmd.Key = rest[0]
	default:
		return cmd, fmt.Errorf("unknown command %q", cmd.Type)
	}
	return cmd, nil
}

// printData prints nested response data, one key per line, sorted
func printData(data map[string]interface{}, indent string) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := data[k].(type) {
		case map[string]interface{}:
			fmt.Printf("%s%s:\n", indent, k)
			printData(v, indent+"  ")
		case []interface{}:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprint(item)
			}
			fmt.Printf("%s%s: [%s]\n", indent, k, strings.Join(parts, ", "))
		default:
			fmt.Printf("%s%s: %v\n", indent, k, v)
		}
	}
}
