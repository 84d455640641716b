package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/mergeq/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective pool configuration",
	Long: `Print the pool configuration that run, repl and lookup would use, after the
config file and MERGEQ_* environment overrides are applied. The output is valid
input for --config.`,
	Run: func(cmd *cobra.Command, args []string) {
		cached, _ := cmd.Flags().GetBool("cached")

		base := config.DefaultPoolConfig()
		if cached {
			base = config.CachedPoolConfig()
		}
		cfg, err := loadPoolConfig(base)
		if err != nil {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
			os.Exit(1)
		}

		data, err := config.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to render config: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)

		green := color.New(color.FgGreen).SprintFunc()
		kind := "fixed"
		if !cfg.Fixed() {
			kind = "cached"
		}
		fmt.Fprintf(os.Stderr, "%s valid %s pool configuration\n", green("✓"), kind)
	},
}

func init() {
	configCmd.Flags().Bool("cached", false, "Start from the cached pool defaults instead of the fixed ones")
	rootCmd.AddCommand(configCmd)
}
