package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Paper-trading scalping agent with rule and LLM-advisory signals",
	Long: `agent streams market snapshots, merges a deterministic indicator signal
with an LLM advisory opinion, checks every intent against the capital floor and
simulates fills in a paper ledger.

Commands:
  run            - start the decision loop and the monitoring API
  eod            - write the end-of-day CSV summary from the journal
  compress-logs  - gzip journal files older than the retention window`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeSystem()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML config")
}
