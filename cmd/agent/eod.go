package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var eodCmd = &cobra.Command{
	Use:   "eod [YYYY-MM-DD]",
	Short: "Write the end-of-day CSV summary for a day (default today, UTC)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEOD,
}

func init() {
	rootCmd.AddCommand(eodCmd)
}

func runEOD(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	day := time.Now().UTC()
	if len(args) == 1 {
		day, err = time.Parse("2006-01-02", args[0])
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", args[0], err)
		}
	}

	p, err := initializeEOD(cfg).SummarizeDay(day)
	if err != nil {
		return err
	}
	if p == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "No fills journaled on %s\n", day.Format("2006-01-02"))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), p)
	return nil
}
