package main

import (
	"errors"
	"fmt"
	"time"

	"aitradebot/internal/journal"
	"aitradebot/internal/logger"

	"github.com/spf13/cobra"
)

var compressLogsCmd = &cobra.Command{
	Use:   "compress-logs",
	Short: "Gzip journal files older than the retention window",
	Args:  cobra.NoArgs,
	RunE:  runCompressLogs,
}

var retentionDays int

func init() {
	rootCmd.AddCommand(compressLogsCmd)

	compressLogsCmd.Flags().IntVar(&retentionDays, "retention-days", 0, "override journal.retention_days")
}

func runCompressLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	days := cfg.Journal.RetentionDays
	if retentionDays > 0 {
		days = retentionDays
	}
	if days <= 0 {
		return errors.New("retention days must be positive (set journal.retention_days or --retention-days)")
	}
	op := logger.StartOperation(cmd.Context(), "journal.compress", "dir", cfg.Journal.Dir, "retention_days", days)
	if err := journal.CompressOlder(cfg.Journal.Dir, days, time.Now()); err != nil {
		op.EndWithError(err)
		return err
	}
	op.End()
	fmt.Fprintf(cmd.OutOrStdout(), "Compressed journal files older than %d days in %s\n", days, cfg.Journal.Dir)
	return nil
}
