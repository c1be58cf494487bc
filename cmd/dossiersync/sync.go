package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dossiersync/pkg/engine"
)

const timeRound = 100 * time.Millisecond

var (
	// sync/run command flags
	recordBudget int
	maxAPICalls  int
	pageSize     int
	maxRetries   int
	restart      bool
	noResume     bool
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one bounded processing session",
	Long: `Run a single processing session against the provider.

The session resumes from the committed progress snapshot, fetches pages
until the record budget or the dataset is exhausted, and commits progress
after every page. Interrupting the session (Ctrl-C) finishes the in-flight
page, so the snapshot always stays consistent.

Exit status is 0 when the session ends in the completed or budgeted
state, non-zero when it fails.`,
	Example: `  # One session with the configured budget
  dossiersync sync

  # Smaller session, e.g. for a smoke run
  dossiersync sync --budget 1000

  # Ignore the existing snapshot and start over
  dossiersync sync --restart`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().IntVar(&recordBudget, "budget", 0, "per-session record budget (default from config)")
	syncCmd.Flags().IntVar(&maxAPICalls, "max-api-calls", 0, "cap on page fetches this session (0 = no cap)")
	syncCmd.Flags().IntVar(&pageSize, "page-size", 0, "records per API call (default from config)")
	syncCmd.Flags().IntVar(&maxRetries, "max-retries", -1, "retry attempts per page fetch (default from config)")
	syncCmd.Flags().BoolVar(&restart, "restart", false, "discard the progress snapshot and start from the beginning")
	syncCmd.Flags().BoolVar(&noResume, "no-resume", false, "alias for --restart")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(syncFlags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, docs, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer docs.Close(context.Background())

	if err := eng.ValidateConnections(ctx); err != nil {
		return err
	}

	result, err := eng.RunSession(ctx, engine.Options{
		Restart:      restart || noResume,
		RecordBudget: recordBudget,
		MaxAPICalls:  maxAPICalls,
	})
	printResult(result)
	if err != nil {
		return fmt.Errorf("session ended in state %s: %w", result.State, err)
	}
	return nil
}

func syncFlags() map[string]interface{} {
	flags := map[string]interface{}{}
	if pageSize > 0 {
		flags["page-size"] = pageSize
	}
	if maxRetries >= 0 {
		flags["max-retries"] = maxRetries
	}
	return flags
}

func printResult(result *engine.Result) {
	fmt.Printf("\nSession %s: %s (%s)\n", result.SessionID, result.State, result.EndReason)
	fmt.Printf("  records processed:  %d\n", result.RecordsProcessed)
	fmt.Printf("  api calls:          %d\n", result.APICalls)
	fmt.Printf("  record errors:      %d\n", result.Errors)
	fmt.Printf("  duration:           %s\n", result.EndedAt.Sub(result.StartedAt).Round(timeRound))
	fmt.Printf("  cursor:             %d / %d (%.2f%%)\n",
		result.LastProcessedIndex, result.TotalRecords, result.CompletionPercentage)
	if result.State == engine.StateBudgeted {
		fmt.Printf("  remaining:          ~%d sessions (~%.1f days)\n",
			result.EstimatedRemainingSessions, result.EstimatedRemainingDays)
	}
}
