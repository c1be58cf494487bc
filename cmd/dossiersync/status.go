package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync progress and connectivity",
	Long: `Show the committed progress snapshot, the document count in
MongoDB, and whether both the provider and the store are reachable.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eng, docs, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer docs.Close(context.Background())

	status, err := eng.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read progress: %w", err)
	}

	snap := status.Snapshot
	fmt.Println("Progress")
	fmt.Printf("  cursor:             %d / %d (%.2f%%)\n",
		snap.LastProcessedIndex, snap.TotalRecords, snap.CompletionPercentage)
	fmt.Printf("  records processed:  %d\n", snap.RecordsProcessed)
	fmt.Printf("  api calls total:    %d\n", snap.APICallsTotal)
	if snap.EstimatedRemainingSessions > 0 {
		fmt.Printf("  remaining:          ~%d sessions (~%.1f days)\n",
			snap.EstimatedRemainingSessions, snap.EstimatedRemainingDays)
	}
	if snap.LastSession != nil {
		last := snap.LastSession
		fmt.Println("\nLast session")
		fmt.Printf("  id:                 %s\n", last.SessionID)
		fmt.Printf("  state:              %s\n", last.EndState)
		fmt.Printf("  records:            %d\n", last.RecordsProcessed)
		fmt.Printf("  ended:              %s\n", last.EndedAt.Format(time.RFC3339))
	}

	fmt.Println("\nConnectivity")
	fmt.Printf("  provider:           %s\n", reachable(status.ProviderReachable))
	fmt.Printf("  document store:     %s\n", reachable(status.StoreReachable))
	if status.StoreReachable {
		fmt.Printf("  stored documents:   %d\n", status.DatabaseRecords)
	}

	return nil
}

func reachable(ok bool) string {
	if ok {
		return "reachable"
	}
	return "UNREACHABLE"
}
