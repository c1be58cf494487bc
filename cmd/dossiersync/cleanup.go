package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dossiersync/pkg/logger"
	"dossiersync/pkg/store"
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove duplicate documents from the store",
	Long: `Remove documents sharing the same provider ID, keeping one copy
of each.

Duplicates only appear when documents were written outside the sync
path, e.g. by hand or by an older importer without the unique index.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	docs, err := store.Connect(ctx, &cfg.Mongo, logger.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer docs.Close(context.Background())

	removed, err := docs.CleanupDuplicates(ctx)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	count, _ := docs.Count(ctx)
	fmt.Printf("Removed %d duplicate documents, %d remain.\n", removed, count)
	return nil
}
