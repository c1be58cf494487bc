package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dossiersync/pkg/logger"
	"dossiersync/pkg/progress"
)

var resetYes bool

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the progress snapshot",
	Long: `Delete the progress snapshot so the next session starts from the
beginning of the dataset.

Stored documents are not touched; reprocessing upserts them in place.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip the confirmation prompt")
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	prog := progress.NewStore(cfg.Progress.FilePath, logger.GetLogger())

	if !prog.Exists() {
		fmt.Printf("No progress snapshot at %s, nothing to reset.\n", prog.Path())
		return nil
	}

	if snap, err := prog.Load(); err == nil && snap.LastProcessedIndex > 0 {
		fmt.Printf("Current progress: %d / %d records (%.2f%%)\n",
			snap.LastProcessedIndex, snap.TotalRecords, snap.CompletionPercentage)
	}

	if !resetYes {
		fmt.Printf("Delete %s and start over? (y/N): ", prog.Path())
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := prog.Reset(); err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}

	fmt.Println("Progress snapshot deleted.")
	return nil
}
