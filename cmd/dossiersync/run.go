package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dossiersync/pkg/engine"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run sessions until the full dataset is pulled",
	Long: `Run processing sessions back to back until the dataset is complete.

Each session obeys the record budget and commits progress after every
page, the same as 'dossiersync sync'. Transient session failures pause
and retry; consecutive failures are bounded before the command gives up.`,
	Example: `  # Pull everything, pausing between failed sessions
  dossiersync run

  # Full pull with a smaller per-session budget
  dossiersync run --budget 5000`,
	Args: cobra.NoArgs,
	RunE: runFull,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&recordBudget, "budget", 0, "per-session record budget (default from config)")
	runCmd.Flags().BoolVar(&restart, "restart", false, "discard the progress snapshot and start from the beginning")
}

func runFull(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
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

	result, err := eng.RunUntilComplete(ctx, engine.Options{
		Restart:      restart,
		RecordBudget: recordBudget,
	})
	printResult(result)
	if err != nil {
		return fmt.Errorf("full sync ended in state %s: %w", result.State, err)
	}
	return nil
}
