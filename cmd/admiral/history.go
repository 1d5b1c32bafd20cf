package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evanmiller2112/spacetraders-cc/internal/ledger"
)

var historyLimit int

// historyCmd shows archived procurement runs
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived procurement runs from the ledger",
	RunE:  showHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Max archived runs to show")
}

func showHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	led, err := ledger.Open(cfg.Ledger.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer led.Close()

	archives, err := led.Archives(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read archives: %w", err)
	}
	if len(archives) == 0 {
		fmt.Println("No archived runs yet.")
		return nil
	}

	for _, a := range archives {
		fmt.Printf("%s  %-9s %-12s %d/%d delivered, %d credits, %d failed batches  %s\n",
			a.FinishedAt.Format(time.RFC3339), a.Status, a.Good,
			a.UnitsDelivered, a.UnitsRequired, a.CreditsSpent, a.FailedBatches,
			a.ContractID)
	}
	return nil
}
