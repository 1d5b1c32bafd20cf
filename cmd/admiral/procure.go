package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
	"github.com/evanmiller2112/spacetraders-cc/internal/contracts"
	"github.com/evanmiller2112/spacetraders-cc/internal/goods"
	"github.com/evanmiller2112/spacetraders-cc/internal/ledger"
	"github.com/evanmiller2112/spacetraders-cc/internal/market"
	"github.com/evanmiller2112/spacetraders-cc/internal/procure"
)

var procureContract string

// procureCmd works one contract end to end
var procureCmd = &cobra.Command{
	Use:   "procure",
	Short: "Work a delivery contract with the whole fleet",
	Long: `Selects a contract and drives it to fulfillment.

Without --contract the best open offer is accepted, ranked by payout
per required unit; when the board is empty a docked ship negotiates a
fresh one. Each delivery line is then sourced from marketplaces in the
destination system, split into batches the venues tolerate, spread
across the fleet, purchased, and hauled to the destination.

Example:
  admiral procure
  admiral procure --contract cm3talx7p0001s601b0a1c2d3`,
	RunE: runProcure,
}

func init() {
	procureCmd.Flags().StringVar(&procureContract, "contract", "", "Contract ID to work (default: best available)")
}

func runProcure(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	caller, gate := newCaller(cfg)
	defer gate.Stop()

	catalog := goods.NewCatalog()
	if path := cfg.Goods.OverridesPath; path != "" {
		watcher, err := goods.NewWatcher(catalog, path, logger)
		if err != nil {
			return fmt.Errorf("failed to watch goods overrides: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("failed to watch goods overrides: %w", err)
		}
		defer watcher.Stop()
	}

	led, err := ledger.Open(cfg.Ledger.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer led.Close()

	retry := procure.RetryPolicy{
		MaxAttempts: cfg.Procure.MaxAttempts,
		BaseDelay:   cfg.GetBaseBackoff(),
		CapDelay:    cfg.GetCapBackoff(),
	}
	validator := market.NewValidatorWithMargins(catalog, cfg.Market.LowTolerance, cfg.Market.SafetyMargin)
	cargoMgr := procure.NewCargoManager(caller, caller, caller, logger)
	pilot := procure.NewPilot(caller, logger)

	coord := procure.NewCoordinator(procure.CoordinatorDeps{
		Caller:    caller,
		Locator:   market.NewLocator(caller, catalog, logger),
		Planner:   procure.NewBatchPlanner(catalog, validator, logger),
		Allocator: procure.NewAllocator(catalog, cargoMgr, logger),
		Executor:  procure.NewExecutor(caller, pilot, led, retry, logger),
		Pilot:     pilot,
		Ledger:    led,
	}, procure.CoordinatorConfig{
		MaxPasses:      cfg.Procure.MaxPasses,
		DeliveryChunk:  cfg.Procure.DeliveryChunk,
		DeadlineMargin: cfg.GetDeadlineMargin(),
		Retry:          retry,
	}, logger)

	contract, err := pickContract(ctx, caller)
	if err != nil {
		return err
	}

	report, err := coord.Run(ctx, contract)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		return fmt.Errorf("contract run ended early: %w", err)
	}
	return nil
}

// pickContract resolves the contract to work: an explicit ID, or
// whatever the desk judges best.
func pickContract(ctx context.Context, caller api.Caller) (*api.Contract, error) {
	if procureContract == "" {
		desk := contracts.NewDesk(caller, caller, caller, logger)
		return desk.Next(ctx)
	}

	all, err := caller.Contracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	for i := range all {
		if all[i].ID != procureContract {
			continue
		}
		if all[i].Accepted {
			return &all[i], nil
		}
		accepted, err := caller.AcceptContract(ctx, procureContract)
		if err != nil {
			return nil, fmt.Errorf("failed to accept contract %s: %w", procureContract, err)
		}
		return accepted, nil
	}
	return nil, fmt.Errorf("contract %s not found", procureContract)
}

// printReport renders the coordinator's account of the run.
func printReport(report *procure.Report) {
	fmt.Printf("Contract %s: %s\n", report.ContractID, report.Status)
	for _, line := range report.Lines {
		fmt.Printf("  %s -> %s\n", line.Good, line.Destination)
		fmt.Printf("    required %d, purchased %d, delivered %d", line.Required, line.Purchased, line.Delivered)
		if line.Shortfall > 0 {
			fmt.Printf(", short %d", line.Shortfall)
		}
		fmt.Println()
		fmt.Printf("    spent %d credits (avg %s/unit), %d failed batches, status %s\n",
			line.CreditsSpent, line.AvgUnitPrice.StringFixed(2), line.FailedBatches, line.Status)
	}
	if report.Fulfilled {
		fmt.Println("Contract fulfilled and paid out.")
	}
	fmt.Printf("Total spent: %d credits in %s\n", report.CreditsSpent, report.Elapsed.Round(time.Second))
}
