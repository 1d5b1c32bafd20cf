package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd shows agent and fleet state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent credits and fleet state",
	RunE:  showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	caller, gate := newCaller(cfg)
	defer gate.Stop()
	ctx := context.Background()

	agent, err := caller.Agent(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch agent: %w", err)
	}
	fmt.Printf("Agent %s (%s)\n", agent.Symbol, agent.StartingFaction)
	fmt.Printf("Credits:      %d\n", agent.Credits)
	fmt.Printf("Headquarters: %s\n", agent.Headquarters)
	fmt.Println()

	ships, err := caller.Ships(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch fleet: %w", err)
	}
	fmt.Printf("Fleet (%d ships):\n", len(ships))
	for _, ship := range ships {
		fmt.Printf("  %-14s %-11s %-14s cargo %d/%d\n",
			ship.Symbol, ship.Nav.Status, ship.Nav.WaypointSymbol,
			ship.Cargo.Units, ship.Cargo.Capacity)
		for _, item := range ship.Cargo.Inventory {
			fmt.Printf("      %4d %s\n", item.Units, item.Symbol)
		}
	}
	return nil
}
