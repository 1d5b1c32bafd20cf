package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
	"github.com/evanmiller2112/spacetraders-cc/internal/contracts"
)

// contractsCmd lists the contract board
var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List contracts ranked by payout per required unit",
	RunE:  listContracts,
}

func listContracts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	caller, gate := newCaller(cfg)
	defer gate.Stop()

	desk := contracts.NewDesk(caller, caller, caller, logger)
	ranked, err := desk.Ranked(context.Background())
	if err != nil {
		return err
	}
	if len(ranked) == 0 {
		fmt.Println("No contracts on the board.")
		return nil
	}

	now := time.Now()
	for _, s := range ranked {
		c := s.Contract
		fmt.Printf("%s  %-20s %10s/unit  %s\n",
			c.ID, c.State(now), s.Score.StringFixed(2), describeTerms(c))
	}
	return nil
}

func describeTerms(c api.Contract) string {
	parts := make([]string, 0, len(c.Terms.Deliver))
	for _, d := range c.Terms.Deliver {
		parts = append(parts, fmt.Sprintf("%d %s to %s", d.Remaining(), d.TradeSymbol, d.DestinationSymbol))
	}
	return strings.Join(parts, ", ")
}
