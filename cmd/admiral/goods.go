package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evanmiller2112/spacetraders-cc/internal/goods"
)

// goodsCmd shows the product knowledge base
var goodsCmd = &cobra.Command{
	Use:   "goods [symbol]",
	Short: "Show the product knowledge base",
	Long: `Shows the trading profiles the planner works from: reference price
band, per-transaction limit, and the marketplace traits worth searching
for each good. With a symbol argument, shows that good alone; unknown
goods get the conservative fallback profile.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showGoods,
}

func showGoods(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog := goods.NewCatalog()
	if path := cfg.Goods.OverridesPath; path != "" {
		n, err := catalog.LoadOverrides(path)
		if err != nil {
			logger.Warn("failed to load goods overrides", zap.String("path", path), zap.Error(err))
		} else {
			fmt.Printf("Loaded %d overrides from %s\n\n", n, path)
		}
	}

	if len(args) == 1 {
		symbol := strings.ToUpper(args[0])
		info, known := catalog.Lookup(symbol)
		if !known {
			fmt.Printf("%s is not in the knowledge base; conservative defaults apply.\n", symbol)
		}
		printGood(info)
		return nil
	}

	symbols := catalog.Symbols()
	sort.Strings(symbols)
	for _, symbol := range symbols {
		info, _ := catalog.Lookup(symbol)
		printGood(info)
	}
	return nil
}

func printGood(info goods.Info) {
	fmt.Printf("%-12s band [%d, %d]  limit %d/txn  cargo %d/unit  traits %s\n",
		info.Symbol, info.Band.Min, info.Band.Max, info.TransactionLimit,
		info.CargoPerUnit, strings.Join(info.PreferredTraits, ","))
}
