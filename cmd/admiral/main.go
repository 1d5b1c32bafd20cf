package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
	"github.com/evanmiller2112/spacetraders-cc/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string
	token      string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "admiral",
	Short: "admiral - SpaceTraders contract procurement commander",
	Long: `admiral runs a SpaceTraders agent's fleet against delivery contracts.

It picks the most profitable contract on offer, plans purchases within
the transaction limits marketplaces tolerate, spreads the load across
every ship with cargo space, and hauls the goods to the contract
destination. All API traffic flows through one shared gate so the fleet
never outruns the account's rate limit.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Agent token (or set ADMIRAL_TOKEN env)")

	// Add commands to root
	rootCmd.AddCommand(procureCmd)
	rootCmd.AddCommand(contractsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(goodsCmd)
	rootCmd.AddCommand(historyCmd)
}

func defaultConfigPath() string {
	if path := os.Getenv("ADMIRAL_CONFIG"); path != "" {
		return path
	}
	return "admiral.yaml"
}

// loadConfig reads the config file, applies environment overrides, then
// folds in command-line flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if token != "" {
		cfg.API.Token = token
	}
	return cfg, nil
}

// newCaller builds the gated API caller every command talks through.
// Callers must Stop the returned gate when done.
func newCaller(cfg *config.Config) (api.Caller, *api.Gate) {
	client := api.NewClientWithConfig(api.ClientConfig{
		Token:   cfg.API.Token,
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.GetAPITimeout(),
	})
	gate := api.NewGate(api.GateConfig{
		Slots:       cfg.Gate.Slots,
		MinInterval: cfg.GetGateMinInterval(),
		BackoffBase: cfg.GetGateBackoffBase(),
		BackoffCap:  cfg.GetGateBackoffCap(),
	}, logger)
	return api.NewGatedCaller(gate, "admiral", client), gate
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
