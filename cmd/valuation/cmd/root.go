// Package cmd implements the valuation CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dealbrain/valuation/internal/config"
	"github.com/dealbrain/valuation/internal/store"
	"github.com/dealbrain/valuation/pkg/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "valuation",
		Short: "Deterministic valuation rule engine",
		Long: "valuation manages rulesets, baselines, and adjusted prices for\n" +
			"marketplace listings. Rulesets are immutable versions; every price\n" +
			"change traces back to a rule in an auditable breakdown.",
	}
)

// Root returns the root cobra command for documentation generation.
func Root() *cobra.Command {
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().
		String("output", "table", "output format (table, json)")
	rootCmd.PersistentFlags().
		String("actor", "cli", "actor name recorded in audit entries")

	cobra.CheckErr(viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output")))
	cobra.CheckErr(viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor")))

	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(rulesetsCmd())
	rootCmd.AddCommand(baselinesCmd())
	rootCmd.AddCommand(packagesCmd())
	rootCmd.AddCommand(revalueCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
}

func initConfig() {
	viper.SetEnvPrefix("VALUATION")
	viper.AutomaticEnv()
}

// loadConfig reads the YAML config and builds the logger from it.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logger.New(cfg.Logging.Level, cfg.Logging.Format), nil
}

// openStore connects to Postgres per the config. Callers must Close.
func openStore(ctx context.Context, cfg *config.Config) (*store.PostgresStore, error) {
	s, err := store.NewPostgresStore(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return s, nil
}

func jsonOutput() bool {
	return viper.GetString("output") == "json"
}

func actor() string {
	return viper.GetString("actor")
}
