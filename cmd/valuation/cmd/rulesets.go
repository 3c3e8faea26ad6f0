package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dealbrain/valuation/internal/store"
	domain "github.com/dealbrain/valuation/pkg/types"
)

func rulesetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rulesets",
		Short: "Inspect and activate ruleset versions",
	}

	cmd.AddCommand(rulesetsListCmd())
	cmd.AddCommand(rulesetsShowCmd())
	cmd.AddCommand(rulesetsActivateCmd())

	return cmd
}

func rulesetsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all ruleset versions",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(c.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			rulesets, err := s.ListRulesets(c.Context())
			if err != nil {
				return fmt.Errorf("listing rulesets: %w", err)
			}

			if jsonOutput() {
				return outputJSON(rulesets)
			}
			return printRulesetsTable(rulesets)
		},
	}
}

func rulesetsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <ruleset-id>",
		Short: "Show a ruleset's groups and rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(c.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			rs, err := s.GetRuleset(c.Context(), args[0])
			if err != nil {
				return fmt.Errorf("loading ruleset %s: %w", args[0], err)
			}

			if jsonOutput() {
				return outputJSON(rs)
			}
			return printRulesetDetail(rs)
		},
	}
}

func rulesetsActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <ruleset-id>",
		Short: "Make a ruleset version the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(c.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.ActivateRuleset(c.Context(), args[0]); err != nil {
				return fmt.Errorf("activating ruleset %s: %w", args[0], err)
			}
			log.Info("ruleset activated", "ruleset", args[0])
			return nil
		},
	}
}

// resolveRuleset returns the ruleset by id, or the active one when id is
// empty.
func resolveRuleset(
	ctx context.Context,
	s store.Store,
	id string,
) (*domain.Ruleset, error) {
	if id != "" {
		rs, err := s.GetRuleset(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading ruleset %s: %w", id, err)
		}
		return rs, nil
	}
	rs, err := s.GetActiveRuleset(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active ruleset: %w", err)
	}
	return rs, nil
}
