package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dealbrain/valuation/pkg/rules"
	domain "github.com/dealbrain/valuation/pkg/types"
)

func evaluateCmd() *cobra.Command {
	var (
		recordFile string
		rulesetID  string
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate [listing-id]",
		Short: "Evaluate a listing against a ruleset and print the breakdown",
		Long: "Evaluates one listing against the active ruleset (or --ruleset).\n" +
			"The listing comes from the database by id, or from --file as a\n" +
			"JSON record for what-if runs without touching stored data.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if recordFile == "" && len(args) == 0 {
				return fmt.Errorf("provide a listing id or --file")
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := c.Context()

			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			var rec *domain.Record
			if recordFile != "" {
				data, err := os.ReadFile(recordFile) //nolint:gosec // path from CLI flag
				if err != nil {
					return fmt.Errorf("reading record file: %w", err)
				}
				rec = &domain.Record{}
				if err := json.Unmarshal(data, rec); err != nil {
					return fmt.Errorf("decoding record: %w", err)
				}
			} else {
				rec, err = s.GetRecord(ctx, args[0])
				if err != nil {
					return fmt.Errorf("loading listing %s: %w", args[0], err)
				}
			}

			rs, err := resolveRuleset(ctx, s, rulesetID)
			if err != nil {
				return err
			}

			ev := rules.NewEvaluator(
				rules.WithFloor(cfg.Engine.PriceFloor),
				rules.WithStepBudget(cfg.Engine.FormulaStepBudget),
				rules.WithLogger(log),
			)
			b := ev.Evaluate(rec, rs)

			if save {
				if err := s.SaveBreakdown(ctx, rec.ListingID, b); err != nil {
					return fmt.Errorf("saving breakdown: %w", err)
				}
			}

			if jsonOutput() {
				return outputJSON(b)
			}
			return printBreakdown(b)
		},
	}

	cmd.Flags().StringVar(&recordFile, "file", "", "evaluate a JSON record from a file instead of the database")
	cmd.Flags().StringVar(&rulesetID, "ruleset", "", "ruleset id (default: the active ruleset)")
	cmd.Flags().BoolVar(&save, "save", false, "persist the breakdown to the listing")

	return cmd
}
