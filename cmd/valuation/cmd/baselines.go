package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dealbrain/valuation/internal/baseline"
)

func baselinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baselines",
		Short: "Manage system baseline documents",
		Long: "Baseline documents ship with the system and materialize into\n" +
			"read-only rule groups. Updates are adopted field by field so local\n" +
			"decisions survive upstream releases.",
	}

	cmd.AddCommand(baselinesInstantiateCmd())
	cmd.AddCommand(baselinesDiffCmd())
	cmd.AddCommand(baselinesAdoptCmd())
	cmd.AddCommand(baselinesAuditCmd())

	return cmd
}

func baselinesInstantiateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instantiate <document.json>",
		Short: "Turn a baseline document into a stored ruleset version",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			docJSON, err := os.ReadFile(args[0]) //nolint:gosec // path from CLI arg
			if err != nil {
				return fmt.Errorf("reading document: %w", err)
			}

			s, err := openStore(c.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			m := baseline.NewManager(s, baseline.WithLogger(log))
			rs, created, err := m.Instantiate(c.Context(), docJSON, actor())
			if err != nil {
				return err
			}

			if !created {
				fmt.Printf("already instantiated as %s (version %d)\n", rs.ID, rs.Version)
				return nil
			}
			fmt.Printf("instantiated %s (version %d)\n", rs.ID, rs.Version)
			return nil
		},
	}
}

func baselinesDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <document.json>",
		Short: "Diff a candidate document against the active baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			docJSON, err := os.ReadFile(args[0]) //nolint:gosec // path from CLI arg
			if err != nil {
				return fmt.Errorf("reading document: %w", err)
			}

			s, err := openStore(c.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			m := baseline.NewManager(s)
			diff, err := m.DiffAgainstActive(c.Context(), docJSON)
			if err != nil {
				return err
			}

			if jsonOutput() {
				return outputJSON(diff)
			}
			return printDiff(diff)
		},
	}
}

func baselinesAdoptCmd() *cobra.Command {
	var fields []string

	cmd := &cobra.Command{
		Use:   "adopt <document.json>",
		Short: "Adopt changes from a candidate document into a new version",
		Long: "Applies changes from the candidate document onto the active\n" +
			"baseline, producing and activating a new ruleset version. With\n" +
			"--field, only the named Entity.field paths are adopted; the rest\n" +
			"are skipped and recorded in the audit log.",
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			docJSON, err := os.ReadFile(args[0]) //nolint:gosec // path from CLI arg
			if err != nil {
				return fmt.Errorf("reading document: %w", err)
			}

			s, err := openStore(c.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			var selected []string
			if c.Flags().Changed("field") {
				selected = fields
			}

			m := baseline.NewManager(s, baseline.WithLogger(log))
			rs, diff, err := m.Adopt(c.Context(), docJSON, selected, actor())
			if err != nil {
				return err
			}

			if jsonOutput() {
				return outputJSON(map[string]any{
					"ruleset_id": rs.ID,
					"version":    rs.Version,
					"diff":       diff,
				})
			}
			fmt.Printf("adopted into %s (version %d)\n", rs.ID, rs.Version)
			return printDiff(diff)
		},
	}

	cmd.Flags().StringSliceVar(&fields, "field", nil,
		"Entity.field path to adopt (repeatable; default: all changes)")

	return cmd
}

func baselinesAuditCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the baseline lifecycle audit log",
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

			entries, err := baseline.NewManager(s).AuditTrail(c.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput() {
				return outputJSON(entries)
			}
			return printAuditTable(entries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")

	return cmd
}
