package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dealbrain/valuation/pkg/pack"
)

func packagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packages",
		Short: "Export and import ruleset packages",
	}

	cmd.AddCommand(packagesExportCmd())
	cmd.AddCommand(packagesImportCmd())

	return cmd
}

func packagesExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export [ruleset-id]",
		Short: "Export a ruleset as a portable package",
		Args:  cobra.MaximumNArgs(1),
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

			var id string
			if len(args) > 0 {
				id = args[0]
			}
			rs, err := resolveRuleset(c.Context(), s, id)
			if err != nil {
				return err
			}

			data, err := pack.Export(rs)
			if err != nil {
				return fmt.Errorf("exporting ruleset: %w", err)
			}

			if out == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil { //nolint:gosec // package file
				return fmt.Errorf("writing package: %w", err)
			}
			fmt.Fprintf(os.Stderr, "exported %s to %s\n", rs.ID, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output-file", "o", "", "write the package to a file (default: stdout)")

	return cmd
}

func packagesImportCmd() *cobra.Command {
	var (
		customFields []string
		activate     bool
	)

	cmd := &cobra.Command{
		Use:   "import <package.json>",
		Short: "Import a ruleset package",
		Long: "Validates and imports a package as a fresh, inactive ruleset.\n" +
			"Import is all-or-nothing: schema mismatches, payload tampering, and\n" +
			"unsatisfied field requirements each reject the whole package.",
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0]) //nolint:gosec // path from CLI arg
			if err != nil {
				return fmt.Errorf("reading package: %w", err)
			}

			rs, err := pack.Import(data, customFields)
			if err != nil {
				var ie *pack.IncompatibleError
				if errors.As(err, &ie) {
					return fmt.Errorf("package rejected: %w", ie)
				}
				return err
			}

			s, err := openStore(c.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.SaveRuleset(c.Context(), rs); err != nil {
				return fmt.Errorf("saving imported ruleset: %w", err)
			}
			if activate {
				if err := s.ActivateRuleset(c.Context(), rs.ID); err != nil {
					return fmt.Errorf("activating imported ruleset: %w", err)
				}
			}

			log.Info("package imported", "ruleset", rs.ID, "active", activate)
			fmt.Printf("imported as %s\n", rs.ID)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&customFields, "custom-field", nil,
		"custom field path this system defines (repeatable)")
	cmd.Flags().BoolVar(&activate, "activate", false, "activate the imported ruleset")

	return cmd
}
