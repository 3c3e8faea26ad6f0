package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			log.Info("running migrations", "host", cfg.Database.Host)
			if err := s.Migrate(ctx); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			log.Info("migrations complete")
			return nil
		},
	}
}
