package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealbrain/valuation/internal/engine"
	"github.com/dealbrain/valuation/pkg/logger"
	"github.com/dealbrain/valuation/pkg/rules"
)

func revalueCmd() *cobra.Command {
	var daemon bool

	cmd := &cobra.Command{
		Use:   "revalue",
		Short: "Re-evaluate all listings against the active ruleset",
		Long: "Runs a bulk revaluation and persists the breakdowns. With\n" +
			"--daemon, keeps running and revalues on the configured interval\n" +
			"until interrupted.",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(c.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ev := rules.NewEvaluator(
				rules.WithFloor(cfg.Engine.PriceFloor),
				rules.WithWorkers(cfg.Engine.Workers),
				rules.WithStepBudget(cfg.Engine.FormulaStepBudget),
				rules.WithLogger(logger.Component(log, "evaluator")),
			)
			eng := engine.NewEngine(s, ev,
				engine.WithLogger(logger.Component(log, "engine")),
				engine.WithPageSize(cfg.Engine.PageSize),
				engine.WithWriteRate(cfg.Engine.WriteRate),
			)

			if !daemon {
				res, err := eng.RunRevaluation(c.Context())
				if err != nil {
					return err
				}
				fmt.Printf("revalued %d listings (%d persisted, %d failed) in %s\n",
					res.Evaluated, res.Persisted, res.Failed, res.Elapsed.Round(time.Millisecond))
				return nil
			}

			sched, err := engine.NewScheduler(
				eng,
				cfg.Schedule.RevalueInterval,
				logger.Component(log, "scheduler"),
			)
			if err != nil {
				return fmt.Errorf("creating scheduler: %w", err)
			}

			// Run once up front so a fresh daemon is immediately consistent.
			if _, err := eng.RunRevaluation(c.Context()); err != nil {
				log.Error("initial revaluation failed", "error", err)
			}

			sched.Start()
			log.Info("revaluation daemon running",
				"interval", cfg.Schedule.RevalueInterval)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			<-sched.Stop().Done()
			log.Info("revaluation daemon stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&daemon, "daemon", false, "keep running on the configured schedule")

	return cmd
}
