// Package engine runs bulk revaluation: paging stored records through the
// rule evaluator and persisting the resulting breakdowns.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/dealbrain/valuation/internal/metrics"
	"github.com/dealbrain/valuation/internal/store"
	"github.com/dealbrain/valuation/pkg/rules"
	domain "github.com/dealbrain/valuation/pkg/types"
)

const (
	defaultPageSize  = 500
	defaultWriteRate = 200 // breakdown writes per second
)

// Engine orchestrates revaluation runs. Evaluation itself is pure and fast;
// the write limiter keeps breakdown persistence from saturating the database
// during large runs.
type Engine struct {
	store     store.Store
	evaluator *rules.Evaluator
	log       *slog.Logger

	pageSize int
	limiter  *rate.Limiter
}

// NewEngine creates a new Engine with injected dependencies.
func NewEngine(s store.Store, ev *rules.Evaluator, opts ...EngineOption) *Engine {
	eng := &Engine{
		store:     s,
		evaluator: ev,
		log:       slog.Default(),
		pageSize:  defaultPageSize,
		limiter:   rate.NewLimiter(rate.Limit(defaultWriteRate), defaultWriteRate),
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithPageSize sets how many records are loaded and evaluated per batch.
func WithPageSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithWriteRate caps breakdown writes per second.
func WithWriteRate(perSecond int) EngineOption {
	return func(e *Engine) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// RunResult summarizes one revaluation run.
type RunResult struct {
	RulesetID      string
	RulesetVersion int
	Evaluated      int
	Persisted      int
	Failed         int
	Elapsed        time.Duration
}

// RunRevaluation re-evaluates every stored record against the active ruleset
// and persists the breakdowns. Individual persistence failures are logged
// and counted, never fatal; evaluation always reflects a single ruleset
// snapshot even if the active ruleset changes mid-run.
func (eng *Engine) RunRevaluation(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	rs, err := eng.store.GetActiveRuleset(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active ruleset: %w", err)
	}

	res := &RunResult{RulesetID: rs.ID, RulesetVersion: rs.Version}
	eng.log.Info("revaluation starting", "ruleset", rs.Name, "version", rs.Version)

	for offset := 0; ; offset += eng.pageSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := eng.store.ListRecords(ctx, eng.pageSize, offset)
		if err != nil {
			return res, fmt.Errorf("listing records at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		recs := make([]*domain.Record, 0, len(page))
		for i := range page {
			recs = append(recs, &page[i])
		}

		breakdowns, err := eng.evaluator.EvaluateBatch(ctx, recs, rs)
		if err != nil {
			return res, fmt.Errorf("evaluating batch at offset %d: %w", offset, err)
		}
		res.Evaluated += len(breakdowns)
		metrics.EvaluationsTotal.Add(float64(len(breakdowns)))

		for i, b := range breakdowns {
			if err := eng.limiter.Wait(ctx); err != nil {
				return res, err
			}
			if err := eng.store.SaveBreakdown(ctx, page[i].ListingID, b); err != nil {
				eng.log.Error("persisting breakdown failed",
					"listing", page[i].ListingID, "error", err)
				res.Failed++
				metrics.BatchErrorsTotal.Inc()
				continue
			}
			res.Persisted++
			metrics.BatchRecordsTotal.Inc()
			metrics.RuleMatchesTotal.Add(float64(len(b.Lines)))
			for _, line := range b.Lines {
				if line.Error != "" {
					metrics.ActionErrorsTotal.Inc()
				}
			}
		}

		if len(page) < eng.pageSize {
			break
		}
	}

	res.Elapsed = time.Since(start)
	eng.log.Info("revaluation finished",
		"evaluated", res.Evaluated,
		"persisted", res.Persisted,
		"failed", res.Failed,
		"elapsed", res.Elapsed,
	)
	return res, nil
}
