package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dealbrain/valuation/internal/metrics"
	"github.com/dealbrain/valuation/pkg/formula"
	domain "github.com/dealbrain/valuation/pkg/types"
)

const (
	defaultWorkers = 4
	defaultFloor   = 0.0
)

// CompiledRuleset is an immutable, pre-parsed snapshot of a ruleset: groups
// and rules in final evaluation order, formula actions parsed once. Safe for
// concurrent use across evaluation goroutines.
type CompiledRuleset struct {
	Ruleset  *domain.Ruleset
	groups   []compiledGroup
	warnings []string
}

type compiledGroup struct {
	name     string
	category domain.GroupCategory
	rules    []compiledRule
}

type compiledRule struct {
	rule domain.Rule
	// formulas is parallel to rule.Actions; nil for non-formula actions.
	formulas []*formula.Compiled
	// formulaErrs holds parse failures so they surface per evaluation as
	// zero-delta lines instead of being silently dropped.
	formulaErrs []error
}

// Compile pre-parses a ruleset into evaluation order. Formula parse failures
// and other compile problems become warnings; compilation itself never fails.
func Compile(rs *domain.Ruleset) *CompiledRuleset {
	c := &CompiledRuleset{Ruleset: rs}

	for _, g := range rs.OrderedGroups() {
		cg := compiledGroup{name: g.Name, category: g.Category}
		for _, r := range g.Rules {
			cr := compiledRule{
				rule:        r,
				formulas:    make([]*formula.Compiled, len(r.Actions)),
				formulaErrs: make([]error, len(r.Actions)),
			}
			for i, a := range r.Actions {
				if a.Type != domain.ActionFormula {
					continue
				}
				compiled, err := formula.Parse(a.Expression)
				if err != nil {
					cr.formulaErrs[i] = err
					c.warnings = append(c.warnings, fmt.Sprintf(
						"rule %q action %d: %v", r.Name, i, err,
					))
					continue
				}
				cr.formulas[i] = compiled
			}
			cg.rules = append(cg.rules, cr)
		}
		c.groups = append(c.groups, cg)
	}

	return c
}

// Warnings returns compile-time problems (bad formulas, etc.), one line each.
func (c *CompiledRuleset) Warnings() []string { return c.warnings }

// Evaluator orchestrates rule evaluation. It is stateless per call apart
// from a single-entry compiled-ruleset cache that is replaced wholesale
// whenever a different ruleset version is evaluated.
type Evaluator struct {
	floor      float64
	workers    int
	stepBudget int
	log        *slog.Logger

	mu       sync.Mutex
	cacheKey string
	cache    *CompiledRuleset
}

// NewEvaluator creates an Evaluator with the given options.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		floor:      defaultFloor,
		workers:    defaultWorkers,
		stepBudget: formula.DefaultStepBudget,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithFloor sets the minimum adjusted price. Clamping to the floor is
// recorded as an explicit breakdown line.
func WithFloor(floor float64) Option {
	return func(e *Evaluator) { e.floor = floor }
}

// WithWorkers sets the batch evaluation concurrency.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithStepBudget sets the formula evaluation step budget.
func WithStepBudget(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.stepBudget = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// Evaluate computes the valuation breakdown for a single record against a
// ruleset snapshot.
func (e *Evaluator) Evaluate(rec *domain.Record, rs *domain.Ruleset) *domain.Breakdown {
	return e.evaluateCompiled(rec, e.compiled(rs))
}

// EvaluateBatch evaluates records against one compiled snapshot, sharded
// across workers. Results are positionally identical to sequential Evaluate
// calls; ctx cancellation is honored between records.
func (e *Evaluator) EvaluateBatch(
	ctx context.Context,
	recs []*domain.Record,
	rs *domain.Ruleset,
) ([]*domain.Breakdown, error) {
	compiled := e.compiled(rs)
	results := make([]*domain.Breakdown, len(recs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range recs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.evaluateCompiled(recs[i], compiled)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Evaluator) evaluateCompiled(rec *domain.Record, c *CompiledRuleset) *domain.Breakdown {
	start := time.Now()
	b := &domain.Breakdown{
		ListingID:      rec.ListingID,
		RulesetID:      c.Ruleset.ID,
		RulesetVersion: c.Ruleset.Version,
		BasePrice:      rec.BasePrice,
		EvaluatedAt:    start.UTC(),
	}

	for _, g := range c.groups {
		for _, cr := range g.rules {
			if !cr.rule.Active {
				continue
			}
			if !EvalCondition(cr.rule.Condition, rec) {
				continue
			}
			// Every action of a matched rule contributes independently.
			for i, a := range cr.rule.Actions {
				res := e.executeAction(cr, i, a, rec)
				line := domain.BreakdownLine{
					RuleID:      cr.rule.ID,
					RuleName:    cr.rule.Name,
					GroupName:   g.name,
					Category:    g.category,
					ActionType:  a.Type,
					Delta:       res.Delta,
					Description: res.Description,
				}
				if res.Err != nil {
					line.Delta = 0
					line.Error = res.Err.Error()
				}
				b.Lines = append(b.Lines, line)
			}
		}
	}

	e.finalize(b)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	return b
}

// executeAction routes formula actions through their precompiled expression.
func (e *Evaluator) executeAction(
	cr compiledRule,
	idx int,
	a domain.Action,
	rec *domain.Record,
) ActionResult {
	if a.Type == domain.ActionFormula {
		if err := cr.formulaErrs[idx]; err != nil {
			return ActionResult{Err: err}
		}
		return executeFormula(cr.formulas[idx], rec, e.stepBudget)
	}
	return ExecuteAction(a, rec)
}

func (e *Evaluator) finalize(b *domain.Breakdown) {
	var total, deductions float64
	for _, line := range b.Lines {
		total += line.Delta
		if line.Delta < 0 {
			deductions += line.Delta
		}
	}

	adjusted := b.BasePrice + total
	if adjusted < e.floor {
		clampDelta := e.floor - adjusted
		b.Lines = append(b.Lines, domain.BreakdownLine{
			RuleName:    "price floor",
			ActionType:  domain.ActionFloorClamp,
			Delta:       clampDelta,
			Description: fmt.Sprintf("adjusted price clamped to floor %.2f", e.floor),
		})
		total += clampDelta
		adjusted = e.floor
	}

	b.TotalAdjustment = total
	b.TotalDeductions = deductions
	b.AdjustedPrice = adjusted
}

// compiled returns the cached compilation for rs, replacing the cache when a
// different ruleset version shows up.
func (e *Evaluator) compiled(rs *domain.Ruleset) *CompiledRuleset {
	key := rs.ID + "@" + strconv.Itoa(rs.Version)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cache != nil && e.cacheKey == key {
		return e.cache
	}

	c := Compile(rs)
	for _, w := range c.Warnings() {
		e.log.Warn("ruleset compile warning", "ruleset", rs.Name, "warning", w)
	}
	e.cacheKey = key
	e.cache = c
	return c
}
