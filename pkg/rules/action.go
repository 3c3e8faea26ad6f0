package rules

import (
	"fmt"

	"github.com/dealbrain/valuation/pkg/formula"
	"github.com/dealbrain/valuation/pkg/record"
	domain "github.com/dealbrain/valuation/pkg/types"
)

// ActionResult is the outcome of executing one action. Err being non-nil
// always implies a zero Delta; execution is total and never panics or aborts
// the pass.
type ActionResult struct {
	Delta       float64
	Description string
	Err         error
}

// ExecuteAction computes the signed currency delta for an action against a
// record. Formula actions parse on every call; the orchestrator uses
// precompiled formulas instead via executeFormula.
func ExecuteAction(a domain.Action, rec *domain.Record) ActionResult {
	switch a.Type {
	case domain.ActionFixedValue:
		return ActionResult{
			Delta:       a.Value,
			Description: fmt.Sprintf("fixed %+.2f", a.Value),
		}

	case domain.ActionPerUnit:
		return executePerUnit(a, rec)

	case domain.ActionMultiplier:
		return executeMultiplier(a, rec)

	case domain.ActionBenchmarkBased:
		return executeBenchmark(a, rec)

	case domain.ActionFormula:
		compiled, err := formula.Parse(a.Expression)
		if err != nil {
			return ActionResult{Err: err}
		}
		return executeFormula(compiled, rec, formula.DefaultStepBudget)

	default:
		return ActionResult{
			Err: fmt.Errorf("unknown action type %q", a.Type),
		}
	}
}

func executePerUnit(a domain.Action, rec *domain.Record) ActionResult {
	// Missing unit fields contribute zero units, not an error: a listing
	// without the attribute simply has none of the unit.
	qty, ok := record.Resolve(rec, a.UnitField).AsNumber()
	if !ok {
		qty = 0
	}
	return ActionResult{
		Delta:       qty * a.Rate,
		Description: fmt.Sprintf("%g %s @ %+.2f/unit", qty, a.UnitField, a.Rate),
	}
}

func executeMultiplier(a domain.Action, rec *domain.Record) ActionResult {
	base, ok := record.Resolve(rec, a.Field).AsNumber()
	if !ok {
		return ActionResult{
			Err: fmt.Errorf("multiplier base %q is missing or not numeric", a.Field),
		}
	}
	return ActionResult{
		Delta:       base * (a.Factor - 1),
		Description: fmt.Sprintf("%g %s x (%.2f - 1)", base, a.Field, a.Factor),
	}
}

func executeBenchmark(a domain.Action, rec *domain.Record) ActionResult {
	val, ok := record.Resolve(rec, a.BenchmarkField).AsNumber()
	if !ok {
		return ActionResult{
			Err: fmt.Errorf("benchmark field %q is missing or not numeric", a.BenchmarkField),
		}
	}
	if len(a.Buckets) == 0 {
		return ActionResult{
			Err: fmt.Errorf("benchmark action on %q has no buckets", a.BenchmarkField),
		}
	}

	// Inclusive-range lookup, last bucket wins ties.
	var match *domain.Bucket
	for i := range a.Buckets {
		b := &a.Buckets[i]
		if val >= b.Min && val <= b.Max {
			match = b
		}
	}

	if match != nil {
		return ActionResult{
			Delta:       val * match.Rate,
			Description: fmt.Sprintf("%g %s @ %+.4f/mark", val, a.BenchmarkField, match.Rate),
		}
	}

	// Outside every bucket: clamp the value to the nearest defined edge and
	// apply that bucket's rate. No extrapolation beyond the defined range.
	clamped, bucket := clampToNearestEdge(val, a.Buckets)
	return ActionResult{
		Delta: clamped * bucket.Rate,
		Description: fmt.Sprintf(
			"%g %s clamped to %g @ %+.4f/mark", val, a.BenchmarkField, clamped, bucket.Rate,
		),
	}
}

func clampToNearestEdge(val float64, buckets []domain.Bucket) (float64, *domain.Bucket) {
	nearest := &buckets[0]
	nearestEdge := buckets[0].Min
	nearestDist := distance(val, buckets[0].Min)

	for i := range buckets {
		b := &buckets[i]
		for _, edge := range [2]float64{b.Min, b.Max} {
			// >= keeps last-bucket-wins on equidistant edges.
			if d := distance(val, edge); nearestDist >= d {
				nearest, nearestEdge, nearestDist = b, edge, d
			}
		}
	}
	return nearestEdge, nearest
}

func distance(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func executeFormula(c *formula.Compiled, rec *domain.Record, budget int) ActionResult {
	val, err := c.EvalBudget(rec, budget)
	if err != nil {
		return ActionResult{Err: err}
	}
	return ActionResult{
		Delta:       val,
		Description: fmt.Sprintf("formula %s = %+.2f", c.Source(), val),
	}
}
