// Package rules implements the valuation rule engine: condition evaluation,
// action execution, and the priority-ordered orchestrator that turns a record
// plus a ruleset snapshot into an auditable breakdown.
package rules

import (
	"regexp"
	"strings"
	"sync"

	"github.com/dealbrain/valuation/pkg/record"
	domain "github.com/dealbrain/valuation/pkg/types"
)

// EvalCondition evaluates a condition tree against a record. It is total and
// referentially transparent: it always returns a bool, never panics, and has
// no side effects. A zero condition (neither comparison nor group) matches
// every record.
func EvalCondition(cond domain.Condition, rec *domain.Record) bool {
	switch {
	case cond.Comparison != nil:
		return evalComparison(cond.Comparison, rec)
	case cond.Group != nil:
		return evalGroup(cond.Group, rec)
	default:
		return true
	}
}

func evalGroup(g *domain.Group, rec *domain.Record) bool {
	switch g.Combinator {
	case domain.CombinatorOr:
		for _, child := range g.Children {
			if EvalCondition(child, rec) {
				return true
			}
		}
		// Empty OR is the combinator identity: false.
		return false
	default:
		// AND, including unspecified combinators.
		for _, child := range g.Children {
			if !EvalCondition(child, rec) {
				return false
			}
		}
		// Empty AND is vacuously true.
		return true
	}
}

func evalComparison(c *domain.Comparison, rec *domain.Record) bool {
	lhs := record.Resolve(rec, c.Field)

	if c.Operator == domain.OpIsMissing {
		return lhs.IsMissing()
	}

	if lhs.IsMissing() {
		// not_equals is satisfied by a missing value unless the operand
		// itself denotes missing (JSON null). Every other operator treats
		// Missing as not satisfied.
		return c.Operator == domain.OpNotEquals && c.Value != nil
	}

	switch c.Operator {
	case domain.OpEquals:
		return valuesEqual(lhs, record.FromAny(c.Value), c.CaseSensitive)
	case domain.OpNotEquals:
		return !valuesEqual(lhs, record.FromAny(c.Value), c.CaseSensitive)
	case domain.OpGreaterThan:
		return compareNumeric(lhs, c.Value, func(a, b float64) bool { return a > b })
	case domain.OpGreaterOrEqual:
		return compareNumeric(lhs, c.Value, func(a, b float64) bool { return a >= b })
	case domain.OpLessThan:
		return compareNumeric(lhs, c.Value, func(a, b float64) bool { return a < b })
	case domain.OpLessOrEqual:
		return compareNumeric(lhs, c.Value, func(a, b float64) bool { return a <= b })
	case domain.OpBetween:
		return compareNumeric(lhs, c.Value, func(a, b float64) bool { return a >= b }) &&
			compareNumeric(lhs, c.UpperValue, func(a, b float64) bool { return a <= b })
	case domain.OpContains:
		return compareString(lhs, c.Value, c.CaseSensitive, strings.Contains)
	case domain.OpStartsWith:
		return compareString(lhs, c.Value, c.CaseSensitive, strings.HasPrefix)
	case domain.OpEndsWith:
		return compareString(lhs, c.Value, c.CaseSensitive, strings.HasSuffix)
	case domain.OpRegexMatch:
		return regexMatch(lhs, c.Value, c.CaseSensitive)
	case domain.OpInSet:
		for _, member := range c.Values {
			if valuesEqual(lhs, record.FromAny(member), c.CaseSensitive) {
				return true
			}
		}
		return false
	default:
		// Unknown operators never match; evaluation stays total.
		return false
	}
}

// valuesEqual compares two values, preferring numeric equality when both
// sides coerce, falling back to string comparison.
func valuesEqual(lhs, rhs record.Value, caseSensitive bool) bool {
	if rhs.IsMissing() {
		return false
	}
	if ln, lok := lhs.AsNumber(); lok {
		if rn, rok := rhs.AsNumber(); rok {
			return ln == rn
		}
	}
	ls, lok := lhs.AsString()
	rs, rok := rhs.AsString()
	if !lok || !rok {
		return false
	}
	if caseSensitive {
		return ls == rs
	}
	return strings.EqualFold(ls, rs)
}

func compareNumeric(lhs record.Value, operand any, cmp func(a, b float64) bool) bool {
	ln, ok := lhs.AsNumber()
	if !ok {
		return false
	}
	rn, ok := record.FromAny(operand).AsNumber()
	if !ok {
		return false
	}
	return cmp(ln, rn)
}

func compareString(
	lhs record.Value,
	operand any,
	caseSensitive bool,
	match func(s, substr string) bool,
) bool {
	ls, ok := lhs.AsString()
	if !ok {
		return false
	}
	rs, ok := record.FromAny(operand).AsString()
	if !ok {
		return false
	}
	if !caseSensitive {
		ls = strings.ToLower(ls)
		rs = strings.ToLower(rs)
	}
	return match(ls, rs)
}

// regexCache holds compiled patterns keyed by pattern text and case flag.
// Patterns are content-addressed so the cache never needs invalidation.
var regexCache sync.Map // string -> *regexp.Regexp (nil for invalid patterns)

func regexMatch(lhs record.Value, operand any, caseSensitive bool) bool {
	ls, ok := lhs.AsString()
	if !ok {
		return false
	}
	pattern, ok := record.FromAny(operand).AsString()
	if !ok {
		return false
	}

	key := pattern
	if !caseSensitive {
		key = "(?i)" + pattern
	}

	var re *regexp.Regexp
	if cached, hit := regexCache.Load(key); hit {
		re, _ = cached.(*regexp.Regexp)
	} else {
		compiled, err := regexp.Compile(key)
		if err == nil {
			re = compiled
		}
		regexCache.Store(key, re)
	}
	if re == nil {
		// Invalid patterns never match; totality over correctness here,
		// compile warnings surface the problem once per ruleset.
		return false
	}
	return re.MatchString(ls)
}
