package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Combinator joins child conditions in a group.
type Combinator string

// Combinator constants.
const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// Operator is a comparison operator.
type Operator string

// Operator constants. This set is exhaustive; the condition evaluator treats
// anything else as non-matching.
const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessThan       Operator = "less_than"
	OpLessOrEqual    Operator = "less_or_equal"
	OpBetween        Operator = "between"
	OpContains       Operator = "contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
	OpRegexMatch     Operator = "regex_match"
	OpInSet          Operator = "in_set"
	OpIsMissing      Operator = "is_missing"
)

// Condition is a tagged variant: exactly one of Comparison or Group is set.
// Groups nest arbitrarily.
type Condition struct {
	Comparison *Comparison `json:"comparison,omitempty"`
	Group      *Group      `json:"group,omitempty"`
}

// Comparison tests a single field against an operand.
type Comparison struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	// Value is the primary operand. Nil denotes "missing" for equality
	// operators and is ignored by is_missing.
	Value any `json:"value,omitempty"`
	// UpperValue is the inclusive upper bound for between.
	UpperValue any `json:"upper_value,omitempty"`
	// Values is the operand set for in_set.
	Values []any `json:"values,omitempty"`
	// CaseSensitive applies to string operators. Default is case-insensitive.
	CaseSensitive bool `json:"case_sensitive,omitempty"`
}

// Group combines child conditions with a boolean combinator.
type Group struct {
	Combinator Combinator  `json:"combinator"`
	Children   []Condition `json:"children"`
}

// ActionType discriminates the Action variant.
type ActionType string

// Action type constants.
const (
	ActionFixedValue     ActionType = "fixed_value"
	ActionPerUnit        ActionType = "per_unit"
	ActionMultiplier     ActionType = "multiplier"
	ActionBenchmarkBased ActionType = "benchmark_based"
	ActionFormula        ActionType = "formula"

	// ActionFloorClamp marks the synthetic breakdown line recording a
	// price-floor clamp. It is never configured on a rule.
	ActionFloorClamp ActionType = "floor_clamp"
)

// Action computes a signed currency delta when its rule matches.
// Negative deltas are deductions, positive deltas are premiums.
type Action struct {
	Type  ActionType `json:"type"`
	Label string     `json:"label,omitempty"`

	// fixed_value
	Value float64 `json:"value,omitempty"`

	// per_unit: delta = resolved(UnitField) * Rate, Missing resolves to 0.
	UnitField string  `json:"unit_field,omitempty"`
	Rate      float64 `json:"rate,omitempty"`

	// multiplier: delta = resolved(Field) * (Factor - 1).
	Field  string  `json:"field,omitempty"`
	Factor float64 `json:"factor,omitempty"`

	// benchmark_based: delta = resolved(BenchmarkField) * bucket rate.
	BenchmarkField string   `json:"benchmark_field,omitempty"`
	Buckets        []Bucket `json:"buckets,omitempty"`

	// formula
	Expression string `json:"expression,omitempty"`
}

// Bucket maps an inclusive value range to a per-unit rate.
type Bucket struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Rate float64 `json:"rate"`
}

// GroupCategory fixes evaluation precedence across rule groups.
type GroupCategory string

// Group categories, in evaluation order.
const (
	CategoryBaseline GroupCategory = "baseline"
	CategoryBasic    GroupCategory = "basic"
	CategoryAdvanced GroupCategory = "advanced"
)

// CategoryRank returns the evaluation precedence of a category.
// Unknown categories sort last.
func CategoryRank(c GroupCategory) int {
	switch c {
	case CategoryBaseline:
		return 0
	case CategoryBasic:
		return 1
	case CategoryAdvanced:
		return 2
	default:
		return 3
	}
}

// Rule is an ordered condition/actions pair within a group.
type Rule struct {
	ID              string    `json:"id"              db:"id"`
	Name            string    `json:"name"            db:"name"`
	EvaluationOrder int       `json:"evaluation_order" db:"evaluation_order"`
	Active          bool      `json:"active"          db:"active"`
	Condition       Condition `json:"condition"`
	Actions         []Action  `json:"actions"`
}

// RuleGroup is a named, ordered collection of rules.
type RuleGroup struct {
	ID         string        `json:"id"          db:"id"`
	Name       string        `json:"name"        db:"name"`
	Category   GroupCategory `json:"category"    db:"category"`
	GroupOrder int           `json:"group_order" db:"group_order"`
	ReadOnly   bool          `json:"read_only"   db:"read_only"`
	Rules      []Rule        `json:"rules"`
}

// Ruleset is a versioned container of rule groups. Published rulesets are
// immutable; edits always materialize a new version.
type Ruleset struct {
	ID             string      `json:"id"              db:"id"`
	Name           string      `json:"name"            db:"name"`
	Version        int         `json:"version"         db:"version"`
	Active         bool        `json:"active"          db:"active"`
	SystemBaseline bool        `json:"system_baseline" db:"system_baseline"`
	ContentHash    string      `json:"content_hash"    db:"content_hash"`
	Groups         []RuleGroup `json:"groups"`
	// SourceDocument is the normalized baseline document this ruleset was
	// materialized from, kept for field-granular diffing. Empty for
	// imported or hand-built rulesets.
	SourceDocument json.RawMessage `json:"source_document,omitempty" db:"source_document"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
}

// OrderedGroups returns the groups in deterministic evaluation order:
// category precedence first, then group_order, then id.
func (rs *Ruleset) OrderedGroups() []RuleGroup {
	groups := slices.Clone(rs.Groups)
	slices.SortStableFunc(groups, func(a, b RuleGroup) int {
		if r := CategoryRank(a.Category) - CategoryRank(b.Category); r != 0 {
			return r
		}
		if a.GroupOrder != b.GroupOrder {
			return a.GroupOrder - b.GroupOrder
		}
		return strings.Compare(a.ID, b.ID)
	})
	for i := range groups {
		groups[i].Rules = groups[i].OrderedRules()
	}
	return groups
}

// OrderedRules returns the group's rules sorted by evaluation_order,
// ties broken by rule id.
func (g *RuleGroup) OrderedRules() []Rule {
	rules := slices.Clone(g.Rules)
	slices.SortStableFunc(rules, func(a, b Rule) int {
		if a.EvaluationOrder != b.EvaluationOrder {
			return a.EvaluationOrder - b.EvaluationOrder
		}
		return strings.Compare(a.ID, b.ID)
	})
	return rules
}

// Fingerprint returns the hex sha256 of v's canonical JSON encoding.
// Used for content-hash idempotence and package addressing.
func Fingerprint(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only unmarshalable types can fail here; domain types never do.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
