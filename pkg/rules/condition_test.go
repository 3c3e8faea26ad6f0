package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domain "github.com/dealbrain/valuation/pkg/types"
)

func testRecord() *domain.Record {
	return &domain.Record{
		ListingID: "l1",
		Title:     "Dell OptiPlex 7080 Micro",
		BasePrice: 500,
		Condition: "used_working",
		Quantity:  1,
		RAMGB:     16,
		CPU: &domain.CPU{
			Name:         "Intel Core i5-10500T",
			Cores:        6,
			TDPW:         35,
			CPUMarkMulti: 9500,
		},
		Attributes: map[string]any{
			"form_factor": "micro",
			"wifi":        true,
		},
	}
}

func cmp(field string, op domain.Operator, value any) domain.Condition {
	return domain.Condition{Comparison: &domain.Comparison{
		Field: field, Operator: op, Value: value,
	}}
}

func TestEvalCondition_Comparisons(t *testing.T) {
	t.Parallel()

	rec := testRecord()

	tests := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"equals number", cmp("ram_gb", domain.OpEquals, 16), true},
		{"equals numeric string operand", cmp("ram_gb", domain.OpEquals, "16"), true},
		{"equals string case-insensitive", cmp("condition", domain.OpEquals, "USED_WORKING"), true},
		{"not_equals", cmp("condition", domain.OpNotEquals, "new"), true},
		{"greater_than", cmp("cpu.cpu_mark_multi", domain.OpGreaterThan, 9000), true},
		{"greater_than false", cmp("cpu.cpu_mark_multi", domain.OpGreaterThan, 10000), false},
		{"greater_or_equal boundary", cmp("cpu.tdp_w", domain.OpGreaterOrEqual, 35), true},
		{"less_than", cmp("quantity", domain.OpLessThan, 2), true},
		{"less_or_equal", cmp("ram_gb", domain.OpLessOrEqual, 16), true},
		{"contains default case-insensitive", cmp("title", domain.OpContains, "optiplex"), true},
		{"starts_with", cmp("title", domain.OpStartsWith, "dell"), true},
		{"ends_with", cmp("title", domain.OpEndsWith, "micro"), true},
		{"regex_match", cmp("cpu.name", domain.OpRegexMatch, `i5-\d{5}T`), true},
		{"regex invalid pattern never matches", cmp("cpu.name", domain.OpRegexMatch, `i5-(`), false},
		{"in_set", domain.Condition{Comparison: &domain.Comparison{
			Field: "condition", Operator: domain.OpInSet,
			Values: []any{"new", "used_working"},
		}}, true},
		{"in_set miss", domain.Condition{Comparison: &domain.Comparison{
			Field: "condition", Operator: domain.OpInSet,
			Values: []any{"new", "like_new"},
		}}, false},
		{"between inclusive", domain.Condition{Comparison: &domain.Comparison{
			Field: "cpu.tdp_w", Operator: domain.OpBetween,
			Value: 35, UpperValue: 65,
		}}, true},
		{"between outside", domain.Condition{Comparison: &domain.Comparison{
			Field: "cpu.tdp_w", Operator: domain.OpBetween,
			Value: 45, UpperValue: 65,
		}}, false},
		{"dynamic attribute", cmp("form_factor", domain.OpEquals, "micro"), true},
		{"unknown operator never matches", cmp("ram_gb", domain.Operator("matches_vibe"), 16), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, EvalCondition(tt.cond, rec))
		})
	}
}

func TestEvalCondition_CaseSensitivity(t *testing.T) {
	t.Parallel()

	rec := testRecord()

	sensitive := domain.Condition{Comparison: &domain.Comparison{
		Field: "title", Operator: domain.OpContains,
		Value: "optiplex", CaseSensitive: true,
	}}
	assert.False(t, EvalCondition(sensitive, rec))

	sensitive.Comparison.Value = "OptiPlex"
	assert.True(t, EvalCondition(sensitive, rec))
}

func TestEvalCondition_MissingPolicy(t *testing.T) {
	t.Parallel()

	rec := testRecord() // no GPU entity

	tests := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"is_missing matches missing", cmp("gpu.gpu_mark", domain.OpIsMissing, nil), true},
		{"is_missing on present field", cmp("ram_gb", domain.OpIsMissing, nil), false},
		{"equals on missing is false", cmp("gpu.gpu_mark", domain.OpEquals, 1000), false},
		{"greater_than on missing is false", cmp("gpu.gpu_mark", domain.OpGreaterThan, 0), false},
		{"contains on missing is false", cmp("gpu.name", domain.OpContains, "rtx"), false},
		{"not_equals on missing is satisfied", cmp("gpu.gpu_mark", domain.OpNotEquals, 1000), true},
		{"not_equals missing vs null operand", cmp("gpu.gpu_mark", domain.OpNotEquals, nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, EvalCondition(tt.cond, rec))
		})
	}
}

func TestEvalCondition_Groups(t *testing.T) {
	t.Parallel()

	rec := testRecord()

	and := func(children ...domain.Condition) domain.Condition {
		return domain.Condition{Group: &domain.Group{
			Combinator: domain.CombinatorAnd, Children: children,
		}}
	}
	or := func(children ...domain.Condition) domain.Condition {
		return domain.Condition{Group: &domain.Group{
			Combinator: domain.CombinatorOr, Children: children,
		}}
	}

	matchRAM := cmp("ram_gb", domain.OpGreaterOrEqual, 16)
	missGPU := cmp("gpu.gpu_mark", domain.OpGreaterThan, 0)

	assert.True(t, EvalCondition(and(matchRAM, cmp("quantity", domain.OpEquals, 1)), rec))
	assert.False(t, EvalCondition(and(matchRAM, missGPU), rec))
	assert.True(t, EvalCondition(or(missGPU, matchRAM), rec))
	assert.False(t, EvalCondition(or(missGPU, missGPU), rec))

	// Nested: (ram>=16 AND (gpu missing OR cores>4))
	nested := and(matchRAM, or(cmp("gpu.gpu_mark", domain.OpIsMissing, nil),
		cmp("cpu.cores", domain.OpGreaterThan, 4)))
	assert.True(t, EvalCondition(nested, rec))

	// Combinator identities.
	assert.True(t, EvalCondition(and(), rec), "empty AND is vacuously true")
	assert.False(t, EvalCondition(or(), rec), "empty OR is false")

	// Zero condition matches everything.
	assert.True(t, EvalCondition(domain.Condition{}, rec))
}

func TestEvalCondition_Deterministic(t *testing.T) {
	t.Parallel()

	rec := testRecord()
	cond := cmp("title", domain.OpRegexMatch, `(?:OptiPlex|EliteDesk)`)

	first := EvalCondition(cond, rec)
	for range 50 {
		assert.Equal(t, first, EvalCondition(cond, rec))
	}
}
