package formula

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/dealbrain/valuation/pkg/types"
)

func testRecord() *domain.Record {
	return &domain.Record{
		BasePrice: 500,
		RAMGB:     16,
		Quantity:  2,
		CPU:       &domain.CPU{CPUMarkMulti: 9500, Cores: 6},
		Attributes: map[string]any{
			"psu_watts": 90,
			"shipping":  "12.50",
		},
	}
}

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	var fe *Error
	require.ErrorAs(t, err, &fe)
	return fe.Kind
}

func TestEvaluate_Arithmetic(t *testing.T) {
	t.Parallel()

	rec := testRecord()

	tests := []struct {
		expr string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"-4 + 10", 6},
		{"10 / 4", 2.5},
		{"2 - -3", 5},
		{"ram_gb * -2", -32},
		{"base_price * 0.1", 50},
		{"cpu.cpu_mark_multi / 1000", 9.5},
		{"psu_watts + 10", 100},
		{"shipping * 2", 25}, // numeric string attribute coerces
		{"min(ram_gb, 8)", 8},
		{"max(1, 2, 3)", 3},
		{"round(2.5)", 3},
		{"abs(0 - 7)", 7},
		{"clamp(cpu.cpu_mark_multi, 0, 5000)", 5000},
		{"clamp(3, 10, 0)", 3}, // bounds normalize
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			got, err := Evaluate(tt.expr, rec)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluate_TypedErrors(t *testing.T) {
	t.Parallel()

	rec := testRecord()

	tests := []struct {
		name string
		expr string
		kind ErrorKind
	}{
		{"dangling operator", "1 +", KindSyntax},
		{"unbalanced paren", "(1 + 2", KindSyntax},
		{"trailing garbage", "1 + 2 )", KindSyntax},
		{"empty", "", KindSyntax},
		{"bad number", "1.2.3", KindSyntax},
		{"missing field", "gpu.gpu_mark + 1", KindUnknownReference},
		{"unknown attribute", "no_such_field * 2", KindUnknownReference},
		{"non-numeric field", "title + 1", KindUnknownReference},
		{"modulo", "10 % 3", KindUnsupportedOperator},
		{"exponent", "2 ^ 10", KindUnsupportedOperator},
		{"comparison", "1 < 2", KindUnsupportedOperator},
		{"unknown function", "pow(2, 10)", KindUnsupportedOperator},
		{"division by zero", "1 / 0", KindDivisionByZero},
		{"division by zero field", "ram_gb / (quantity - 2)", KindDivisionByZero},
		{"wrong arity", "abs(1, 2)", KindSyntax},
		{"min needs two", "min(1)", KindSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Evaluate(tt.expr, rec)
			require.Error(t, err)
			assert.Equal(t, tt.kind, kindOf(t, err))
		})
	}
}

// Adversarial corpus: inputs that attempt to escape the grammar or exhaust
// the interpreter must all fail with a typed error, never panic or hang.
func TestEvaluate_AdversarialInputs(t *testing.T) {
	t.Parallel()

	rec := testRecord()

	tests := []struct {
		name string
		expr string
	}{
		{"import attempt", `__import__("os")`},
		{"exec attempt", `exec(1)`},
		{"method call", `base_price.__class__()`},
		{"statement injection", `1; 2`},
		{"string literal", `"rm -rf" + 1`},
		{"backtick", "`id`"},
		{"index access", "attributes[0]"},
		{"deep nesting", strings.Repeat("(", 500) + "1" + strings.Repeat(")", 500)},
		{"deep unary", strings.Repeat("-", 500) + "1"},
		{"huge input", "1" + strings.Repeat("+1", 5000)},
		{"long identifier", strings.Repeat("a", 5000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Evaluate(tt.expr, rec)
			require.Error(t, err)
			var fe *Error
			assert.True(t, errors.As(err, &fe), "error must be a typed *Error, got %T", err)
		})
	}
}

func TestEvalBudget_Exhaustion(t *testing.T) {
	t.Parallel()

	c, err := Parse("1 + 2 + 3 + 4 + 5")
	require.NoError(t, err)

	_, err = c.EvalBudget(testRecord(), 3)
	require.Error(t, err)
	assert.Equal(t, KindStepBudgetExceeded, kindOf(t, err))

	got, err := c.EvalBudget(testRecord(), 100)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got)
}

func TestParse_References(t *testing.T) {
	t.Parallel()

	c, err := Parse("ram_gb * 2 + min(cpu.cpu_mark_multi, ram_gb) - psu_watts")
	require.NoError(t, err)
	assert.Equal(t, []string{"ram_gb", "cpu.cpu_mark_multi", "psu_watts"}, c.References())
}

func TestCompiled_ConcurrentEval(t *testing.T) {
	t.Parallel()

	c, err := Parse("base_price * 0.9 + ram_gb")
	require.NoError(t, err)

	rec := testRecord()
	done := make(chan struct{})
	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			for range 100 {
				got, evalErr := c.Eval(rec)
				assert.NoError(t, evalErr)
				assert.Equal(t, 466.0, got)
			}
		}()
	}
	for range 8 {
		<-done
	}
}
