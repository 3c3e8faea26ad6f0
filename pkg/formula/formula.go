// Package formula implements the restricted arithmetic expression language
// used by formula actions: + - * /, parentheses, numeric literals, dotted
// field references, and a whitelist of pure functions (min, max, round, abs,
// clamp).
//
// The interpreter is a hand-rolled recursive-descent parser plus a
// tree-walking evaluator over a closed grammar. It has no host execution
// primitive to reach: there is no eval, no reflection, no dynamic dispatch
// beyond the function whitelist, and both parsing and evaluation run under a
// hard step budget so adversarial inputs terminate with a typed error.
package formula

import (
	"fmt"

	domain "github.com/dealbrain/valuation/pkg/types"
)

// ErrorKind classifies formula failures.
type ErrorKind string

// Error kinds.
const (
	KindSyntax              ErrorKind = "syntax"
	KindUnknownReference    ErrorKind = "unknown_reference"
	KindUnsupportedOperator ErrorKind = "unsupported_operator"
	KindDivisionByZero      ErrorKind = "division_by_zero"
	KindStepBudgetExceeded  ErrorKind = "step_budget_exceeded"
)

// Error is a typed formula failure. Action execution converts it into a
// zero-delta breakdown line; it never aborts an evaluation pass.
type Error struct {
	Kind ErrorKind
	Pos  int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("formula: %s at position %d: %s", e.Kind, e.Pos, e.Msg)
}

// Limits guarding parse and evaluation. Inputs beyond these fail with a
// typed error rather than consuming unbounded time or stack.
const (
	// DefaultStepBudget bounds evaluation steps (one per AST node visit).
	DefaultStepBudget = 10_000
	maxExpressionLen  = 4096
	maxNestingDepth   = 64
)

// Compiled is a parsed, reusable expression.
type Compiled struct {
	src  string
	root node
	refs []string
}

// Parse compiles an expression. The returned Compiled is immutable and safe
// for concurrent use.
func Parse(input string) (*Compiled, error) {
	if len(input) > maxExpressionLen {
		return nil, &Error{
			Kind: KindStepBudgetExceeded,
			Msg:  fmt.Sprintf("expression exceeds %d bytes", maxExpressionLen),
		}
	}

	p := &parser{input: input}
	root, err := p.parse()
	if err != nil {
		return nil, err
	}

	c := &Compiled{src: input, root: root}
	collectRefs(root, &c.refs)
	return c, nil
}

// Evaluate parses and evaluates in one call, with the default step budget.
func Evaluate(input string, rec *domain.Record) (float64, error) {
	c, err := Parse(input)
	if err != nil {
		return 0, err
	}
	return c.Eval(rec)
}

// Eval evaluates the compiled expression against a record with the default
// step budget.
func (c *Compiled) Eval(rec *domain.Record) (float64, error) {
	return c.EvalBudget(rec, DefaultStepBudget)
}

// EvalBudget evaluates with an explicit step budget.
func (c *Compiled) EvalBudget(rec *domain.Record, budget int) (float64, error) {
	ev := &evaluator{rec: rec, steps: budget}
	return ev.eval(c.root)
}

// References returns every field path the expression reads, in first-use
// order. Used to declare package dependencies.
func (c *Compiled) References() []string {
	return c.refs
}

// Source returns the original expression text.
func (c *Compiled) Source() string { return c.src }

func collectRefs(n node, out *[]string) {
	switch v := n.(type) {
	case refNode:
		for _, seen := range *out {
			if seen == v.path {
				return
			}
		}
		*out = append(*out, v.path)
	case unaryNode:
		collectRefs(v.operand, out)
	case binaryNode:
		collectRefs(v.left, out)
		collectRefs(v.right, out)
	case callNode:
		for _, arg := range v.args {
			collectRefs(arg, out)
		}
	}
}
