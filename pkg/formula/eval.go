package formula

import (
	"fmt"
	"math"

	"github.com/dealbrain/valuation/pkg/record"
	domain "github.com/dealbrain/valuation/pkg/types"
)

// fnSpec describes a whitelisted function. All functions are pure float
// operations; nothing here can touch the host environment.
type fnSpec struct {
	arity    int
	variadic bool
}

var functions = map[string]fnSpec{
	"min":   {arity: 2, variadic: true},
	"max":   {arity: 2, variadic: true},
	"round": {arity: 1},
	"abs":   {arity: 1},
	"clamp": {arity: 3},
}

type evaluator struct {
	rec   *domain.Record
	steps int
}

func (ev *evaluator) eval(n node) (float64, error) {
	ev.steps--
	if ev.steps < 0 {
		return 0, &Error{Kind: KindStepBudgetExceeded, Msg: "evaluation step budget exhausted"}
	}

	switch v := n.(type) {
	case numberNode:
		return v.val, nil

	case refNode:
		val := record.Resolve(ev.rec, v.path)
		num, ok := val.AsNumber()
		if !ok {
			return 0, &Error{
				Kind: KindUnknownReference,
				Msg:  fmt.Sprintf("field %q is missing or not numeric", v.path),
			}
		}
		return num, nil

	case unaryNode:
		operand, err := ev.eval(v.operand)
		if err != nil {
			return 0, err
		}
		return -operand, nil

	case binaryNode:
		left, err := ev.eval(v.left)
		if err != nil {
			return 0, err
		}
		right, err := ev.eval(v.right)
		if err != nil {
			return 0, err
		}
		switch v.op {
		case '+':
			return left + right, nil
		case '-':
			return left - right, nil
		case '*':
			return left * right, nil
		case '/':
			if right == 0 {
				return 0, &Error{Kind: KindDivisionByZero, Msg: "division by zero"}
			}
			return left / right, nil
		default:
			return 0, &Error{
				Kind: KindUnsupportedOperator,
				Msg:  fmt.Sprintf("operator %q", string(v.op)),
			}
		}

	case callNode:
		args := make([]float64, len(v.args))
		for i, argNode := range v.args {
			arg, err := ev.eval(argNode)
			if err != nil {
				return 0, err
			}
			args[i] = arg
		}
		return applyFn(v.fn, args), nil

	default:
		return 0, &Error{Kind: KindSyntax, Msg: "malformed expression tree"}
	}
}

func applyFn(fn string, args []float64) float64 {
	switch fn {
	case "min":
		out := args[0]
		for _, a := range args[1:] {
			out = math.Min(out, a)
		}
		return out
	case "max":
		out := args[0]
		for _, a := range args[1:] {
			out = math.Max(out, a)
		}
		return out
	case "round":
		return math.Round(args[0])
	case "abs":
		return math.Abs(args[0])
	case "clamp":
		lo, hi := args[1], args[2]
		if lo > hi {
			lo, hi = hi, lo
		}
		return math.Min(math.Max(args[0], lo), hi)
	default:
		// Unreachable: the parser rejects non-whitelisted functions.
		return 0
	}
}
