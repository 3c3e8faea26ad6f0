package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// AST node variants. The set is closed; the evaluator does a structural
// switch over exactly these types.
type node interface{ isNode() }

type numberNode struct {
	val float64
}

type refNode struct {
	path string
}

type unaryNode struct {
	operand node
}

type binaryNode struct {
	op    byte // '+', '-', '*', '/'
	left  node
	right node
}

type callNode struct {
	fn   string
	args []node
}

func (numberNode) isNode() {}
func (refNode) isNode()    {}
func (unaryNode) isNode()  {}
func (binaryNode) isNode() {}
func (callNode) isNode()   {}

// Operator characters recognized well enough to report as unsupported
// rather than as a bare syntax error.
const unsupportedOps = "%^!&|<>=~?"

type parser struct {
	input string
	pos   int
	depth int
}

func (p *parser) parse() (node, error) {
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		if c, _ := p.peek(); strings.IndexByte(unsupportedOps, c) >= 0 {
			return nil, p.failHere(
				KindUnsupportedOperator,
				fmt.Sprintf("operator %q is not part of the formula grammar", string(c)),
			)
		}
		return nil, p.failHere(KindSyntax, "unexpected trailing input")
	}
	return n, nil
}

// expr := term (('+'|'-') term)*
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

// term := unary (('*'|'/') unary)*
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

// unary := '-' unary | primary
func (p *parser) parseUnary() (node, error) {
	p.skipSpace()
	if c, ok := p.peek(); ok && c == '-' {
		p.pos++
		if err := p.enter(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		p.depth--
		if err != nil {
			return nil, err
		}
		return unaryNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

// primary := number | ident ('(' args ')')? | '(' expr ')'
func (p *parser) parsePrimary() (node, error) {
	p.skipSpace()
	c, ok := p.peek()
	if !ok {
		return nil, p.failHere(KindSyntax, "unexpected end of expression")
	}

	switch {
	case c == '(':
		p.pos++
		if err := p.enter(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		p.depth--
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return inner, nil

	case c >= '0' && c <= '9', c == '.':
		return p.parseNumber()

	case isIdentStart(c):
		return p.parseIdent()

	case strings.IndexByte(unsupportedOps, c) >= 0:
		return nil, p.failHere(
			KindUnsupportedOperator,
			fmt.Sprintf("operator %q is not part of the formula grammar", string(c)),
		)

	default:
		return nil, p.failHere(KindSyntax, fmt.Sprintf("unexpected character %q", string(c)))
	}
}

func (p *parser) parseNumber() (node, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	val, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, &Error{Kind: KindSyntax, Pos: start, Msg: "malformed number literal"}
	}
	return numberNode{val: val}, nil
}

func (p *parser) parseIdent() (node, error) {
	start := p.pos
	for p.pos < len(p.input) && isIdentPart(p.input[p.pos]) {
		p.pos++
	}
	ident := p.input[start:p.pos]

	p.skipSpace()
	if c, ok := p.peek(); ok && c == '(' {
		if strings.Contains(ident, ".") {
			return nil, &Error{
				Kind: KindSyntax,
				Pos:  start,
				Msg:  fmt.Sprintf("field reference %q cannot be called", ident),
			}
		}
		if _, ok := functions[ident]; !ok {
			return nil, &Error{
				Kind: KindUnsupportedOperator,
				Pos:  start,
				Msg:  fmt.Sprintf("function %q is not in the whitelist", ident),
			}
		}
		p.pos++ // consume '('
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if err := checkArity(ident, len(args), start); err != nil {
			return nil, err
		}
		return callNode{fn: ident, args: args}, nil
	}

	return refNode{path: ident}, nil
}

func (p *parser) parseArgs() ([]node, error) {
	var args []node

	p.skipSpace()
	if c, ok := p.peek(); ok && c == ')' {
		p.pos++
		return args, nil
	}

	for {
		if err := p.enter(); err != nil {
			return nil, err
		}
		arg, err := p.parseExpr()
		p.depth--
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return nil, p.failHere(KindSyntax, "unterminated argument list")
		}
		switch c {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return args, nil
		default:
			return nil, p.failHere(KindSyntax, "expected ',' or ')' in argument list")
		}
	}
}

func checkArity(fn string, got, pos int) error {
	want := functions[fn]
	if want.variadic {
		if got < want.arity {
			return &Error{
				Kind: KindSyntax,
				Pos:  pos,
				Msg:  fmt.Sprintf("%s expects at least %d arguments, got %d", fn, want.arity, got),
			}
		}
		return nil
	}
	if got != want.arity {
		return &Error{
			Kind: KindSyntax,
			Pos:  pos,
			Msg:  fmt.Sprintf("%s expects %d arguments, got %d", fn, want.arity, got),
		}
	}
	return nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxNestingDepth {
		return &Error{
			Kind: KindStepBudgetExceeded,
			Pos:  p.pos,
			Msg:  fmt.Sprintf("nesting exceeds %d levels", maxNestingDepth),
		}
	}
	return nil
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	got, ok := p.peek()
	if !ok || got != c {
		return p.failHere(KindSyntax, fmt.Sprintf("expected %q", string(c)))
	}
	p.pos++
	return nil
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) failHere(kind ErrorKind, msg string) error {
	return &Error{Kind: kind, Pos: p.pos, Msg: msg}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '.' || (c >= '0' && c <= '9')
}
