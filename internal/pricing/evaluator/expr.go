package evaluator

import (
	"errors"
	"fmt"

	"github.com/casbin/govaluate"
	"github.com/shopspring/decimal"
)

// maxExponent bounds `**` so a single formula cannot stall a request.
const maxExponent = 64

var (
	errNotNumeric   = errors.New("not numeric")
	errDivideByZero = errors.New("division by zero")
	errExponent     = fmt.Errorf("exponent must be an integer between -%d and %d", maxExponent, maxExponent)
)

// node is one step of a formula evaluated in exact decimal arithmetic.
// govaluate lexes and syntax-checks the text; its float64 evaluator is
// never used, so money never passes through a float.
type node interface {
	eval(vars map[string]decimal.Decimal) (decimal.Decimal, error)
}

type literal decimal.Decimal

func (n literal) eval(map[string]decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Decimal(n), nil
}

type variable string

func (n variable) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, ok := vars[string(n)]
	if !ok {
		return decimal.Zero, fmt.Errorf("unresolved %q", string(n))
	}
	return v, nil
}

type negate struct{ x node }

func (n negate) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, err := n.x.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

type binary struct {
	op          string
	left, right node
}

func (n binary) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}

	switch n.op {
	case "+":
		return l.Add(r), nil
	case "-":
		return l.Sub(r), nil
	case "*":
		return l.Mul(r), nil
	case "/":
		if r.IsZero() {
			return decimal.Zero, errDivideByZero
		}
		return l.Div(r), nil
	case "%":
		if r.IsZero() {
			return decimal.Zero, errDivideByZero
		}
		return l.Mod(r), nil
	case "**":
		if !r.IsInteger() || r.Abs().GreaterThan(decimal.NewFromInt(maxExponent)) {
			return decimal.Zero, errExponent
		}
		if l.IsZero() && r.Sign() <= 0 {
			return decimal.Zero, errDivideByZero
		}
		return l.PowInt32(int32(r.IntPart()))
	default:
		return decimal.Zero, fmt.Errorf("operator %q: %w", n.op, errNotNumeric)
	}
}

type call struct {
	fn   govaluate.ExpressionFunction
	args []node
}

func (n call) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	args := make([]any, 0, len(n.args))
	for _, arg := range n.args {
		v, err := arg.eval(vars)
		if err != nil {
			return decimal.Zero, err
		}
		args = append(args, v)
	}
	out, err := n.fn(args...)
	if err != nil {
		return decimal.Zero, err
	}
	d, ok := out.(decimal.Decimal)
	if !ok {
		return decimal.Zero, errNotNumeric
	}
	return d, nil
}

// build turns govaluate's token stream into a decimal expression tree.
// Precedence follows govaluate: additive, multiplicative, `**`, then
// prefix negation. Comparisons, logic, strings and bitwise operators
// cannot yield an amount and are rejected with errNotNumeric.
func build(tokens []govaluate.ExpressionToken) (node, error) {
	p := &parser{tokens: tokens}
	root, err := p.additive()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected %v: %w", p.tokens[p.pos].Value, errNotNumeric)
	}
	return root, nil
}

type parser struct {
	tokens []govaluate.ExpressionToken
	pos    int
}

func (p *parser) peek() (govaluate.ExpressionToken, bool) {
	if p.pos >= len(p.tokens) {
		return govaluate.ExpressionToken{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) modifier(ops ...string) (string, bool) {
	tok, ok := p.peek()
	if !ok || tok.Kind != govaluate.MODIFIER {
		return "", false
	}
	op, _ := tok.Value.(string)
	for _, want := range ops {
		if op == want {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) expect(kind govaluate.TokenKind) error {
	tok, ok := p.peek()
	if !ok || tok.Kind != kind {
		return fmt.Errorf("expected %s: %w", kind, errNotNumeric)
	}
	p.pos++
	return nil
}

func (p *parser) additive() (node, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.modifier("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

func (p *parser) multiplicative() (node, error) {
	left, err := p.exponential()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.modifier("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.exponential()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

func (p *parser) exponential() (node, error) {
	base, err := p.prefix()
	if err != nil {
		return nil, err
	}
	if _, ok := p.modifier("**"); !ok {
		return base, nil
	}
	exp, err := p.exponential()
	if err != nil {
		return nil, err
	}
	return binary{op: "**", left: base, right: exp}, nil
}

func (p *parser) prefix() (node, error) {
	tok, ok := p.peek()
	if ok && tok.Kind == govaluate.PREFIX {
		if tok.Value != "-" {
			return nil, fmt.Errorf("prefix %v: %w", tok.Value, errNotNumeric)
		}
		p.pos++
		x, err := p.prefix()
		if err != nil {
			return nil, err
		}
		return negate{x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end: %w", errNotNumeric)
	}
	p.pos++

	switch tok.Kind {
	case govaluate.NUMERIC:
		f, _ := tok.Value.(float64)
		return literal(decimal.NewFromFloat(f)), nil
	case govaluate.VARIABLE:
		name, _ := tok.Value.(string)
		return variable(name), nil
	case govaluate.CLAUSE:
		inner, err := p.additive()
		if err != nil {
			return nil, err
		}
		if err := p.expect(govaluate.CLAUSE_CLOSE); err != nil {
			return nil, err
		}
		return inner, nil
	case govaluate.FUNCTION:
		fn, _ := tok.Value.(govaluate.ExpressionFunction)
		if err := p.expect(govaluate.CLAUSE); err != nil {
			return nil, err
		}
		c := call{fn: fn}
		if next, ok := p.peek(); ok && next.Kind == govaluate.CLAUSE_CLOSE {
			p.pos++
			return c, nil
		}
		for {
			arg, err := p.additive()
			if err != nil {
				return nil, err
			}
			c.args = append(c.args, arg)
			next, ok := p.peek()
			if ok && next.Kind == govaluate.SEPARATOR {
				p.pos++
				continue
			}
			if err := p.expect(govaluate.CLAUSE_CLOSE); err != nil {
				return nil, err
			}
			return c, nil
		}
	default:
		return nil, fmt.Errorf("%s: %w", tok.Kind, errNotNumeric)
	}
}
