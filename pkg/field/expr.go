package field

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/matzehuels/quadmesh/pkg/errors"
)

// evalFunc is a compiled expression.
type evalFunc func(x, y, z float64) float64

// =============================================================================
// Lexer
// =============================================================================

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c >= '0' && c <= '9' || c == '.':
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && isDigit(src[j]) {
					i = j
					for i < len(src) && isDigit(src[i]) {
						i++
					}
				}
			}
			v, err := strconv.ParseFloat(src[start:i], 64)
			if err != nil {
				return nil, errors.Expression(start, "malformed number %q", src[start:i])
			}
			toks = append(toks, token{kind: tokNum, num: v, text: src[start:i], pos: start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(src) && (isIdent(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		case strings.ContainsRune("+-*/^", c):
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		default:
			return nil, errors.Expression(i, "unexpected character %q", c)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isIdent(b byte) bool {
	return b == '_' || isDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// =============================================================================
// Parser
// =============================================================================

// node is a compiled subexpression. Constant nodes are folded at compile
// time.
type node struct {
	fn    evalFunc
	konst bool
	val   float64
}

func constant(v float64) node {
	return node{fn: func(_, _, _ float64) float64 { return v }, konst: true, val: v}
}

// fold evaluates n when every input is constant.
func fold(n node, inputs ...node) node {
	for _, in := range inputs {
		if !in.konst {
			return n
		}
	}
	return constant(n.fn(0, 0, 0))
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// compile parses src with the grammar
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = [ "-" | "+" ] unary | power
//	power   = primary [ "^" unary ]
//	primary = number | name | name "(" expr { "," expr } ")" | "(" expr ")"
func compile(src string) (evalFunc, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, errors.Expression(t.pos, "unexpected %q", t.text)
	}
	return n.fn, nil
}

func (p *parser) expr() (node, error) {
	lhs, err := p.term()
	if err != nil {
		return node{}, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return lhs, nil
		}
		p.next()
		rhs, err := p.term()
		if err != nil {
			return node{}, err
		}
		l, r := lhs.fn, rhs.fn
		var n node
		if t.text == "+" {
			n = node{fn: func(x, y, z float64) float64 { return l(x, y, z) + r(x, y, z) }}
		} else {
			n = node{fn: func(x, y, z float64) float64 { return l(x, y, z) - r(x, y, z) }}
		}
		lhs = fold(n, lhs, rhs)
	}
}

func (p *parser) term() (node, error) {
	lhs, err := p.unary()
	if err != nil {
		return node{}, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return lhs, nil
		}
		p.next()
		rhs, err := p.unary()
		if err != nil {
			return node{}, err
		}
		l, r := lhs.fn, rhs.fn
		var n node
		if t.text == "*" {
			n = node{fn: func(x, y, z float64) float64 { return l(x, y, z) * r(x, y, z) }}
		} else {
			n = node{fn: func(x, y, z float64) float64 { return l(x, y, z) / r(x, y, z) }}
		}
		lhs = fold(n, lhs, rhs)
	}
}

func (p *parser) unary() (node, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		operand, err := p.unary()
		if err != nil {
			return node{}, err
		}
		if t.text == "+" {
			return operand, nil
		}
		f := operand.fn
		return fold(node{fn: func(x, y, z float64) float64 { return -f(x, y, z) }}, operand), nil
	}
	return p.power()
}

func (p *parser) power() (node, error) {
	base, err := p.primary()
	if err != nil {
		return node{}, err
	}
	t := p.peek()
	if t.kind != tokOp || t.text != "^" {
		return base, nil
	}
	p.next()
	exp, err := p.unary()
	if err != nil {
		return node{}, err
	}
	b, e := base.fn, exp.fn
	if exp.konst && exp.val == 2 {
		return fold(node{fn: func(x, y, z float64) float64 { v := b(x, y, z); return v * v }}, base), nil
	}
	return fold(node{fn: func(x, y, z float64) float64 { return math.Pow(b(x, y, z), e(x, y, z)) }}, base, exp), nil
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return constant(t.num), nil
	case tokLParen:
		n, err := p.expr()
		if err != nil {
			return node{}, err
		}
		if c := p.next(); c.kind != tokRParen {
			return node{}, errors.Expression(c.pos, "expected )")
		}
		return n, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.call(t)
		}
		return variable(t)
	case tokEOF:
		return node{}, errors.Expression(t.pos, "unexpected end of expression")
	}
	return node{}, errors.Expression(t.pos, "unexpected %q", t.text)
}

func variable(t token) (node, error) {
	switch t.text {
	case "x", "X":
		return node{fn: func(x, _, _ float64) float64 { return x }}, nil
	case "y", "Y":
		return node{fn: func(_, y, _ float64) float64 { return y }}, nil
	case "z", "Z":
		return node{fn: func(_, _, z float64) float64 { return z }}, nil
	case "Pi", "pi", "PI":
		return constant(math.Pi), nil
	}
	return node{}, errors.Expression(t.pos, "unknown variable %q", t.text)
}

var unaryFuncs = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"exp":   math.Exp,
	"log":   math.Log,
	"log10": math.Log10,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"asin":  math.Asin,
	"acos":  math.Acos,
	"atan":  math.Atan,
	"sinh":  math.Sinh,
	"cosh":  math.Cosh,
	"tanh":  math.Tanh,
	"abs":   math.Abs,
	"fabs":  math.Abs,
	"floor": math.Floor,
	"ceil":  math.Ceil,
}

var binaryFuncs = map[string]func(float64, float64) float64{
	"atan2": math.Atan2,
	"min":   math.Min,
	"max":   math.Max,
	"pow":   math.Pow,
}

func (p *parser) call(name token) (node, error) {
	p.next() // (
	var args []node
	if p.peek().kind != tokRParen {
		for {
			a, err := p.expr()
			if err != nil {
				return node{}, err
			}
			args = append(args, a)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if c := p.next(); c.kind != tokRParen {
		return node{}, errors.Expression(c.pos, "expected ) after arguments of %s", name.text)
	}

	if f, ok := unaryFuncs[name.text]; ok {
		if len(args) != 1 {
			return node{}, errors.Expression(name.pos, "%s takes 1 argument, got %d", name.text, len(args))
		}
		a := args[0].fn
		return fold(node{fn: func(x, y, z float64) float64 { return f(a(x, y, z)) }}, args[0]), nil
	}
	if f, ok := binaryFuncs[name.text]; ok {
		if len(args) != 2 {
			return node{}, errors.Expression(name.pos, "%s takes 2 arguments, got %d", name.text, len(args))
		}
		a, b := args[0].fn, args[1].fn
		return fold(node{fn: func(x, y, z float64) float64 { return f(a(x, y, z), b(x, y, z)) }}, args[0], args[1]), nil
	}
	return node{}, errors.Expression(name.pos, "unknown function %q", name.text)
}
