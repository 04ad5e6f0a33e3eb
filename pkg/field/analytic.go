package field

import (
	"math"

	"github.com/matzehuels/quadmesh/pkg/errors"
)

// Analytic is a size field defined by an arithmetic expression in x and y.
//
// The expression language supports numbers, the variables x, y and z (z is
// always zero in the plane), the constant Pi, the operators + - * / ^ with
// the usual precedence (^ binds tighter than unary minus and is right
// associative), parentheses and the functions sqrt, exp, log, log10, sin,
// cos, tan, asin, acos, atan, atan2, sinh, cosh, tanh, abs, fabs, floor,
// ceil, min, max and pow.
type Analytic struct {
	src string
	fn  evalFunc
}

// NewAnalytic compiles src. Syntax errors carry the byte offset of the
// offending token.
func NewAnalytic(src string) (*Analytic, error) {
	fn, err := compile(src)
	if err != nil {
		return nil, err
	}
	return &Analytic{src: src, fn: fn}, nil
}

// MustAnalytic is like NewAnalytic but panics on error. It is intended for
// expressions known at compile time.
func MustAnalytic(src string) *Analytic {
	a, err := NewAnalytic(src)
	if err != nil {
		panic(err)
	}
	return a
}

// Source returns the expression text.
func (a *Analytic) Source() string { return a.src }

// Evaluate implements Field. A NaN or infinite result (for example sqrt of
// a negative number) is reported as a Domain error.
func (a *Analytic) Evaluate(x, y float64) (float64, error) {
	v := a.fn(x, y, 0)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Domain(x, y)
	}
	return v, nil
}
