// Package objective provides scalar objective functions for the caller side
// of the reverse-communication loop. The minimizer itself never sees these:
// it only proposes points, and whatever drives it evaluates them here.
package objective

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/Knetic/govaluate"
)

// Func is a scalar function of a scalar variable. Evaluation may fail, e.g.
// for expressions that are undefined at x.
type Func interface {
	Eval(x float64) (float64, error)
}

// FuncOf adapts a plain Go function to the Func interface.
func FuncOf(f func(float64) float64) Func {
	return goFunc(f)
}

type goFunc func(float64) float64

func (f goFunc) Eval(x float64) (float64, error) {
	return f(x), nil
}

// exprFunc evaluates a parsed expression in the single variable x.
type exprFunc struct {
	expr   *govaluate.EvaluableExpression
	params map[string]interface{}
}

// mathFuncs are the helper functions available inside expressions.
var mathFuncs = map[string]govaluate.ExpressionFunction{
	"sin":  func(args ...interface{}) (interface{}, error) { return math.Sin(toFloat(args[0])), nil },
	"cos":  func(args ...interface{}) (interface{}, error) { return math.Cos(toFloat(args[0])), nil },
	"tan":  func(args ...interface{}) (interface{}, error) { return math.Tan(toFloat(args[0])), nil },
	"exp":  func(args ...interface{}) (interface{}, error) { return math.Exp(toFloat(args[0])), nil },
	"log":  func(args ...interface{}) (interface{}, error) { return math.Log(toFloat(args[0])), nil },
	"sqrt": func(args ...interface{}) (interface{}, error) { return math.Sqrt(toFloat(args[0])), nil },
	"abs":  func(args ...interface{}) (interface{}, error) { return math.Abs(toFloat(args[0])), nil },
	"pow": func(args ...interface{}) (interface{}, error) {
		return math.Pow(toFloat(args[0]), toFloat(args[1])), nil
	},
}

// decimalComma matches a comma used as a decimal separator, i.e. between two
// digits. Commas separating function arguments like pow(x, 3) are not touched.
var decimalComma = regexp.MustCompile(`(\d),(\d)`)

// Parse compiles an expression string in the variable x, e.g. "(x-2)*(x-2)"
// or "cos(x) + 0.1*x".
func Parse(expr string) (Func, error) {
	// Accept decimal commas.
	expr = decimalComma.ReplaceAllString(expr, "$1.$2")

	parsed, err := govaluate.NewEvaluableExpressionWithFunctions(expr, mathFuncs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression %q: %w", expr, err)
	}

	return &exprFunc{
		expr:   parsed,
		params: map[string]interface{}{"x": 0.0},
	}, nil
}

func (f *exprFunc) Eval(x float64) (float64, error) {
	f.params["x"] = x

	v, err := f.expr.Evaluate(f.params)
	if err != nil {
		return math.NaN(), fmt.Errorf("failed to evaluate at x = %g: %w", x, err)
	}

	result := toFloat(v)
	if math.IsNaN(result) {
		if _, ok := v.(float64); !ok {
			return math.NaN(), fmt.Errorf("expression did not return a number: %T", v)
		}
	}
	return result, nil
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
