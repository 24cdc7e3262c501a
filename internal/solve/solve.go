// Package solve drives the reverse-communication loop for in-process
// callers: it repeatedly asks the minimizer for the next point, evaluates
// the objective there, and feeds the value back until convergence or until
// the caller's budget runs out. Step remains the portable contract; this is
// just the couple of dozen lines every local caller would otherwise write.
package solve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bebuch/localmin/internal/brent"
	"github.com/bebuch/localmin/internal/objective"
)

// ErrStopped is returned from an OnEval callback to abort the search early.
var ErrStopped = errors.New("solve: stopped by callback")

// Progress describes the search after one objective evaluation.
type Progress struct {
	// Evaluations counts objective evaluations so far.
	Evaluations int

	// X is the point that was just evaluated, FX the value found there.
	X  float64
	FX float64

	// Solver is a snapshot of the minimizer after the evaluation was fed
	// back, suitable for checkpointing the search.
	Solver brent.State
}

// Options configures a minimization run.
type Options struct {
	// MaxEvals caps the number of objective evaluations. The state machine
	// itself never enforces a cap, so the budget is driver policy. Zero
	// means no cap.
	MaxEvals int

	// OnEval, when set, is called after every objective evaluation.
	// Returning ErrStopped aborts the search; any other error is passed
	// through to the caller.
	OnEval func(Progress) error
}

// Result is the outcome of a minimization run.
type Result struct {
	// Minimizer is the estimated minimizer, Value the objective there.
	// When Converged is false these are the best point seen so far.
	Minimizer float64
	Value     float64

	Evaluations int
	Converged   bool

	// Low and High bound the final bracketing interval.
	Low  float64
	High float64
}

// Minimize searches [low, high] for a local minimizer of f.
func Minimize(ctx context.Context, f objective.Func, low, high float64, opts Options) (*Result, error) {
	m, err := brent.New(low, high)
	if err != nil {
		return nil, err
	}
	return Resume(ctx, m, f, opts)
}

// Resume continues a search on an existing minimizer, typically one restored
// from a checkpoint. A freshly constructed minimizer is started from scratch.
func Resume(ctx context.Context, m *brent.Minimizer, f objective.Func, opts Options) (*Result, error) {
	arg := m.Arg()
	if m.IsReady() {
		// Startup transition; the placeholder value is ignored.
		arg = m.Step(0)
	}

	evals := 0
	for {
		if err := ctx.Err(); err != nil {
			return partialResult(m, evals), err
		}

		value, err := f.Eval(arg)
		if err != nil {
			return partialResult(m, evals), fmt.Errorf("objective at x = %g: %w", arg, err)
		}
		evals++
		evaluated := arg

		arg = m.Step(value)
		if m.IsReady() {
			low, high := m.Bounds()
			slog.Debug("Search converged", "minimizer", arg, "value", value, "evaluations", evals)
			return &Result{
				Minimizer:   arg,
				Value:       value,
				Evaluations: evals,
				Converged:   true,
				Low:         low,
				High:        high,
			}, nil
		}

		if opts.OnEval != nil {
			st := m.State()
			if err := opts.OnEval(Progress{Evaluations: evals, X: evaluated, FX: value, Solver: st}); err != nil {
				if errors.Is(err, ErrStopped) {
					return partialResult(m, evals), ErrStopped
				}
				return partialResult(m, evals), err
			}
		}

		if opts.MaxEvals > 0 && evals >= opts.MaxEvals {
			slog.Debug("Evaluation budget exhausted", "evaluations", evals)
			return partialResult(m, evals), nil
		}
	}
}

// partialResult reports the best point seen so far on a search that has not
// converged.
func partialResult(m *brent.Minimizer, evals int) *Result {
	st := m.State()
	return &Result{
		Minimizer:   st.X,
		Value:       st.FX,
		Evaluations: evals,
		Converged:   false,
		Low:         st.Low,
		High:        st.High,
	}
}
