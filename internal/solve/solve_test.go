package solve

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/bebuch/localmin/internal/brent"
	"github.com/bebuch/localmin/internal/objective"
)

func quadratic() objective.Func {
	return objective.FuncOf(func(x float64) float64 {
		return (x - 2) * (x - 2)
	})
}

func TestMinimize_Quadratic(t *testing.T) {
	res, err := Minimize(context.Background(), quadratic(), 0, 5, Options{})
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}

	if !res.Converged {
		t.Error("Expected convergence")
	}
	if math.Abs(res.Minimizer-2.0) > 1e-4 {
		t.Errorf("Expected minimizer near 2.0, got %g", res.Minimizer)
	}
	if res.Evaluations == 0 {
		t.Error("Evaluations should be counted")
	}
	if res.Low > res.Minimizer || res.Minimizer > res.High {
		t.Errorf("Final bracket [%g, %g] should contain the minimizer %g", res.Low, res.High, res.Minimizer)
	}
}

func TestMinimize_InvalidInterval(t *testing.T) {
	_, err := Minimize(context.Background(), quadratic(), 5, 0, Options{})
	if !errors.Is(err, brent.ErrInvalidInterval) {
		t.Errorf("Expected ErrInvalidInterval, got %v", err)
	}
}

func TestMinimize_MaxEvals(t *testing.T) {
	res, err := Minimize(context.Background(), quadratic(), 0, 5, Options{MaxEvals: 3})
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}

	if res.Converged {
		t.Error("Search should not converge within 3 evaluations")
	}
	if res.Evaluations != 3 {
		t.Errorf("Expected 3 evaluations, got %d", res.Evaluations)
	}
	// The partial result still reports the best point found so far.
	if res.Minimizer < 0 || res.Minimizer > 5 {
		t.Errorf("Best point %g outside the interval", res.Minimizer)
	}
}

func TestMinimize_OnEval(t *testing.T) {
	var seen []Progress
	opts := Options{
		OnEval: func(p Progress) error {
			seen = append(seen, p)
			return nil
		},
	}

	res, err := Minimize(context.Background(), quadratic(), 0, 5, opts)
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}

	// The callback fires after every evaluation except the one that
	// triggers convergence.
	if len(seen) < res.Evaluations-1 {
		t.Fatalf("Expected at least %d progress reports, got %d", res.Evaluations-1, len(seen))
	}

	for i, p := range seen {
		if p.Evaluations != i+1 {
			t.Errorf("Progress %d carries evaluation count %d", i, p.Evaluations)
		}
		if p.FX != (p.X-2)*(p.X-2) {
			t.Errorf("Progress value %g does not match objective at %g", p.FX, p.X)
		}
		if p.Solver.High <= p.Solver.Low {
			t.Errorf("Progress snapshot has degenerate bracket [%g, %g]", p.Solver.Low, p.Solver.High)
		}
	}
}

func TestMinimize_CallbackStop(t *testing.T) {
	opts := Options{
		OnEval: func(p Progress) error {
			if p.Evaluations >= 5 {
				return ErrStopped
			}
			return nil
		},
	}

	res, err := Minimize(context.Background(), quadratic(), 0, 5, opts)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Expected ErrStopped, got %v", err)
	}
	if res == nil || res.Converged {
		t.Error("Expected a non-converged partial result")
	}
	if res.Evaluations != 5 {
		t.Errorf("Expected 5 evaluations, got %d", res.Evaluations)
	}
}

func TestMinimize_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Minimize(ctx, quadratic(), 0, 5, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if res == nil {
		t.Fatal("Expected a partial result even when cancelled")
	}
}

func TestMinimize_ObjectiveError(t *testing.T) {
	boom := errors.New("sensor offline")

	res, err := Minimize(context.Background(), evalError{err: boom}, 0, 5, Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped objective error, got %v", err)
	}
	if res == nil || res.Converged {
		t.Error("Expected a non-converged partial result")
	}
}

type evalError struct {
	err error
}

func (e evalError) Eval(x float64) (float64, error) {
	return 0, e.err
}

func TestResume_ContinuesToSameAnswer(t *testing.T) {
	f := quadratic()

	direct, err := Minimize(context.Background(), f, 0, 5, Options{})
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}

	// Stop after a small budget, snapshot, restore, and finish.
	var snapshot brent.State
	partial, err := Minimize(context.Background(), f, 0, 5, Options{
		MaxEvals: 4,
		OnEval: func(p Progress) error {
			snapshot = p.Solver
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if partial.Converged {
		t.Fatal("Search converged before the snapshot point")
	}

	m, err := brent.Restore(snapshot)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	resumed, err := Resume(context.Background(), m, f, Options{})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if !resumed.Converged {
		t.Error("Resumed search should converge")
	}
	if resumed.Minimizer != direct.Minimizer {
		t.Errorf("Resumed search ended at %.17g, direct search at %.17g", resumed.Minimizer, direct.Minimizer)
	}
	if resumed.Evaluations+4 != direct.Evaluations {
		t.Errorf("Resumed search used %d evaluations after 4 up front, direct used %d",
			resumed.Evaluations, direct.Evaluations)
	}
}
