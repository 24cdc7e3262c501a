// Package brent implements Brent's derivative-free local minimization of a
// scalar function on a bounded interval, exposed as a resumable state machine
// using reverse communication.
//
// The caller never hands the algorithm a function. Instead, Step suspends the
// search and returns the next point at which the objective must be evaluated;
// the caller evaluates it however it likes (in process, on another host, from
// a measurement) and resumes the search by passing the result to the next
// Step call. IsReady reports whether the returned point is a request for an
// evaluation or the final minimizer estimate.
//
// The method combines golden section search with successive parabolic
// interpolation. Convergence is never much slower than a Fibonacci search,
// and superlinear for functions with a continuous positive second derivative
// at the minimum. The algorithm cannot detect a minimizer located exactly at
// either endpoint of the initial interval; callers who care must compare the
// returned estimate against the endpoint values themselves.
package brent

import (
	"fmt"
	"math"
)

// Machine precision constants shared by every instance. machEps is the
// relative float64 precision, eps its square root.
var (
	machEps = math.Nextafter(1, 2) - 1
	eps     = math.Sqrt(machEps)
)

// goldenRatio2 is the squared inverse of the golden ratio, (3 - sqrt(5))/2.
// It sizes golden-section steps.
var goldenRatio2 = 0.5 * (3.0 - math.Sqrt(5.0))

// IntervalError reports a degenerate or inverted search interval.
// Use errors.Is(err, ErrInvalidInterval) to check for this error.
type IntervalError struct {
	Low  float64
	High float64
}

func (e *IntervalError) Error() string {
	return fmt.Sprintf("brent: low < high is required, but low = %g, high = %g", e.Low, e.High)
}

func (e *IntervalError) Is(target error) bool {
	_, ok := target.(*IntervalError)
	return ok
}

// ErrInvalidInterval is returned by New and Restore when high <= low.
var ErrInvalidInterval = &IntervalError{}

// Minimizer is the reverse-communication state machine. It is not safe for
// concurrent use; at most one Step call may be in flight per instance.
//
// The bracketing interval [low, high] narrows monotonically across steps and
// is never reset, so an instance that has converged can only search a fresh
// interval by being reconstructed.
type Minimizer struct {
	low  float64
	high float64

	// iteration is the phase marker: 0 means ready to start or just
	// converged, 1 means awaiting the value at the first interior point,
	// >= 2 means awaiting the value at the latest trial point u.
	iteration int
	converged bool

	// arg is the most recently proposed point, or the final estimate once
	// the search has converged.
	arg float64

	// Step sizes of the current and previous iteration.
	d float64
	e float64

	// x is the best point so far, w the second best, v the previous second
	// best, u the latest trial point. fx, fw, fv, fu cache their values.
	u, fu float64
	v, fv float64
	w, fw float64
	x, fx float64
}

// New creates a minimizer for a search on [low, high].
// It returns an *IntervalError if high <= low.
func New(low, high float64) (*Minimizer, error) {
	if high <= low {
		return nil, &IntervalError{Low: low, High: high}
	}
	return &Minimizer{low: low, high: high}, nil
}

// IsReady reports whether the minimizer is waiting to start a search rather
// than waiting for an evaluation result. It is true immediately after
// construction and again once Step has returned the final estimate; the two
// cases are indistinguishable here, callers that need to tell them apart
// track whether they have called Step, or use Converged.
func (m *Minimizer) IsReady() bool {
	return m.iteration == 0
}

// Converged reports whether the previous Step call produced the final
// minimizer estimate. Unlike IsReady it is false on a freshly constructed
// instance.
func (m *Minimizer) Converged() bool {
	return m.converged
}

// Bounds returns the current bracketing interval.
func (m *Minimizer) Bounds() (low, high float64) {
	return m.low, m.high
}

// Iteration returns the phase marker: 0 before the search starts and after
// convergence, otherwise the number of points proposed so far.
func (m *Minimizer) Iteration() int {
	return m.iteration
}

// Arg returns the most recently proposed point. While the search is running
// this is the point awaiting evaluation; after convergence it is the final
// minimizer estimate.
func (m *Minimizer) Arg() float64 {
	return m.arg
}

// Step advances the search by one transition. value must be the objective
// evaluated at the point returned by the previous Step call; it is ignored
// on the first call of a search, where any placeholder will do.
//
// The returned point is the next evaluation request, unless IsReady reports
// true afterwards, in which case it is the final minimizer estimate. The
// evaluated value is never validated: NaN or Inf propagate into the
// comparisons and will generally misdirect the search.
func (m *Minimizer) Step(value float64) float64 {
	switch {
	case m.iteration == 0:
		// Startup: place the first probe a golden section into the interval.
		m.x = m.low + goldenRatio2*(m.high-m.low)
		m.w = m.x
		m.v = m.x
		m.e = 0

		m.converged = false
		m.iteration = 1
		m.arg = m.x
		return m.arg

	case m.iteration == 1:
		m.fx = value
		m.fw = m.fx
		m.fv = m.fx

	default:
		m.fu = value
		if m.fu <= m.fx {
			// The trial point is the new best; x bounds the bracket now.
			if m.x <= m.u {
				m.low = m.x
			} else {
				m.high = m.x
			}
			m.v, m.fv = m.w, m.fw
			m.w, m.fw = m.x, m.fx
			m.x, m.fx = m.u, m.fu
		} else {
			// The trial point bounds the bracket; keep x, demote u into
			// the (w, v) history if it beats either.
			if m.u < m.x {
				m.low = m.u
			} else {
				m.high = m.u
			}
			if m.fu <= m.fw || m.w == m.x {
				m.v, m.fv = m.w, m.fw
				m.w, m.fw = m.u, m.fu
			} else if m.fu <= m.fv || m.v == m.x || m.v == m.w {
				m.v, m.fv = m.u, m.fu
			}
		}
	}

	midpoint := 0.5 * (m.low + m.high)
	tol1 := eps*math.Abs(m.x) + machEps/3
	tol2 := 2 * tol1

	// Stopping criterion: x sits close enough to the midpoint of a bracket
	// that is itself narrow enough. arg still holds the latest trial point,
	// which the tolerance test guarantees lies within tol2 of x.
	if math.Abs(m.x-midpoint) <= tol2-0.5*(m.high-m.low) {
		m.iteration = 0
		m.converged = true
		return m.arg
	}

	if math.Abs(m.e) <= tol1 {
		// Not enough history for a trustworthy parabola; golden section.
		m.goldenSectionStep(midpoint)
	} else {
		// Fit a parabola through (v, fv), (w, fw), (x, fx).
		r := (m.x - m.w) * (m.fx - m.fv)
		q := (m.x - m.v) * (m.fx - m.fw)
		p := (m.x-m.v)*q - (m.x-m.w)*r
		q = 2 * (q - r)
		if q > 0 {
			p = -p
		}
		q = math.Abs(q)
		r = m.e
		m.e = m.d

		if math.Abs(0.5*q*r) <= math.Abs(p) || p <= q*(m.low-m.x) || q*(m.high-m.x) <= p {
			// The predicted step is not shrinking fast enough, or the
			// vertex falls outside the bracket.
			m.goldenSectionStep(midpoint)
		} else {
			m.d = p / q
			m.u = m.x + m.d

			// Keep the trial point at least tol2 away from the endpoints.
			if m.u-m.low < tol2 || m.high-m.u < tol2 {
				m.d = signedMagnitude(tol1, midpoint-m.x)
			}
		}
	}

	// Never evaluate two points closer than tol1.
	if tol1 <= math.Abs(m.d) {
		m.u = m.x + m.d
	} else {
		m.u = m.x + signedMagnitude(tol1, m.d)
	}

	m.iteration++
	m.arg = m.u
	return m.arg
}

// goldenSectionStep sets d and e for a golden section step into the larger
// half of the bracket.
func (m *Minimizer) goldenSectionStep(midpoint float64) {
	if midpoint <= m.x {
		m.e = m.low - m.x
	} else {
		m.e = m.high - m.x
	}
	m.d = goldenRatio2 * m.e
}

// signedMagnitude returns magnitude with the sign of signSource.
// A signSource of zero, including negative zero, counts as positive.
func signedMagnitude(magnitude, signSource float64) float64 {
	if signSource < 0 {
		return -math.Abs(magnitude)
	}
	return math.Abs(magnitude)
}
