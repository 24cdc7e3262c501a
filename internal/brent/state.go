package brent

// State is a serializable snapshot of a minimizer. It captures every field
// needed to continue a search, so a suspended search can be persisted and
// resumed exactly, possibly in another process.
type State struct {
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	Iteration int     `json:"iteration"`
	Converged bool    `json:"converged"`
	Arg       float64 `json:"arg"`
	Step      float64 `json:"step"`     // d
	PrevStep  float64 `json:"prevStep"` // e
	U         float64 `json:"u"`
	FU        float64 `json:"fu"`
	V         float64 `json:"v"`
	FV        float64 `json:"fv"`
	W         float64 `json:"w"`
	FW        float64 `json:"fw"`
	X         float64 `json:"x"`
	FX        float64 `json:"fx"`
}

// State returns a snapshot of the minimizer.
func (m *Minimizer) State() State {
	return State{
		Low:       m.low,
		High:      m.high,
		Iteration: m.iteration,
		Converged: m.converged,
		Arg:       m.arg,
		Step:      m.d,
		PrevStep:  m.e,
		U:         m.u,
		FU:        m.fu,
		V:         m.v,
		FV:        m.fv,
		W:         m.w,
		FW:        m.fw,
		X:         m.x,
		FX:        m.fx,
	}
}

// Restore reconstructs a minimizer from a snapshot. The snapshot's interval
// is validated the same way New validates its arguments.
func Restore(s State) (*Minimizer, error) {
	if s.High <= s.Low {
		return nil, &IntervalError{Low: s.Low, High: s.High}
	}
	return &Minimizer{
		low:       s.Low,
		high:      s.High,
		iteration: s.Iteration,
		converged: s.Converged,
		arg:       s.Arg,
		d:         s.Step,
		e:         s.PrevStep,
		u:         s.U,
		fu:        s.FU,
		v:         s.V,
		fv:        s.FV,
		w:         s.W,
		fw:        s.FW,
		x:         s.X,
		fx:        s.FX,
	}, nil
}
