package store

import (
	"fmt"
	"time"

	"github.com/bebuch/localmin/internal/brent"
)

// JobConfig holds the configuration of a minimization job. It lives here
// rather than in the server package so checkpoints can embed it without an
// import cycle.
type JobConfig struct {
	// Expr is the objective expression in the variable x, e.g. "(x-2)*(x-2)".
	Expr string `json:"expr"`

	// Low and High are the endpoints of the initial search interval.
	Low  float64 `json:"low"`
	High float64 `json:"high"`

	// MaxEvals caps objective evaluations (0 = no cap).
	MaxEvals int `json:"maxEvals,omitempty"`

	// CheckpointInterval saves a checkpoint every N seconds (0 = disabled).
	CheckpointInterval int `json:"checkpointInterval,omitempty"`
}

// Checkpoint is a saved search that can be resumed later.
//
// Unlike population-based optimizers, whose internal state is impractical to
// serialize, the Brent state machine is fully captured by its snapshot, so a
// resumed search continues exactly where the interrupted one stopped: same
// trial points, same convergence, no divergence.
type Checkpoint struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"jobId"`

	// Solver is the full minimizer snapshot, including the pending
	// evaluation point.
	Solver brent.State `json:"solver"`

	// Evaluations counts objective evaluations completed so far.
	Evaluations int `json:"evaluations"`

	// BestX is the best point seen so far, BestValue the objective there.
	BestX     float64 `json:"bestX"`
	BestValue float64 `json:"bestValue"`

	// Timestamp records when this checkpoint was created.
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, used to validate resumes.
	Config JobConfig `json:"config"`
}

// CheckpointInfo is checkpoint metadata without the solver state, for
// listing.
type CheckpointInfo struct {
	JobID       string    `json:"jobId"`
	Expr        string    `json:"expr"`
	Low         float64   `json:"low"`
	High        float64   `json:"high"`
	Evaluations int       `json:"evaluations"`
	BestX       float64   `json:"bestX"`
	BestValue   float64   `json:"bestValue"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewCheckpoint creates a checkpoint from runtime job state.
func NewCheckpoint(jobID string, solver brent.State, evaluations int, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:       jobID,
		Solver:      solver,
		Evaluations: evaluations,
		BestX:       solver.X,
		BestValue:   solver.FX,
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// ToInfo converts a full Checkpoint to its metadata.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:       c.JobID,
		Expr:        c.Config.Expr,
		Low:         c.Config.Low,
		High:        c.Config.High,
		Evaluations: c.Evaluations,
		BestX:       c.BestX,
		BestValue:   c.BestValue,
		Timestamp:   c.Timestamp,
	}
}

// Validate checks that the checkpoint is internally consistent.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if c.Config.Expr == "" {
		return &ValidationError{Field: "Config.Expr", Reason: "cannot be empty"}
	}
	if c.Config.High <= c.Config.Low {
		return &ValidationError{Field: "Config", Reason: fmt.Sprintf("interval [%g, %g] is empty", c.Config.Low, c.Config.High)}
	}
	if c.Solver.High <= c.Solver.Low {
		return &ValidationError{Field: "Solver", Reason: fmt.Sprintf("bracket [%g, %g] is empty", c.Solver.Low, c.Solver.High)}
	}
	// The bracket only ever narrows, so it must lie inside the initial interval.
	if c.Solver.Low < c.Config.Low || c.Config.High < c.Solver.High {
		return &ValidationError{Field: "Solver", Reason: "bracket outside the initial interval"}
	}
	if c.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if c.Solver.Iteration < 0 {
		return &ValidationError{Field: "Solver.Iteration", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a checkpoint validation failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether this checkpoint can be resumed under the given
// configuration. The objective and the initial interval must match; a
// different expression would silently optimize the wrong function.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.Expr != config.Expr {
		return &CompatibilityError{Field: "Expr", Expected: c.Config.Expr, Actual: config.Expr}
	}
	if c.Config.Low != config.Low || c.Config.High != config.High {
		return &CompatibilityError{
			Field:    "Interval",
			Expected: fmt.Sprintf("[%g, %g]", c.Config.Low, c.Config.High),
			Actual:   fmt.Sprintf("[%g, %g]", config.Low, config.High),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint/config mismatch.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
