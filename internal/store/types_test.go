package store

import (
	"errors"
	"testing"
	"time"
)

func validCheckpoint() *Checkpoint {
	cp := testCheckpoint("job-valid")
	return cp
}

func TestCheckpoint_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Checkpoint)
		wantErr bool
	}{
		{"valid", func(c *Checkpoint) {}, false},
		{"empty job id", func(c *Checkpoint) { c.JobID = "" }, true},
		{"empty expression", func(c *Checkpoint) { c.Config.Expr = "" }, true},
		{"inverted interval", func(c *Checkpoint) { c.Config.Low, c.Config.High = 5, 0 }, true},
		{"inverted bracket", func(c *Checkpoint) { c.Solver.Low, c.Solver.High = 3, 1 }, true},
		{"bracket outside interval", func(c *Checkpoint) { c.Solver.Low = -10 }, true},
		{"negative evaluations", func(c *Checkpoint) { c.Evaluations = -1 }, true},
		{"negative iteration", func(c *Checkpoint) { c.Solver.Iteration = -1 }, true},
		{"zero timestamp", func(c *Checkpoint) { c.Timestamp = time.Time{} }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cp := validCheckpoint()
			tc.mutate(cp)

			err := cp.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
			if tc.wantErr {
				var ve *ValidationError
				if err != nil && !errors.As(err, &ve) {
					t.Errorf("Expected *ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestCheckpoint_IsCompatible(t *testing.T) {
	cp := validCheckpoint()

	if err := cp.IsCompatible(cp.Config); err != nil {
		t.Errorf("Checkpoint should be compatible with its own config: %v", err)
	}

	other := cp.Config
	other.Expr = "cos(x)"
	if err := cp.IsCompatible(other); err == nil {
		t.Error("Expected incompatibility for a different expression")
	}

	other = cp.Config
	other.High = 10
	if err := cp.IsCompatible(other); err == nil {
		t.Error("Expected incompatibility for a different interval")
	}

	// MaxEvals is runtime policy, not identity; changing it is fine.
	other = cp.Config
	other.MaxEvals = 9999
	if err := cp.IsCompatible(other); err != nil {
		t.Errorf("MaxEvals change should be compatible: %v", err)
	}
}

func TestNotFoundError_Is(t *testing.T) {
	err := &NotFoundError{JobID: "abc"}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
	if err.Error() != "checkpoint not found: abc" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
