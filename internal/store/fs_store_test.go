package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bebuch/localmin/internal/brent"
)

// setupTestStore creates an FSStore in a temporary directory.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	s, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return s, tempDir
}

// testCheckpoint builds a checkpoint for a search suspended mid-flight.
func testCheckpoint(jobID string) *Checkpoint {
	return &Checkpoint{
		JobID: jobID,
		Solver: brent.State{
			Low:       1.2,
			High:      2.8,
			Iteration: 7,
			Arg:       1.9,
			U:         1.9,
			V:         2.1,
			W:         2.05,
			X:         1.95,
			FV:        0.012,
			FW:        0.004,
			FX:        0.001,
		},
		Evaluations: 7,
		BestX:       1.95,
		BestValue:   0.001,
		Timestamp:   time.Now(),
		Config: JobConfig{
			Expr:     "(x-2)*(x-2)",
			Low:      0,
			High:     5,
			MaxEvals: 100,
		},
	}
}

func TestNewFSStore(t *testing.T) {
	tempDir := t.TempDir()
	baseDir := filepath.Join(tempDir, "data")

	s, err := NewFSStore(baseDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if s.BaseDir() != baseDir {
		t.Errorf("BaseDir() = %s, want %s", s.BaseDir(), baseDir)
	}
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestSaveCheckpoint(t *testing.T) {
	s, tempDir := setupTestStore(t)

	jobID := "job-abc"
	if err := s.SaveCheckpoint(jobID, testCheckpoint(jobID)); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	path := filepath.Join(tempDir, "jobs", jobID, "checkpoint.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Checkpoint file was not created at %s", path)
	}

	// The temp file must not survive the rename.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Temp file should not exist after save")
	}
}

func TestSaveCheckpoint_InvalidArgs(t *testing.T) {
	s, _ := setupTestStore(t)

	if err := s.SaveCheckpoint("", testCheckpoint("x")); err == nil {
		t.Error("Expected error for empty jobID")
	}
	if err := s.SaveCheckpoint("job", nil); err == nil {
		t.Error("Expected error for nil checkpoint")
	}
}

func TestLoadCheckpoint_RoundTrip(t *testing.T) {
	s, _ := setupTestStore(t)

	jobID := "job-roundtrip"
	saved := testCheckpoint(jobID)
	if err := s.SaveCheckpoint(jobID, saved); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	loaded, err := s.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}

	if loaded.Solver != saved.Solver {
		t.Errorf("Solver state did not survive the round trip:\n got  %+v\n want %+v", loaded.Solver, saved.Solver)
	}
	if loaded.Config != saved.Config {
		t.Errorf("Config did not survive the round trip")
	}
	if loaded.Evaluations != saved.Evaluations {
		t.Errorf("Evaluations = %d, want %d", loaded.Evaluations, saved.Evaluations)
	}

	// The restored solver must be accepted by the state machine.
	if _, err := brent.Restore(loaded.Solver); err != nil {
		t.Errorf("Restored solver state rejected: %v", err)
	}
}

func TestLoadCheckpoint_NotFound(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.LoadCheckpoint("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSaveCheckpoint_Overwrite(t *testing.T) {
	s, _ := setupTestStore(t)

	jobID := "job-overwrite"
	first := testCheckpoint(jobID)
	first.Evaluations = 5
	second := testCheckpoint(jobID)
	second.Evaluations = 25

	if err := s.SaveCheckpoint(jobID, first); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := s.SaveCheckpoint(jobID, second); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := s.LoadCheckpoint(jobID)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded.Evaluations != 25 {
		t.Errorf("Expected the second checkpoint to win, got evaluations = %d", loaded.Evaluations)
	}
}

func TestListCheckpoints(t *testing.T) {
	s, _ := setupTestStore(t)

	infos, err := s.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected empty list, got %d entries", len(infos))
	}

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		if err := s.SaveCheckpoint(id, testCheckpoint(id)); err != nil {
			t.Fatalf("SaveCheckpoint(%s) failed: %v", id, err)
		}
	}

	infos, err = s.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 checkpoints, got %d", len(infos))
	}
	for _, info := range infos {
		if info.Expr != "(x-2)*(x-2)" {
			t.Errorf("Info should carry the expression, got %q", info.Expr)
		}
	}
}

func TestDeleteCheckpoint(t *testing.T) {
	s, tempDir := setupTestStore(t)

	jobID := "job-delete"
	if err := s.SaveCheckpoint(jobID, testCheckpoint(jobID)); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	if err := s.DeleteCheckpoint(jobID); err != nil {
		t.Fatalf("DeleteCheckpoint failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tempDir, "jobs", jobID)); !os.IsNotExist(err) {
		t.Error("Job directory should be removed")
	}

	if err := s.DeleteCheckpoint(jobID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}
