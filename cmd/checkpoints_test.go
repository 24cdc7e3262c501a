package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bebuch/localmin/internal/brent"
	"github.com/bebuch/localmin/internal/store"
)

func TestSelectCheckpointsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectCheckpointsForDeletion(infos, 0, 7)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}
	selected := map[string]bool{}
	for _, info := range toDelete {
		selected[info.JobID] = true
	}
	if !selected["job1"] || !selected["job4"] {
		t.Errorf("Expected job1 and job4 to be selected, got %v", selected)
	}
}

func TestSelectCheckpointsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectCheckpointsForDeletion(infos, 2, 0)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}
	selected := map[string]bool{}
	for _, info := range toDelete {
		selected[info.JobID] = true
	}
	if !selected["job1"] || !selected["job4"] {
		t.Errorf("Expected the two oldest (job1, job4) to be selected, got %v", selected)
	}
}

func TestSelectCheckpointsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
		{JobID: "job5", Timestamp: now.AddDate(0, 0, -2)},
	}

	// Age catches job1 and job4, count catches the same two; no duplicates.
	toDelete := selectCheckpointsForDeletion(infos, 3, 7)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}
	seen := map[string]int{}
	for _, info := range toDelete {
		seen[info.JobID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("Checkpoint %s selected %d times", id, n)
		}
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	content := []byte("sample trace data")
	if err := os.WriteFile(filepath.Join(tmpDir, "trace.ndjson"), content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, got, tt.expected)
		}
	}
}

func TestCheckpointsListCommand_NoCheckpoints(t *testing.T) {
	tmpDir := t.TempDir()

	originalDataDir := checkpointDataDir
	checkpointDataDir = tmpDir
	defer func() { checkpointDataDir = originalDataDir }()

	if err := runListCheckpoints(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestCheckpointsListCommand_WithCheckpoints(t *testing.T) {
	tmpDir := t.TempDir()

	checkpointStore, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	config := store.JobConfig{
		Expr:     "(x-2)^2",
		Low:      0,
		High:     5,
		MaxEvals: 100,
	}
	m, err := brent.New(config.Low, config.High)
	if err != nil {
		t.Fatalf("brent.New failed: %v", err)
	}
	m.Step(0)
	cp := store.NewCheckpoint("test-job-id", m.State(), 1, config)
	if err := checkpointStore.SaveCheckpoint("test-job-id", cp); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}

	originalDataDir := checkpointDataDir
	checkpointDataDir = tmpDir
	defer func() { checkpointDataDir = originalDataDir }()

	if err := runListCheckpoints(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestCheckpointsCleanCommand_NoFlags(t *testing.T) {
	tmpDir := t.TempDir()

	originalDataDir := checkpointDataDir
	checkpointDataDir = tmpDir
	defer func() { checkpointDataDir = originalDataDir }()

	originalKeepLast, originalOlderThan := keepLast, olderThanDays
	keepLast, olderThanDays = 0, 0
	defer func() { keepLast, olderThanDays = originalKeepLast, originalOlderThan }()

	if err := runCleanCheckpoints(nil, nil); err == nil {
		t.Error("Expected error when no retention flags are given")
	}
}
