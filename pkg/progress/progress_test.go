package progress

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	errs "dossiersync/pkg/errors"
	"dossiersync/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "progress.json"), logger.NewNopLogger())
}

func TestLoadMissingFileReturnsZeroSnapshot(t *testing.T) {
	st := newTestStore(t)

	snap, err := st.Load()
	if err != nil {
		t.Fatalf("Expected zero snapshot for missing file, got error: %v", err)
	}
	if snap.LastProcessedIndex != 0 {
		t.Errorf("Expected cursor 0, got %d", snap.LastProcessedIndex)
	}
	if snap.RecordsProcessed != 0 {
		t.Errorf("Expected 0 records processed, got %d", snap.RecordsProcessed)
	}
}

func TestCommitAndLoadRoundTrip(t *testing.T) {
	st := newTestStore(t)

	snap := NewSnapshot()
	snap.LastProcessedIndex = 1000
	snap.TotalRecords = 420000
	snap.RecordsProcessed = 1000
	snap.APICallsTotal = 2
	snap.SessionID = "20260826_090000_abcd1234"
	snap.SessionStart = time.Now().UTC().Truncate(time.Second)

	if err := st.Commit(snap); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LastProcessedIndex != 1000 {
		t.Errorf("Expected cursor 1000, got %d", loaded.LastProcessedIndex)
	}
	if loaded.TotalRecords != 420000 {
		t.Errorf("Expected total 420000, got %d", loaded.TotalRecords)
	}
	if loaded.SessionID != snap.SessionID {
		t.Errorf("Expected session id %q, got %q", snap.SessionID, loaded.SessionID)
	}
}

func TestLoadCorruptFileFailsLoudly(t *testing.T) {
	st := newTestStore(t)

	if err := os.WriteFile(st.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	_, err := st.Load()
	if err == nil {
		t.Fatal("Expected corrupt-state error, got nil")
	}

	var typed *errs.Error
	if !errors.As(err, &typed) {
		t.Fatalf("Expected typed error, got %T", err)
	}
	if typed.Type != errs.ErrorTypeCorruptState {
		t.Errorf("Expected corrupt_state, got %s", typed.Type)
	}
}

func TestLoadNegativeCursorFailsLoudly(t *testing.T) {
	st := newTestStore(t)

	if err := os.WriteFile(st.Path(), []byte(`{"last_processed_index": -5}`), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	_, err := st.Load()
	var typed *errs.Error
	if !errors.As(err, &typed) || typed.Type != errs.ErrorTypeCorruptState {
		t.Errorf("Expected corrupt_state error, got %v", err)
	}
}

func TestCommitLeavesNoTempFile(t *testing.T) {
	st := newTestStore(t)

	snap := NewSnapshot()
	snap.LastProcessedIndex = 500
	if err := st.Commit(snap); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if _, err := os.Stat(st.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected temp file to be renamed away after commit")
	}
}

func TestCommitOverwritesPreviousSnapshot(t *testing.T) {
	st := newTestStore(t)

	for cursor := 500; cursor <= 1500; cursor += 500 {
		snap := NewSnapshot()
		snap.LastProcessedIndex = cursor
		snap.TotalRecords = 2000
		if err := st.Commit(snap); err != nil {
			t.Fatalf("Commit at cursor %d failed: %v", cursor, err)
		}

		loaded, err := st.Load()
		if err != nil {
			t.Fatalf("Load at cursor %d failed: %v", cursor, err)
		}
		if loaded.LastProcessedIndex != cursor {
			t.Errorf("Expected cursor %d, got %d", cursor, loaded.LastProcessedIndex)
		}
	}
}

func TestReset(t *testing.T) {
	st := newTestStore(t)

	snap := NewSnapshot()
	snap.LastProcessedIndex = 9000
	snap.RecordsProcessed = 9000
	if err := st.Commit(snap); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := st.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("Load after reset failed: %v", err)
	}
	if loaded.LastProcessedIndex != 0 || loaded.RecordsProcessed != 0 {
		t.Errorf("Expected zero snapshot after reset, got cursor=%d processed=%d",
			loaded.LastProcessedIndex, loaded.RecordsProcessed)
	}
}

func TestNextRange(t *testing.T) {
	tests := []struct {
		name            string
		cursor          int
		total           int
		pageSize        int
		remainingBudget int
		wantFrom        int
		wantTo          int
		wantOK          bool
	}{
		{"first page", 0, 420000, 500, 14000, 1, 500, true},
		{"resume from cursor", 1000, 420000, 500, 14000, 1001, 1500, true},
		{"clipped to total", 800, 1000, 500, 14000, 801, 1000, true},
		{"clipped to budget", 0, 420000, 500, 300, 1, 300, true},
		{"dataset exhausted", 1000, 1000, 500, 14000, 0, 0, false},
		{"cursor beyond shrunk total", 1500, 1000, 500, 14000, 0, 0, false},
		{"budget exhausted", 0, 420000, 500, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &Snapshot{LastProcessedIndex: tt.cursor, TotalRecords: tt.total}
			from, to, ok := snap.NextRange(tt.pageSize, tt.remainingBudget)
			if ok != tt.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if !ok {
				return
			}
			if from != tt.wantFrom || to != tt.wantTo {
				t.Errorf("Expected [%d,%d], got [%d,%d]", tt.wantFrom, tt.wantTo, from, to)
			}
		})
	}
}

func TestRecomputeStats(t *testing.T) {
	snap := &Snapshot{LastProcessedIndex: 1000, TotalRecords: 420000}
	snap.RecomputeStats(14000, 3)

	if snap.CompletionPercentage < 0.23 || snap.CompletionPercentage > 0.25 {
		t.Errorf("Expected completion near 0.238%%, got %f", snap.CompletionPercentage)
	}
	// ceil(419000/14000) = 30 sessions, 10 days at 3 per day
	if snap.EstimatedRemainingSessions != 30 {
		t.Errorf("Expected 30 remaining sessions, got %d", snap.EstimatedRemainingSessions)
	}
	if snap.EstimatedRemainingDays != 10 {
		t.Errorf("Expected 10 remaining days, got %f", snap.EstimatedRemainingDays)
	}
}

func TestRecomputeStatsComplete(t *testing.T) {
	snap := &Snapshot{LastProcessedIndex: 1000, TotalRecords: 1000}
	snap.RecomputeStats(1200, 3)

	if snap.CompletionPercentage != 100 {
		t.Errorf("Expected 100%%, got %f", snap.CompletionPercentage)
	}
	if snap.EstimatedRemainingSessions != 0 || snap.EstimatedRemainingDays != 0 {
		t.Error("Expected no remaining effort when complete")
	}
	if !snap.Complete() {
		t.Error("Expected snapshot to report complete")
	}
}

func TestMonotonicCursorAcrossCommits(t *testing.T) {
	st := newTestStore(t)

	last := 0
	cursors := []int{500, 1000, 1000, 1500, 14000}
	for _, cursor := range cursors {
		snap, err := st.Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if snap.LastProcessedIndex < last {
			t.Fatalf("Cursor regressed: %d < %d", snap.LastProcessedIndex, last)
		}

		snap.LastProcessedIndex = cursor
		snap.TotalRecords = 420000
		if err := st.Commit(snap); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		last = cursor
	}
}
