package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	errs "dossiersync/pkg/errors"
	"dossiersync/pkg/logger"
)

// snapshotVersion is bumped when the persisted layout changes
const snapshotVersion = 1

// SessionSummary records the outcome of the most recent session
type SessionSummary struct {
	SessionID        string    `json:"session_id"`
	RecordsProcessed int       `json:"records_processed"`
	APICalls         int       `json:"api_calls"`
	Errors           int       `json:"errors"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	EndState         string    `json:"end_state"`
}

// Snapshot is the complete persisted state needed to resume processing.
// The engine holds a transient copy during a session and commits it back
// after every page.
type Snapshot struct {
	// LastProcessedIndex is the 1-based cursor into the remote dataset;
	// 0 means nothing has been processed yet.
	LastProcessedIndex int `json:"last_processed_index"`
	// TotalRecords is the provider's declared dataset size, refreshed at
	// session start.
	TotalRecords int `json:"total_records"`
	// RecordsProcessed counts records attempted across all sessions.
	RecordsProcessed int `json:"records_processed"`
	// APICallsTotal counts page fetches across all sessions.
	APICallsTotal int `json:"api_calls_total"`

	SessionID    string    `json:"session_id"`
	SessionStart time.Time `json:"session_start"`
	LastPageAt   time.Time `json:"last_page_time,omitempty"`

	CompletionPercentage       float64 `json:"completion_percentage"`
	EstimatedRemainingSessions int     `json:"estimated_remaining_sessions"`
	EstimatedRemainingDays     float64 `json:"estimated_remaining_days"`

	LastSession *SessionSummary `json:"last_session,omitempty"`
	Version     int             `json:"version"`
}

// NewSnapshot returns a zero-valued snapshot for a dataset never pulled
func NewSnapshot() *Snapshot {
	return &Snapshot{Version: snapshotVersion}
}

// NextRange computes the next fetch range from the cursor, clipped to the
// dataset bound and the remaining budget. ok is false when nothing
// remains to fetch.
func (s *Snapshot) NextRange(pageSize, remainingBudget int) (from, to int, ok bool) {
	if s.LastProcessedIndex >= s.TotalRecords || remainingBudget <= 0 {
		return 0, 0, false
	}

	from = s.LastProcessedIndex + 1
	to = s.LastProcessedIndex + pageSize
	if to > s.TotalRecords {
		to = s.TotalRecords
	}
	if to > s.LastProcessedIndex+remainingBudget {
		to = s.LastProcessedIndex + remainingBudget
	}
	return from, to, true
}

// RecomputeStats refreshes completion percentage and remaining effort
// estimates from the cursor, the declared total, and the session sizing.
func (s *Snapshot) RecomputeStats(recordBudget, sessionsPerDay int) {
	if s.TotalRecords <= 0 {
		s.CompletionPercentage = 0
		s.EstimatedRemainingSessions = 0
		s.EstimatedRemainingDays = 0
		return
	}

	processed := s.LastProcessedIndex
	if processed > s.TotalRecords {
		processed = s.TotalRecords
	}
	s.CompletionPercentage = float64(processed) / float64(s.TotalRecords) * 100

	remaining := s.TotalRecords - processed
	if remaining <= 0 || recordBudget <= 0 {
		s.EstimatedRemainingSessions = 0
		s.EstimatedRemainingDays = 0
		return
	}

	s.EstimatedRemainingSessions = int(math.Ceil(float64(remaining) / float64(recordBudget)))
	if sessionsPerDay > 0 {
		s.EstimatedRemainingDays = float64(s.EstimatedRemainingSessions) / float64(sessionsPerDay)
	}
}

// Complete reports whether the cursor has reached the declared total
func (s *Snapshot) Complete() bool {
	return s.TotalRecords > 0 && s.LastProcessedIndex >= s.TotalRecords
}

// Store persists snapshots to a JSON file with atomic replacement
type Store struct {
	path   string
	logger logger.Logger
}

// NewStore creates a progress store backed by the given file path
func NewStore(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{path: path, logger: log}
}

// Path returns the backing file path
func (st *Store) Path() string {
	return st.path
}

// Exists reports whether a committed snapshot is present
func (st *Store) Exists() bool {
	_, err := os.Stat(st.path)
	return err == nil
}

// Load returns the last committed snapshot. A missing file yields a
// zero-valued snapshot; an unreadable or unparseable file is a
// corrupt-state error so progress is never silently reset.
func (st *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			st.logger.DebugWithFields("no progress file, starting from zero", map[string]interface{}{
				"path": st.path,
			})
			return NewSnapshot(), nil
		}
		return nil, errs.Wrap(errs.ErrorTypeCorruptState, err,
			fmt.Sprintf("failed to read progress file %s", st.path))
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCorruptState, err,
			fmt.Sprintf("failed to parse progress file %s; refusing to reset progress, fix or reset explicitly", st.path))
	}

	if snap.LastProcessedIndex < 0 {
		return nil, errs.Newf(errs.ErrorTypeCorruptState,
			"progress file %s has negative cursor %d", st.path, snap.LastProcessedIndex)
	}

	st.logger.DebugWithFields("progress loaded", map[string]interface{}{
		"last_processed_index": snap.LastProcessedIndex,
		"total_records":        snap.TotalRecords,
		"records_processed":    snap.RecordsProcessed,
	})
	return &snap, nil
}

// Commit atomically replaces the persisted snapshot. A crash mid-commit
// leaves either the old or the new snapshot readable, never a torn one.
func (st *Store) Commit(snap *Snapshot) error {
	snap.Version = snapshotVersion

	dir := filepath.Dir(st.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.Wrap(errs.ErrorTypeCommit, err, "failed to create progress directory")
		}
	}

	tempPath := st.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeCommit, err, "failed to create temporary progress file")
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeCommit, err, "failed to encode progress snapshot")
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeCommit, err, "failed to sync progress file")
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeCommit, err, "failed to close progress file")
	}

	if err := os.Rename(tempPath, st.path); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeCommit, err, "failed to replace progress file")
	}

	st.logger.DebugWithFields("progress committed", map[string]interface{}{
		"last_processed_index": snap.LastProcessedIndex,
		"records_processed":    snap.RecordsProcessed,
		"completion_pct":       snap.CompletionPercentage,
	})
	return nil
}

// Reset discards all resumption state. Destructive; callers must gate it
// behind an explicit confirmation.
func (st *Store) Reset() error {
	if err := st.Commit(NewSnapshot()); err != nil {
		return err
	}
	st.logger.Info("progress reset to zero")
	return nil
}
