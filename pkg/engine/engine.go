package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dossiersync/pkg/config"
	errs "dossiersync/pkg/errors"
	"dossiersync/pkg/logger"
	"dossiersync/pkg/progress"
	"dossiersync/pkg/retry"
)

// State is the terminal state of a session
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateBudgeted  State = "budgeted"
	StateFailed    State = "failed"
)

// maxFullSyncFailures bounds consecutive failed sessions in
// run-until-complete mode before giving up.
const maxFullSyncFailures = 5

// Options tune a single session
type Options struct {
	// Restart discards the loaded cursor and starts from index zero.
	Restart bool
	// RecordBudget overrides the configured per-session record ceiling.
	RecordBudget int
	// MaxAPICalls caps page fetches in this session; 0 means no cap.
	// Mainly a testing aid.
	MaxAPICalls int
}

// Result reports a finished session
type Result struct {
	SessionID        string    `json:"session_id"`
	State            State     `json:"state"`
	EndReason        string    `json:"end_reason"`
	RecordsProcessed int       `json:"session_records_processed"`
	APICalls         int       `json:"api_calls_made"`
	Errors           int       `json:"errors"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`

	LastProcessedIndex         int     `json:"last_processed_index"`
	TotalRecords               int     `json:"total_records"`
	CompletionPercentage       float64 `json:"completion_percentage"`
	EstimatedRemainingSessions int     `json:"estimated_remaining_sessions"`
	EstimatedRemainingDays     float64 `json:"estimated_remaining_days"`
}

// Status is a point-in-time view for operators
type Status struct {
	Snapshot          *progress.Snapshot `json:"progress"`
	DatabaseRecords   int64              `json:"database_records"`
	ProviderReachable bool               `json:"provider_reachable"`
	StoreReachable    bool               `json:"store_reachable"`
}

// Engine orchestrates processing sessions: it pulls pages from the
// Fetcher, applies idempotent writes to the DocumentStore, and commits
// the progress snapshot after every page so any interruption resumes at
// page granularity.
type Engine struct {
	fetcher  Fetcher
	docs     DocumentStore
	progress ProgressStore
	cfg      *config.Config
	logger   logger.Logger
}

// New creates a batch engine
func New(fetcher Fetcher, docs DocumentStore, progressStore ProgressStore, cfg *config.Config, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		fetcher:  fetcher,
		docs:     docs,
		progress: progressStore,
		cfg:      cfg,
		logger:   log,
	}
}

// RunSession executes one processing session. It loads the cursor,
// refreshes the dataset total, then fetches pages sequentially until the
// record budget is exhausted, the dataset is exhausted, or a structural
// failure occurs. Progress is committed after every page, so a crash or
// cancellation never loses more than the in-flight page.
func (e *Engine) RunSession(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now().UTC()
	result := &Result{
		SessionID: newSessionID(start),
		State:     StateRunning,
		StartedAt: start,
	}
	log := e.logger.WithField("session_id", result.SessionID)

	snap, err := e.loadSnapshot(opts)
	if err != nil {
		result.State = StateFailed
		result.EndReason = "corrupt_state"
		result.EndedAt = time.Now().UTC()
		sessionsTotal.WithLabelValues(string(StateFailed)).Inc()
		return result, err
	}

	budget := e.cfg.Session.RecordBudget
	if opts.RecordBudget > 0 {
		budget = opts.RecordBudget
	}

	// The declared total is refreshed every session and trusted over the
	// cached value; a failed refresh falls back to the last known total.
	if err := e.refreshTotal(ctx, snap, log); err != nil {
		return e.fail(result, snap, "total_unavailable", err, log)
	}

	snap.SessionID = result.SessionID
	snap.SessionStart = start
	result.TotalRecords = snap.TotalRecords

	log.InfoWithFields("session started", map[string]interface{}{
		"cursor":        snap.LastProcessedIndex,
		"total_records": snap.TotalRecords,
		"record_budget": budget,
		"restart":       opts.Restart,
	})

	for {
		// Cancellation is honored between pages so the in-flight page's
		// writes and commit always finish.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return e.fail(result, snap, "cancelled", ctxErr, log)
		}

		if opts.MaxAPICalls > 0 && result.APICalls >= opts.MaxAPICalls {
			result.EndReason = "max_api_calls_reached"
			break
		}

		from, to, ok := snap.NextRange(e.cfg.Provider.PageSize, budget-result.RecordsProcessed)
		if !ok {
			break
		}

		records, err := e.fetcher.FetchRange(ctx, from, to)
		if err != nil {
			log.ErrorWithFields("page fetch failed, aborting session", map[string]interface{}{
				"from":                    from,
				"to":                      to,
				"session_records":         result.RecordsProcessed,
				"session_api_calls":       result.APICalls,
				"committed_cursor":        snap.LastProcessedIndex,
				"error":                   err.Error(),
			})
			return e.fail(result, snap, "page_fetch_failed", err, log)
		}
		result.APICalls++
		snap.APICallsTotal++
		pagesFetched.Inc()

		if len(records) == 0 {
			// ID gaps in the remote dataset: skip past the range rather
			// than ending the session.
			log.WarnWithFields("empty range, skipping", map[string]interface{}{
				"from": from,
				"to":   to,
			})
		} else {
			res, err := e.docs.BulkUpsert(ctx, records)
			if err != nil {
				return e.fail(result, snap, "store_unavailable", err, log)
			}
			result.Errors += res.Errors + res.Skipped
			recordWriteErrors.Add(float64(res.Errors))

			log.InfoWithFields("page stored", map[string]interface{}{
				"from":     from,
				"to":       to,
				"inserted": res.Inserted,
				"updated":  res.Updated,
				"errors":   res.Errors,
				"skipped":  res.Skipped,
			})
		}

		// The cursor advances by records attempted, not records returned,
		// so committed progress never replays a range.
		attempted := to - from + 1
		snap.LastProcessedIndex = to
		snap.RecordsProcessed += attempted
		snap.LastPageAt = time.Now().UTC()
		snap.RecomputeStats(budget, e.cfg.Session.SessionsPerDay)
		result.RecordsProcessed += attempted
		recordsProcessed.Add(float64(attempted))

		if err := e.progress.Commit(snap); err != nil {
			return e.fail(result, snap, "commit_failed", err, log)
		}
	}

	snap.RecomputeStats(budget, e.cfg.Session.SessionsPerDay)

	if snap.Complete() {
		result.State = StateCompleted
		if result.EndReason == "" {
			result.EndReason = "dataset_exhausted"
		}
	} else {
		result.State = StateBudgeted
		if result.EndReason == "" {
			result.EndReason = "record_budget_reached"
		}
	}

	e.finalize(result, snap, log)

	if err := e.progress.Commit(snap); err != nil {
		result.State = StateFailed
		result.EndReason = "commit_failed"
		sessionsTotal.WithLabelValues(string(StateFailed)).Inc()
		return result, err
	}

	sessionsTotal.WithLabelValues(string(result.State)).Inc()
	sessionDuration.Observe(result.EndedAt.Sub(result.StartedAt).Seconds())

	log.InfoWithFields("session finished", map[string]interface{}{
		"state":             string(result.State),
		"end_reason":        result.EndReason,
		"records_processed": result.RecordsProcessed,
		"api_calls":         result.APICalls,
		"errors":            result.Errors,
		"cursor":            result.LastProcessedIndex,
		"completion_pct":    result.CompletionPercentage,
	})
	return result, nil
}

// RunUntilComplete re-enters sessions until the dataset is fully pulled,
// sleeping between attempts when a session fails for transient reasons.
// Consecutive failures are bounded.
func (e *Engine) RunUntilComplete(ctx context.Context, opts Options) (*Result, error) {
	failures := 0
	for {
		result, err := e.RunSession(ctx, opts)
		// A restart only applies to the first session of a full sync
		opts.Restart = false

		switch result.State {
		case StateCompleted:
			return result, nil
		case StateBudgeted:
			failures = 0
		case StateFailed:
			if ctx.Err() != nil {
				return result, err
			}
			failures++
			if failures >= maxFullSyncFailures {
				return result, fmt.Errorf("aborting full sync after %d consecutive failed sessions: %w",
					failures, err)
			}
			e.logger.WarnWithFields("session failed, pausing before retry", map[string]interface{}{
				"consecutive_failures": failures,
				"pause":                e.cfg.Session.FullSyncPause,
				"error":                err.Error(),
			})
			if waitErr := retry.Wait(ctx, e.cfg.Session.FullSyncPause); waitErr != nil {
				return result, err
			}
		}
	}
}

// Status assembles the operator view: persisted progress, document count,
// and connectivity of both collaborators.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	snap, err := e.progress.Load()
	if err != nil {
		return nil, err
	}

	status := &Status{
		Snapshot:          snap,
		ProviderReachable: e.fetcher.TestConnection(ctx),
	}

	if err := e.docs.Ping(ctx); err == nil {
		status.StoreReachable = true
		if count, err := e.docs.Count(ctx); err == nil {
			status.DatabaseRecords = count
		}
	}
	return status, nil
}

// ValidateConnections verifies both external collaborators answer
func (e *Engine) ValidateConnections(ctx context.Context) error {
	if !e.fetcher.TestConnection(ctx) {
		return errs.New(errs.ErrorTypeNetwork, "provider connection check failed")
	}
	if err := e.docs.Ping(ctx); err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, err, "document store connection check failed")
	}
	return nil
}

// loadSnapshot loads the committed snapshot, or a fresh one when an
// explicit restart was requested.
func (e *Engine) loadSnapshot(opts Options) (*progress.Snapshot, error) {
	if opts.Restart {
		return progress.NewSnapshot(), nil
	}
	return e.progress.Load()
}

// refreshTotal re-reads the provider's declared dataset size. The fresh
// value wins over the cached one; when the probe fails the last known
// total keeps the session going, and only a session with no total at all
// fails.
func (e *Engine) refreshTotal(ctx context.Context, snap *progress.Snapshot, log logger.Logger) error {
	total, err := e.fetcher.TotalRecords(ctx)
	if err != nil {
		if snap.TotalRecords > 0 {
			log.WarnWithFields("total refresh failed, keeping last known total", map[string]interface{}{
				"last_known_total": snap.TotalRecords,
				"error":            err.Error(),
			})
			return nil
		}
		return err
	}

	if snap.TotalRecords != 0 && snap.TotalRecords != total {
		log.InfoWithFields("provider total changed between sessions", map[string]interface{}{
			"previous": snap.TotalRecords,
			"current":  total,
		})
	}
	snap.TotalRecords = total
	return nil
}

// fail closes the session in the Failed state, recording whatever
// progress was already committed. The snapshot on disk is untouched past
// the last successful page commit; only the session summary is refreshed
// best-effort.
func (e *Engine) fail(result *Result, snap *progress.Snapshot, reason string, cause error, log logger.Logger) (*Result, error) {
	result.State = StateFailed
	result.EndReason = reason
	e.finalize(result, snap, log)

	if err := e.progress.Commit(snap); err != nil {
		log.WithError(err).Warn("failed to record session summary, checkpoint from last page still stands")
	}

	sessionsTotal.WithLabelValues(string(StateFailed)).Inc()
	log.ErrorWithFields("session failed", map[string]interface{}{
		"end_reason":        reason,
		"records_processed": result.RecordsProcessed,
		"api_calls":         result.APICalls,
		"cursor":            snap.LastProcessedIndex,
		"error":             cause.Error(),
	})
	return result, fmt.Errorf("session %s failed (%s): %w", result.SessionID, reason, cause)
}

// finalize stamps the end time and copies snapshot statistics into the
// result and the snapshot's last-session summary.
func (e *Engine) finalize(result *Result, snap *progress.Snapshot, log logger.Logger) {
	result.EndedAt = time.Now().UTC()
	result.LastProcessedIndex = snap.LastProcessedIndex
	result.TotalRecords = snap.TotalRecords
	result.CompletionPercentage = snap.CompletionPercentage
	result.EstimatedRemainingSessions = snap.EstimatedRemainingSessions
	result.EstimatedRemainingDays = snap.EstimatedRemainingDays

	snap.LastSession = &progress.SessionSummary{
		SessionID:        result.SessionID,
		RecordsProcessed: result.RecordsProcessed,
		APICalls:         result.APICalls,
		Errors:           result.Errors,
		StartedAt:        result.StartedAt,
		EndedAt:          result.EndedAt,
		EndState:         string(result.State),
	}
}

// newSessionID derives an opaque session token from the start time, with
// a short random suffix so two invocations in the same second stay
// distinct in logs.
func newSessionID(start time.Time) string {
	return start.Format("20060102_150405") + "_" + uuid.NewString()[:8]
}
