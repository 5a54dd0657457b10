// Package ledger maintains the durable run record for a batch: one row per
// invocation, updated as files finish, closed with a terminal status whose
// exit code the CLI propagates.
package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgehaul/ticketflow/internal/model"
	"github.com/ridgehaul/ticketflow/internal/store"
)

// Ledger tracks one in-progress run. Safe for concurrent use: worker
// goroutines report per-file deltas through Record while the run row is
// periodically flushed.
type Ledger struct {
	store store.Store

	mu         sync.Mutex
	run        *model.RunRecord
	counts     model.RunCounts
	dirty      bool
	rolledBack bool
}

// New creates a Ledger bound to the given store.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Start opens a new run record in IN_PROGRESS state. The policy is
// serialized into the record so a later reader can see what settings
// produced the run.
func (l *Ledger) Start(ctx context.Context, jobID string, policy model.BatchPolicy, filesTotal int) (*model.RunRecord, error) {
	cfg, err := json.Marshal(policy)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: marshal policy")
	}

	run := &model.RunRecord{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Status:    model.RunInProgress,
		Counts:    model.RunCounts{FilesTotal: filesTotal},
		Config:    cfg,
		StartedAt: time.Now().UTC(),
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "ledger: create run")
	}

	l.mu.Lock()
	l.run = run
	l.counts = run.Counts
	l.dirty = false
	l.mu.Unlock()

	zap.L().Info("run started",
		zap.String("run_id", run.ID),
		zap.String("job_id", jobID),
		zap.Int("files_total", filesTotal))
	return run, nil
}

// RunID returns the id of the active run, or "" before Start.
func (l *Ledger) RunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.run == nil {
		return ""
	}
	return l.run.ID
}

// Record merges a per-file delta into the running counts. It does not
// touch the store; call Flush (or let Finish do it) to persist.
func (l *Ledger) Record(delta model.RunCounts) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts.Add(delta)
	l.dirty = true
}

// Counts returns a snapshot of the current aggregate counts.
func (l *Ledger) Counts() model.RunCounts {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts
}

// MarkRolledBack records that the run's persisted artifacts were deleted.
// Finish then reports FAILED regardless of per-file successes: the counts
// describe work that no longer exists in the store.
func (l *Ledger) MarkRolledBack() {
	l.mu.Lock()
	l.rolledBack = true
	l.mu.Unlock()
}

// Flush persists the current counts if they changed since the last flush.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	if l.run == nil || !l.dirty {
		l.mu.Unlock()
		return nil
	}
	runID := l.run.ID
	counts := l.counts
	l.dirty = false
	l.mu.Unlock()

	if err := l.store.UpdateRunCounts(ctx, runID, counts); err != nil {
		return eris.Wrap(err, "ledger: flush counts")
	}
	return nil
}

// Finish closes the run with a status derived from the final counts:
// COMPLETED when every file succeeded, FAILED when every file failed or the
// run was rolled back, PARTIAL otherwise.
func (l *Ledger) Finish(ctx context.Context, errMsg string) (*model.RunRecord, error) {
	l.mu.Lock()
	if l.run == nil {
		l.mu.Unlock()
		return nil, eris.New("ledger: no active run")
	}
	run := l.run
	counts := l.counts
	rolledBack := l.rolledBack
	l.mu.Unlock()

	status := statusFor(counts, errMsg)
	if rolledBack {
		status = model.RunFailed
	}
	if err := l.store.FinishRun(ctx, run.ID, status, counts, errMsg); err != nil {
		return nil, eris.Wrap(err, "ledger: finish run")
	}

	run.Status = status
	run.Counts = counts
	run.Error = errMsg
	now := time.Now().UTC()
	run.FinishedAt = &now

	zap.L().Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("files_succeeded", counts.FilesSucceeded),
		zap.Int("files_failed", counts.FilesFailed),
		zap.Int("tickets_created", counts.TicketsCreated),
		zap.Int("duplicates_found", counts.DuplicatesFound),
		zap.Int("review_entries", counts.ReviewEntries))
	return run, nil
}

func statusFor(c model.RunCounts, errMsg string) model.RunStatus {
	switch {
	case errMsg != "" && c.FilesSucceeded == 0:
		return model.RunFailed
	case c.FilesTotal > 0 && c.FilesFailed == c.FilesTotal:
		return model.RunFailed
	case c.FilesFailed > 0 || errMsg != "":
		return model.RunPartial
	default:
		return model.RunCompleted
	}
}
