package model

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a batch run.
type RunStatus string

const (
	RunInProgress RunStatus = "IN_PROGRESS"
	RunCompleted  RunStatus = "COMPLETED"
	RunPartial    RunStatus = "PARTIAL"
	RunFailed     RunStatus = "FAILED"
)

// ExitCode maps a terminal run status onto the process exit code.
func (s RunStatus) ExitCode() int {
	switch s {
	case RunCompleted:
		return 0
	case RunPartial:
		return 2
	default:
		return 3
	}
}

// RunCounts aggregates per-run outcome tallies. The page accounting
// invariant holds at all times: every page attempted lands in exactly one of
// TicketsCreated, TicketsUpdated, DuplicatesFound (also created), or is
// covered by an error count, and every anomaly has a review entry.
type RunCounts struct {
	FilesTotal      int `json:"files_total"`
	FilesSucceeded  int `json:"files_succeeded"`
	FilesFailed     int `json:"files_failed"`
	FilesRetried    int `json:"files_retried"`
	Pages           int `json:"pages"`
	TicketsCreated  int `json:"tickets_created"`
	TicketsUpdated  int `json:"tickets_updated"`
	DuplicatesFound int `json:"duplicates_found"`
	ReviewEntries   int `json:"review_entries"`
	Errors          int `json:"errors"`
}

// Add accumulates a delta into the counts.
func (c *RunCounts) Add(d RunCounts) {
	c.FilesTotal += d.FilesTotal
	c.FilesSucceeded += d.FilesSucceeded
	c.FilesFailed += d.FilesFailed
	c.FilesRetried += d.FilesRetried
	c.Pages += d.Pages
	c.TicketsCreated += d.TicketsCreated
	c.TicketsUpdated += d.TicketsUpdated
	c.DuplicatesFound += d.DuplicatesFound
	c.ReviewEntries += d.ReviewEntries
	c.Errors += d.Errors
}

// FilesProcessed is the number of files that reached a terminal state.
func (c RunCounts) FilesProcessed() int {
	return c.FilesSucceeded + c.FilesFailed
}

// RunRecord is the durable audit record of one processing run. It is the
// only entity mutated across a run's lifetime: created at start, counts
// applied incrementally, finalized once at the end.
type RunRecord struct {
	ID         string          `json:"id"`
	JobID      string          `json:"job_id"`
	Status     RunStatus       `json:"status"`
	Counts     RunCounts       `json:"counts"`
	Config     json.RawMessage `json:"config,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
}
