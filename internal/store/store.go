// Package store persists tickets, duplicate links, review entries, and run
// records. The pipeline depends only on the Store interface; sqlite is the
// default backend, postgres the shared-deployment one.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ridgehaul/ticketflow/internal/model"
)

// ErrNotFound reports that a requested entity does not exist. Backends wrap
// it with the entity kind and id; check with eris.Is.
var ErrNotFound = eris.New("not found")

// TicketFilter specifies criteria for listing tickets.
type TicketFilter struct {
	RunID          string `json:"run_id,omitempty"`
	TicketNumber   string `json:"ticket_number,omitempty"`
	HaulerKey      string `json:"hauler_key,omitempty"`
	RequiresReview *bool  `json:"requires_review,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

// ReviewFilter specifies criteria for listing review entries.
type ReviewFilter struct {
	RunID    string            `json:"run_id,omitempty"`
	State    model.ReviewState `json:"state,omitempty"`
	Severity model.Severity    `json:"severity,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	JobID  string          `json:"job_id,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store is the persistence interface for the ticket pipeline.
type Store interface {
	// Tickets
	CreateTicket(ctx context.Context, t *model.Ticket) error
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]model.Ticket, error)

	// Duplicate detection support. Returns the id of the earliest ticket
	// with the given key persisted in [since, until], or "" when none.
	FindDuplicateCandidate(ctx context.Context, ticketNumber, haulerKey string, since, until time.Time) (string, error)
	InsertDuplicateLink(ctx context.Context, link *model.DuplicateLink) error

	// Review queue
	InsertReviewEntry(ctx context.Context, entry *model.ReviewEntry) error
	ListReviewEntries(ctx context.Context, filter ReviewFilter) ([]model.ReviewEntry, error)
	ResolveReviewEntry(ctx context.Context, id string) error

	// Run ledger
	CreateRun(ctx context.Context, run *model.RunRecord) error
	UpdateRunCounts(ctx context.Context, runID string, counts model.RunCounts) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, counts model.RunCounts, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error)

	// DeleteRunArtifacts removes every ticket, duplicate link, and review
	// entry created by the run. The run record itself is kept so the
	// rollback stays visible in the ledger.
	DeleteRunArtifacts(ctx context.Context, runID string) (int, error)

	// Manual corrections
	UpsertCorrection(ctx context.Context, c *model.Correction) error
	ListCorrections(ctx context.Context, sourceFile string) ([]model.Correction, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
