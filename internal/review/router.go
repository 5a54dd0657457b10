// Package review classifies failed or ambiguous pipeline outcomes and
// records them for human resolution.
package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgehaul/ticketflow/internal/model"
)

// Sink persists review entries. Satisfied by store.Store.
type Sink interface {
	InsertReviewEntry(ctx context.Context, entry *model.ReviewEntry) error
}

// PageRef identifies the originating page of a routed exception.
type PageRef struct {
	RunID      string
	TicketID   string
	SourceFile string
	PageNumber int
}

// Router builds and records review entries. Severity is a pure function of
// the reason code so routing stays deterministic across reruns.
type Router struct {
	sink Sink
}

// NewRouter creates a Router writing to sink.
func NewRouter(sink Sink) *Router {
	return &Router{sink: sink}
}

// SeverityFor maps a reason code onto its severity. Missing evidence on a
// regulated ticket is always CRITICAL; other required-field failures are
// WARNING; everything informational is INFO.
func SeverityFor(reason model.ReasonCode) model.Severity {
	switch reason {
	case model.ReasonMissingEvidence:
		return model.SeverityCritical
	case model.ReasonMissingField, model.ReasonExtractionFailed, model.ReasonDuplicate:
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}

// Route records one review entry for the given page. Multiple entries per
// page are expected; each call records independently so the diagnostic
// history stays complete.
func (r *Router) Route(ctx context.Context, ref PageRef, reason model.ReasonCode, evidence map[string]string) (*model.ReviewEntry, error) {
	entry := &model.ReviewEntry{
		ID:         uuid.New().String(),
		RunID:      ref.RunID,
		TicketID:   ref.TicketID,
		SourceFile: ref.SourceFile,
		PageNumber: ref.PageNumber,
		Reason:     reason,
		Severity:   SeverityFor(reason),
		Evidence:   evidence,
		State:      model.ReviewOpen,
		CreatedAt:  time.Now().UTC(),
	}

	if err := r.sink.InsertReviewEntry(ctx, entry); err != nil {
		return nil, eris.Wrapf(err, "review: route %s for %s", reason, ref.SourceFile)
	}

	zap.L().Info("review: entry routed",
		zap.String("file", ref.SourceFile),
		zap.Int("page", ref.PageNumber),
		zap.String("reason", string(reason)),
		zap.String("severity", string(entry.Severity)),
	)
	return entry, nil
}
