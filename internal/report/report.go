// Package report builds read-only summaries of finished runs for the CLI
// and the review API. It never mutates the store.
package report

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ridgehaul/ticketflow/internal/model"
	"github.com/ridgehaul/ticketflow/internal/store"
)

// RunReport is the full picture of one run: the ledger record plus the
// review workload it produced.
type RunReport struct {
	Run            *model.RunRecord         `json:"run"`
	TicketsFlagged int                      `json:"tickets_flagged"`
	OpenReviews    int                      `json:"open_reviews"`
	BySeverity     map[model.Severity]int   `json:"by_severity,omitempty"`
	ByReason       map[model.ReasonCode]int `json:"by_reason,omitempty"`
	Entries        []model.ReviewEntry      `json:"entries,omitempty"`
}

// BuildRunReport assembles the report for one run.
func BuildRunReport(ctx context.Context, st store.Store, runID string) (*RunReport, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "report: load run %s", runID)
	}

	entries, err := st.ListReviewEntries(ctx, store.ReviewFilter{RunID: runID, Limit: 10000})
	if err != nil {
		return nil, eris.Wrapf(err, "report: load review entries for %s", runID)
	}

	flagged := true
	tickets, err := st.ListTickets(ctx, store.TicketFilter{RunID: runID, RequiresReview: &flagged, Limit: 10000})
	if err != nil {
		return nil, eris.Wrapf(err, "report: load flagged tickets for %s", runID)
	}

	rep := &RunReport{
		Run:            run,
		TicketsFlagged: len(tickets),
		BySeverity:     make(map[model.Severity]int),
		ByReason:       make(map[model.ReasonCode]int),
		Entries:        entries,
	}
	for _, e := range entries {
		if e.State == model.ReviewOpen {
			rep.OpenReviews++
		}
		rep.BySeverity[e.Severity]++
		rep.ByReason[e.Reason]++
	}
	return rep, nil
}
