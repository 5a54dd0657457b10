// Package compliance enforces mandatory-evidence rules for regulated
// material tickets.
package compliance

import (
	"strings"

	"github.com/ridgehaul/ticketflow/internal/model"
)

// Result is the outcome of a compliance check.
type Result struct {
	OK              bool
	MissingEvidence bool
	// Evidence carries structured context for the review entry when the
	// check fails.
	Evidence map[string]string
}

// Validate applies the mandatory-evidence rule to a ticket. Only regulated
// tickets are checked; everything else passes.
//
// On a missing manifest number the ticket is NOT rejected: the caller must
// route it to review at CRITICAL severity with reason MISSING_EVIDENCE.
// There is deliberately no error return and no path that drops or silently
// accepts a regulated ticket without evidence.
func Validate(t *model.Ticket) Result {
	if !t.Regulated {
		return Result{OK: true}
	}

	if strings.TrimSpace(t.ManifestNumber) != "" {
		return Result{OK: true}
	}

	ev := map[string]string{
		"ticket_number": t.TicketNumber,
		"hauler_id":     t.HaulerID,
		"material":      t.Field(model.FieldMaterial).Value,
	}
	return Result{MissingEvidence: true, Evidence: ev}
}
