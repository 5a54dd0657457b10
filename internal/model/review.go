package model

import "time"

// Severity classifies a review entry for triage.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// ReasonCode identifies why a page was routed to review.
type ReasonCode string

const (
	// ReasonMissingEvidence is a regulated ticket without a manifest number.
	ReasonMissingEvidence ReasonCode = "MISSING_EVIDENCE"
	// ReasonMissingField is a required field that failed to resolve.
	ReasonMissingField ReasonCode = "MISSING_FIELD"
	// ReasonDuplicate is a ticket matching a prior one inside the window.
	ReasonDuplicate ReasonCode = "DUPLICATE"
	// ReasonExtractionFailed is a page the extraction layer could not read.
	ReasonExtractionFailed ReasonCode = "EXTRACTION_FAILED"
	// ReasonInferredSource is an informational anomaly: a value was taken
	// from an inferred rather than explicit source.
	ReasonInferredSource ReasonCode = "INFERRED_SOURCE"
)

// ReviewState tracks resolution of a review entry. The pipeline only ever
// creates entries as open; resolution happens in the review workflow.
type ReviewState string

const (
	ReviewOpen     ReviewState = "open"
	ReviewResolved ReviewState = "resolved"
)

// ReviewEntry is a routed exception requiring human resolution. Multiple
// entries may exist for the same page; each is recorded independently.
type ReviewEntry struct {
	ID         string            `json:"id"`
	RunID      string            `json:"run_id"`
	TicketID   string            `json:"ticket_id,omitempty"`
	SourceFile string            `json:"source_file"`
	PageNumber int               `json:"page_number"`
	Reason     ReasonCode        `json:"reason"`
	Severity   Severity          `json:"severity"`
	Evidence   map[string]string `json:"evidence,omitempty"`
	State      ReviewState       `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}
