package model

import "time"

// Correction is a human reviewer's fix for one field of one scanned page.
// Corrections come back from the review workflow (typically as a
// spreadsheet) and feed the resolver as MANUAL-tier candidates, which no
// automated source can override.
type Correction struct {
	ID          string    `json:"id"`
	SourceFile  string    `json:"source_file"`
	PageNumber  int       `json:"page_number"`
	Field       string    `json:"field"`
	Value       string    `json:"value"`
	CorrectedBy string    `json:"corrected_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Candidate converts the correction into its resolver candidate.
func (c Correction) Candidate() CandidateValue {
	return CandidateValue{
		Field:      c.Field,
		Value:      c.Value,
		Tier:       TierManual,
		Confidence: 1.0,
		ProducedAt: c.CreatedAt,
	}
}
