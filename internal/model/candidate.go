package model

import (
	"strings"
	"time"
)

// CandidateValue is one proposed value for one field of one ticket, tagged
// with its origin and confidence. Immutable once created; many candidates
// may exist per field.
type CandidateValue struct {
	Field      string     `json:"field"`
	Value      string     `json:"value"`
	Tier       SourceTier `json:"tier"`
	Confidence float64    `json:"confidence"`
	ProducedAt time.Time  `json:"produced_at"`
}

// Empty reports whether the candidate carries no usable value. Empty
// candidates are never selected by the resolver.
func (c CandidateValue) Empty() bool {
	return strings.TrimSpace(c.Value) == ""
}

// ResolvedField is the single authoritative value chosen among candidates
// for a field, with the losing alternatives retained for audit. A new
// resolution produces a new ResolvedField; existing ones are never mutated.
type ResolvedField struct {
	Field      string           `json:"field"`
	Value      string           `json:"value"`
	Tier       SourceTier       `json:"tier"`
	Confidence float64          `json:"confidence"`
	Rejected   []CandidateValue `json:"rejected,omitempty"`
}

// Missing reports whether resolution fell through to the system default
// with no value.
func (r ResolvedField) Missing() bool {
	return r.Value == ""
}
