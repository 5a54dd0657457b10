package model

import (
	"time"
)

// Well-known field keys extracted from every ticket page.
const (
	FieldTicketNumber   = "ticket_number"
	FieldHaulerID       = "hauler_id"
	FieldTicketDate     = "ticket_date"
	FieldMaterial       = "material"
	FieldQuantity       = "quantity"
	FieldManifestNumber = "manifest_number"
	FieldOriginSite     = "origin_site"
	FieldDestination    = "destination"
)

// RequiredFields are the fields that must resolve to a non-empty value for
// a ticket to persist without a review entry.
var RequiredFields = []string{FieldTicketNumber, FieldHaulerID, FieldTicketDate}

// Ticket is the domain record extracted from a single scanned ticket page:
// the resolved fields plus the identity attributes used for duplicate
// detection and compliance checks.
type Ticket struct {
	ID             string                   `json:"id"`
	RunID          string                   `json:"run_id"`
	SourceFile     string                   `json:"source_file"`
	PageNumber     int                      `json:"page_number"`
	TicketNumber   string                   `json:"ticket_number"`
	HaulerID       string                   `json:"hauler_id"`
	HaulerKey      string                   `json:"hauler_key"`
	TicketDate     time.Time                `json:"ticket_date"`
	Regulated      bool                     `json:"regulated"`
	ManifestNumber string                   `json:"manifest_number"`
	Fields         map[string]ResolvedField `json:"fields"`
	RequiresReview bool                     `json:"requires_review"`
	CreatedAt      time.Time                `json:"created_at"`
}

// Field returns the resolved field for key, or a zero ResolvedField when
// the key was never resolved.
func (t *Ticket) Field(key string) ResolvedField {
	if t.Fields == nil {
		return ResolvedField{Field: key, Tier: TierSystemDefault}
	}
	rf, ok := t.Fields[key]
	if !ok {
		return ResolvedField{Field: key, Tier: TierSystemDefault}
	}
	return rf
}

// DuplicateLink relates a newly processed ticket to the prior ticket it
// duplicates. Links are append-only; the duplicate ticket is still
// persisted, flagged for review.
type DuplicateLink struct {
	ID           string    `json:"id"`
	TicketID     string    `json:"ticket_id"`
	DuplicateOf  string    `json:"duplicate_of"`
	TicketNumber string    `json:"ticket_number"`
	HaulerKey    string    `json:"hauler_key"`
	RunID        string    `json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
}
