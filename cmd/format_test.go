package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ridgehaul/ticketflow/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 8, 25, 22, 30, 0, 0, time.UTC)
	runs := []model.RunRecord{
		{
			ID:     "abc12345-6789-0000-0000-000000000000",
			JobID:  "nightly",
			Status: model.RunCompleted,
			Counts: model.RunCounts{
				FilesTotal: 12, FilesSucceeded: 12,
				TicketsCreated: 240, DuplicatesFound: 3, ReviewEntries: 7,
			},
			StartedAt: now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			JobID:     "adhoc",
			Status:    model.RunPartial,
			Counts:    model.RunCounts{FilesTotal: 4, FilesSucceeded: 3, FilesFailed: 1},
			StartedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "RUN ID")
	assert.Contains(t, output, "nightly")
	assert.Contains(t, output, "COMPLETED")
	assert.Contains(t, output, "12/12")
	assert.Contains(t, output, "PARTIAL")
	assert.Contains(t, output, "3/4")
	assert.Contains(t, output, "2026-08-25 22:30")
}

func TestFormatReviewList(t *testing.T) {
	now := time.Date(2026, 8, 25, 22, 30, 0, 0, time.UTC)
	entries := []model.ReviewEntry{
		{
			ID: "e1", Severity: model.SeverityCritical, Reason: model.ReasonMissingEvidence,
			SourceFile: "acme/2026-08-25/scan-001.pdf", PageNumber: 3,
			State: model.ReviewOpen, CreatedAt: now,
		},
		{
			ID: "e2", Severity: model.SeverityWarning, Reason: model.ReasonDuplicate,
			SourceFile: "acme/2026-08-25/scan-002.pdf", PageNumber: 1,
			State: model.ReviewResolved, CreatedAt: now,
		},
	}

	var buf bytes.Buffer
	formatReviewList(&buf, entries)

	output := buf.String()
	assert.Contains(t, output, "SEVERITY")
	assert.Contains(t, output, "CRITICAL")
	assert.Contains(t, output, "MISSING_EVIDENCE")
	assert.Contains(t, output, "scan-001.pdf")
	assert.Contains(t, output, "resolved")
}
