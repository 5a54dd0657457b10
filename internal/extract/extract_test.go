package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgehaul/ticketflow/internal/model"
)

func TestSplitPages(t *testing.T) {
	raw := "page one text\fpage two text\f"
	pages := SplitPages("scan.pdf", raw)

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "page one text", pages[0].Text)
	assert.Equal(t, 2, pages[1].PageNumber)
	assert.Equal(t, "scan.pdf", pages[1].SourceFile)
}

func TestSplitPages_KeepsBlankMiddlePage(t *testing.T) {
	raw := "first\f\fthird\f"
	pages := SplitPages("scan.pdf", raw)

	require.Len(t, pages, 3)
	assert.Equal(t, "", pages[1].Text)
	assert.Equal(t, 3, pages[2].PageNumber)
	assert.Equal(t, "third", pages[2].Text)
}

func TestSplitPages_SinglePageNoFormFeed(t *testing.T) {
	pages := SplitPages("scan.pdf", "only page")
	require.Len(t, pages, 1)
	assert.Equal(t, "only page", pages[0].Text)
}

const sampleTicketPage = `
RIDGELINE AGGREGATE          HAUL TICKET
Ticket #: T-88401
Date: 03/10/2026
Hauler: Acme Hauling LLC
Material: Class II Fill
Qty: 14.5
Manifest No: M-2210-A
Origin: North Pit
Destination: Cell 4 Disposal
`

func TestPatternExtractor_LabeledFields(t *testing.T) {
	e := NewPatternExtractor()

	cands, err := e.ExtractPage(context.Background(), Page{SourceFile: "scan.pdf", PageNumber: 1, Text: sampleTicketPage})
	require.NoError(t, err)

	byField := make(map[string]model.CandidateValue)
	for _, c := range cands {
		byField[c.Field] = c
	}

	assert.Equal(t, "T-88401", byField[model.FieldTicketNumber].Value)
	assert.Equal(t, "03/10/2026", byField[model.FieldTicketDate].Value)
	assert.Equal(t, "Acme Hauling LLC", byField[model.FieldHaulerID].Value)
	assert.Equal(t, "Class II Fill", byField[model.FieldMaterial].Value)
	assert.Equal(t, "14.5", byField[model.FieldQuantity].Value)
	assert.Equal(t, "M-2210-A", byField[model.FieldManifestNumber].Value)

	// Labeled matches score medium, not high: the resolver must prefer
	// structured metadata and manual corrections over them.
	assert.Equal(t, model.TierExtractedMedium, byField[model.FieldTicketNumber].Tier)
}

func TestPatternExtractor_BareFallbacks(t *testing.T) {
	e := NewPatternExtractor()

	cands, err := e.ExtractPage(context.Background(), Page{Text: "load #98231 delivered 04/02/2026 to site"})
	require.NoError(t, err)

	byField := make(map[string]model.CandidateValue)
	for _, c := range cands {
		byField[c.Field] = c
	}

	require.Contains(t, byField, model.FieldTicketNumber)
	assert.Equal(t, "98231", byField[model.FieldTicketNumber].Value)
	assert.Equal(t, model.TierExtractedLow, byField[model.FieldTicketNumber].Tier)
	assert.Equal(t, "04/02/2026", byField[model.FieldTicketDate].Value)
}

func TestPatternExtractor_BareSkippedWhenLabeledPresent(t *testing.T) {
	e := NewPatternExtractor()

	cands, err := e.ExtractPage(context.Background(), Page{Text: "Ticket #: T-1\nref #99999 on back"})
	require.NoError(t, err)

	var values []string
	for _, c := range cands {
		if c.Field == model.FieldTicketNumber {
			values = append(values, c.Value)
		}
	}
	assert.Equal(t, []string{"T-1"}, values)
}

func TestPatternExtractor_EmptyPage(t *testing.T) {
	e := NewPatternExtractor()

	cands, err := e.ExtractPage(context.Background(), Page{Text: "   \n  "})
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor(Config{Provider: "tesseract"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestNewExtractor_AnthropicRequiresKey(t *testing.T) {
	_, err := NewExtractor(Config{Provider: "anthropic"}, "")
	require.Error(t, err)
}
