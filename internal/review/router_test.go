package review

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgehaul/ticketflow/internal/model"
)

type memSink struct {
	entries []*model.ReviewEntry
	err     error
}

func (m *memSink) InsertReviewEntry(_ context.Context, e *model.ReviewEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, model.SeverityCritical, SeverityFor(model.ReasonMissingEvidence))
	assert.Equal(t, model.SeverityWarning, SeverityFor(model.ReasonMissingField))
	assert.Equal(t, model.SeverityWarning, SeverityFor(model.ReasonDuplicate))
	assert.Equal(t, model.SeverityWarning, SeverityFor(model.ReasonExtractionFailed))
	assert.Equal(t, model.SeverityInfo, SeverityFor(model.ReasonInferredSource))
}

func TestRoute_RecordsOpenEntry(t *testing.T) {
	sink := &memSink{}
	r := NewRouter(sink)

	entry, err := r.Route(context.Background(), PageRef{
		RunID:      "run-1",
		SourceFile: "scans/0034.pdf",
		PageNumber: 2,
	}, model.ReasonMissingEvidence, map[string]string{"ticket_number": "T-7"})
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, model.ReviewOpen, entry.State)
	assert.Equal(t, model.SeverityCritical, entry.Severity)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, entry, sink.entries[0])
}

func TestRoute_MultipleEntriesPerPage(t *testing.T) {
	sink := &memSink{}
	r := NewRouter(sink)
	ref := PageRef{RunID: "run-1", SourceFile: "scans/0034.pdf", PageNumber: 1}

	_, err := r.Route(context.Background(), ref, model.ReasonDuplicate, nil)
	require.NoError(t, err)
	_, err = r.Route(context.Background(), ref, model.ReasonMissingField, map[string]string{"field": model.FieldQuantity})
	require.NoError(t, err)

	assert.Len(t, sink.entries, 2)
}

func TestRoute_SinkFailure(t *testing.T) {
	sink := &memSink{err: eris.New("db gone")}
	r := NewRouter(sink)

	_, err := r.Route(context.Background(), PageRef{SourceFile: "x.pdf"}, model.ReasonMissingField, nil)
	require.Error(t, err)
}
