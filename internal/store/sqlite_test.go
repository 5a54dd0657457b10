package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgehaul/ticketflow/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedRun(t *testing.T, st *SQLiteStore, id string) {
	t.Helper()
	require.NoError(t, st.CreateRun(context.Background(), &model.RunRecord{
		ID:        id,
		JobID:     "job-" + id,
		Status:    model.RunInProgress,
		StartedAt: time.Now().UTC(),
	}))
}

func seedTicket(t *testing.T, st *SQLiteStore, runID, number, haulerKey string, date time.Time) *model.Ticket {
	t.Helper()
	tk := &model.Ticket{
		ID:           uuid.New().String(),
		RunID:        runID,
		SourceFile:   "scan-001.pdf",
		PageNumber:   1,
		TicketNumber: number,
		HaulerID:     "Acme Hauling",
		HaulerKey:    haulerKey,
		TicketDate:   date,
		Fields: map[string]model.ResolvedField{
			model.FieldTicketNumber: {Field: model.FieldTicketNumber, Value: number, Tier: model.TierExtractedHigh, Confidence: 0.95},
		},
	}
	require.NoError(t, st.CreateTicket(context.Background(), tk))
	return tk
}

// --- Tickets ---

func TestSQLite_CreateAndGetTicket(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedRun(t, st, "run-1")

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	tk := seedTicket(t, st, "run-1", "T-1001", "acme hauling", date)

	got, err := st.GetTicket(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "T-1001", got.TicketNumber)
	assert.Equal(t, "acme hauling", got.HaulerKey)
	assert.True(t, got.TicketDate.Equal(date))
	assert.Equal(t, model.TierExtractedHigh, got.Field(model.FieldTicketNumber).Tier)
}

func TestSQLite_GetTicket_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetTicket(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListTickets_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedRun(t, st, "run-1")
	seedRun(t, st, "run-2")

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	seedTicket(t, st, "run-1", "T-1", "acme", date)
	seedTicket(t, st, "run-1", "T-2", "acme", date)
	seedTicket(t, st, "run-2", "T-3", "rival", date)

	byRun, err := st.ListTickets(ctx, TicketFilter{RunID: "run-1"})
	require.NoError(t, err)
	assert.Len(t, byRun, 2)

	byHauler, err := st.ListTickets(ctx, TicketFilter{HaulerKey: "rival"})
	require.NoError(t, err)
	require.Len(t, byHauler, 1)
	assert.Equal(t, "T-3", byHauler[0].TicketNumber)
}

// --- Duplicate window ---

func TestSQLite_FindDuplicateCandidate_Window(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedRun(t, st, "run-1")

	origDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	orig := seedTicket(t, st, "run-1", "T-500", "acme", origDate)

	// Same key, window covering the original date.
	id, err := st.FindDuplicateCandidate(ctx, "T-500", "acme",
		origDate.AddDate(0, 0, -120), origDate.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, orig.ID, id)

	// Window that excludes the original date.
	id, err = st.FindDuplicateCandidate(ctx, "T-500", "acme",
		origDate.AddDate(0, 0, 1), origDate.AddDate(0, 0, 120))
	require.NoError(t, err)
	assert.Empty(t, id)

	// Boundary: since exactly equal to the ticket date is inclusive.
	id, err = st.FindDuplicateCandidate(ctx, "T-500", "acme", origDate, origDate)
	require.NoError(t, err)
	assert.Equal(t, orig.ID, id)

	// Different hauler never matches.
	id, err = st.FindDuplicateCandidate(ctx, "T-500", "rival",
		origDate.AddDate(0, 0, -120), origDate.AddDate(0, 0, 120))
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSQLite_FindDuplicateCandidate_ReturnsEarliest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedRun(t, st, "run-1")

	date := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	mk := func(id string, createdAt time.Time) {
		require.NoError(t, st.CreateTicket(ctx, &model.Ticket{
			ID: id, RunID: "run-1", SourceFile: "scan-001.pdf", PageNumber: 1,
			TicketNumber: "T-9", HaulerID: "Acme", HaulerKey: "acme",
			TicketDate: date, CreatedAt: createdAt,
		}))
	}
	mk("first", now)
	mk("later", now.Add(time.Minute))

	id, err := st.FindDuplicateCandidate(ctx, "T-9", "acme",
		date.AddDate(0, 0, -1), date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "first", id)
}

// --- Review entries ---

func TestSQLite_ReviewEntry_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedRun(t, st, "run-1")

	entry := &model.ReviewEntry{
		RunID:      "run-1",
		SourceFile: "scan-002.pdf",
		PageNumber: 4,
		Reason:     model.ReasonMissingEvidence,
		Severity:   model.SeverityCritical,
		Evidence:   map[string]string{"manifest_number": ""},
		State:      model.ReviewOpen,
	}
	require.NoError(t, st.InsertReviewEntry(ctx, entry))
	require.NotEmpty(t, entry.ID)

	open, err := st.ListReviewEntries(ctx, ReviewFilter{State: model.ReviewOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, model.ReasonMissingEvidence, open[0].Reason)
	assert.Equal(t, "", open[0].Evidence["manifest_number"])

	require.NoError(t, st.ResolveReviewEntry(ctx, entry.ID))

	open, err = st.ListReviewEntries(ctx, ReviewFilter{State: model.ReviewOpen})
	require.NoError(t, err)
	assert.Empty(t, open)

	resolved, err := st.ListReviewEntries(ctx, ReviewFilter{State: model.ReviewResolved})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].ResolvedAt)
}

func TestSQLite_ResolveReviewEntry_AlreadyResolved(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedRun(t, st, "run-1")

	entry := &model.ReviewEntry{
		RunID:      "run-1",
		SourceFile: "scan-002.pdf",
		PageNumber: 1,
		Reason:     model.ReasonMissingField,
		Severity:   model.SeverityCritical,
		State:      model.ReviewOpen,
	}
	require.NoError(t, st.InsertReviewEntry(ctx, entry))
	require.NoError(t, st.ResolveReviewEntry(ctx, entry.ID))

	err := st.ResolveReviewEntry(ctx, entry.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// --- Run ledger ---

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := &model.RunRecord{
		ID:        "run-abc",
		JobID:     "nightly",
		Status:    model.RunInProgress,
		Config:    []byte(`{"concurrency":4}`),
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateRun(ctx, run))

	counts := model.RunCounts{FilesTotal: 10, FilesSucceeded: 3}
	require.NoError(t, st.UpdateRunCounts(ctx, "run-abc", counts))

	mid, err := st.GetRun(ctx, "run-abc")
	require.NoError(t, err)
	assert.Equal(t, model.RunInProgress, mid.Status)
	assert.Equal(t, 3, mid.Counts.FilesSucceeded)
	assert.Nil(t, mid.FinishedAt)
	assert.JSONEq(t, `{"concurrency":4}`, string(mid.Config))

	counts.FilesSucceeded = 8
	counts.FilesFailed = 2
	require.NoError(t, st.FinishRun(ctx, "run-abc", model.RunPartial, counts, "2 files failed"))

	done, err := st.GetRun(ctx, "run-abc")
	require.NoError(t, err)
	assert.Equal(t, model.RunPartial, done.Status)
	assert.Equal(t, "2 files failed", done.Error)
	require.NotNil(t, done.FinishedAt)
}

func TestSQLite_ListRuns_StatusFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, status := range []model.RunStatus{model.RunCompleted, model.RunFailed, model.RunCompleted} {
		run := &model.RunRecord{
			ID:        uuid.New().String(),
			JobID:     "batch",
			Status:    model.RunInProgress,
			StartedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, st.CreateRun(ctx, run))
		require.NoError(t, st.FinishRun(ctx, run.ID, status, model.RunCounts{}, ""))
	}

	completed, err := st.ListRuns(ctx, RunFilter{Status: model.RunCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestSQLite_DeleteRunArtifacts_KeepsRunRecord(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedRun(t, st, "run-1")
	seedRun(t, st, "run-2")

	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	t1 := seedTicket(t, st, "run-1", "T-1", "acme", date)
	t2 := seedTicket(t, st, "run-1", "T-1", "acme", date)
	keep := seedTicket(t, st, "run-2", "T-2", "acme", date)

	require.NoError(t, st.InsertDuplicateLink(ctx, &model.DuplicateLink{
		TicketID: t2.ID, DuplicateOf: t1.ID, TicketNumber: "T-1", HaulerKey: "acme", RunID: "run-1",
	}))
	require.NoError(t, st.InsertReviewEntry(ctx, &model.ReviewEntry{
		RunID: "run-1", TicketID: t2.ID, SourceFile: "scan-001.pdf", PageNumber: 1,
		Reason: model.ReasonDuplicate, Severity: model.SeverityWarning, State: model.ReviewOpen,
	}))

	n, err := st.DeleteRunArtifacts(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n) // 2 tickets + 1 link + 1 review entry

	// Artifacts gone, run record and the other run's ticket intact.
	remaining, err := st.ListTickets(ctx, TicketFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.ID, remaining[0].ID)

	_, err = st.GetRun(ctx, "run-1")
	require.NoError(t, err)
}

// --- Corrections ---

func TestSQLite_Corrections_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Correction{
		SourceFile:  "scan-003.pdf",
		PageNumber:  2,
		Field:       model.FieldQuantity,
		Value:       "14.5",
		CorrectedBy: "jmorales",
	}
	require.NoError(t, st.UpsertCorrection(ctx, c))

	// Same (file, page, field) updates in place.
	c2 := &model.Correction{
		SourceFile:  "scan-003.pdf",
		PageNumber:  2,
		Field:       model.FieldQuantity,
		Value:       "15.0",
		CorrectedBy: "jmorales",
	}
	require.NoError(t, st.UpsertCorrection(ctx, c2))

	got, err := st.ListCorrections(ctx, "scan-003.pdf")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "15.0", got[0].Value)
}
