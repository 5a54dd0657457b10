package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgehaul/ticketflow/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateTicket(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO tickets`).
		WithArgs(pgxmock.AnyArg(), "run-1", "scan-001.pdf", 1, "T-42", "Acme Hauling", "acme hauling",
			pgxmock.AnyArg(), false, "", pgxmock.AnyArg(), false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tk := &model.Ticket{
		RunID:        "run-1",
		SourceFile:   "scan-001.pdf",
		PageNumber:   1,
		TicketNumber: "T-42",
		HaulerID:     "Acme Hauling",
		HaulerKey:    "acme hauling",
		TicketDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateTicket(context.Background(), tk))
	assert.NotEmpty(t, tk.ID)
	assert.False(t, tk.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindDuplicateCandidate_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM tickets`).
		WithArgs("T-42", "acme", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	id, err := s.FindDuplicateCandidate(context.Background(), "T-42", "acme",
		time.Now().AddDate(0, 0, -120), time.Now())
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindDuplicateCandidate_Hit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM tickets`).
		WithArgs("T-42", "acme", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("orig-ticket-id"))

	id, err := s.FindDuplicateCandidate(context.Background(), "T-42", "acme",
		time.Now().AddDate(0, 0, -120), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "orig-ticket-id", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveReviewEntry_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE review_entries SET state`).
		WithArgs(string(model.ReviewResolved), pgxmock.AnyArg(), "missing-id", string(model.ReviewOpen)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.ResolveReviewEntry(context.Background(), "missing-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, job_id, status, counts, config, error, started_at, finished_at FROM runs`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs(string(model.RunCompleted), pgxmock.AnyArg(), "", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishRun(context.Background(), "run-1", model.RunCompleted,
		model.RunCounts{FilesTotal: 5, FilesSucceeded: 5}, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteRunArtifacts_Transactional(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM duplicate_links`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM review_entries`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM tickets`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectCommit()

	n, err := s.DeleteRunArtifacts(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteRunArtifacts_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM duplicate_links`).
		WithArgs("run-1").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := s.DeleteRunArtifacts(context.Background(), "run-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCorrection(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(source_file, page_number, field\)`).
		WithArgs(pgxmock.AnyArg(), "scan-003.pdf", 2, model.FieldQuantity, "14.5", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	c := &model.Correction{
		SourceFile: "scan-003.pdf",
		PageNumber: 2,
		Field:      model.FieldQuantity,
		Value:      "14.5",
	}
	require.NoError(t, s.UpsertCorrection(context.Background(), c))
	assert.NotEmpty(t, c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
