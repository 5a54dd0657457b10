package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ridgehaul/ticketflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	job_id      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'IN_PROGRESS',
	counts      TEXT NOT NULL DEFAULT '{}',
	config      TEXT,
	error       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS tickets (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL REFERENCES runs(id),
	source_file     TEXT NOT NULL,
	page_number     INTEGER NOT NULL,
	ticket_number   TEXT NOT NULL,
	hauler_id       TEXT NOT NULL,
	hauler_key      TEXT NOT NULL,
	ticket_date     DATETIME NOT NULL,
	regulated       INTEGER NOT NULL DEFAULT 0,
	manifest_number TEXT NOT NULL DEFAULT '',
	fields          TEXT NOT NULL DEFAULT '{}',
	requires_review INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS duplicate_links (
	id            TEXT PRIMARY KEY,
	ticket_id     TEXT NOT NULL REFERENCES tickets(id),
	duplicate_of  TEXT NOT NULL REFERENCES tickets(id),
	ticket_number TEXT NOT NULL,
	hauler_key    TEXT NOT NULL,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS review_entries (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	ticket_id   TEXT,
	source_file TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	reason      TEXT NOT NULL,
	severity    TEXT NOT NULL,
	evidence    TEXT,
	state       TEXT NOT NULL DEFAULT 'open',
	created_at  DATETIME NOT NULL,
	resolved_at DATETIME
);

CREATE TABLE IF NOT EXISTS corrections (
	id           TEXT PRIMARY KEY,
	source_file  TEXT NOT NULL,
	page_number  INTEGER NOT NULL,
	field        TEXT NOT NULL,
	value        TEXT NOT NULL,
	corrected_by TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	UNIQUE(source_file, page_number, field)
);

CREATE INDEX IF NOT EXISTS idx_tickets_dupkey ON tickets(ticket_number, hauler_key, ticket_date);
CREATE INDEX IF NOT EXISTS idx_tickets_run ON tickets(run_id);
CREATE INDEX IF NOT EXISTS idx_review_run ON review_entries(run_id);
CREATE INDEX IF NOT EXISTS idx_review_state ON review_entries(state);
CREATE INDEX IF NOT EXISTS idx_links_run ON duplicate_links(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job_id);
CREATE INDEX IF NOT EXISTS idx_corrections_file ON corrections(source_file);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Tickets

func (s *SQLiteStore) CreateTicket(ctx context.Context, t *model.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	fieldsJSON, err := json.Marshal(t.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal ticket fields")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, run_id, source_file, page_number, ticket_number, hauler_id, hauler_key,
			ticket_date, regulated, manifest_number, fields, requires_review, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RunID, t.SourceFile, t.PageNumber, t.TicketNumber, t.HaulerID, t.HaulerKey,
		t.TicketDate.UTC(), boolToInt(t.Regulated), t.ManifestNumber, string(fieldsJSON),
		boolToInt(t.RequiresReview), t.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert ticket %s", t.TicketNumber)
}

func (s *SQLiteStore) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	return scanTicket(row)
}

func (s *SQLiteStore) ListTickets(ctx context.Context, filter TicketFilter) ([]model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.TicketNumber != "" {
		query += ` AND ticket_number = ?`
		args = append(args, filter.TicketNumber)
	}
	if filter.HaulerKey != "" {
		query += ` AND hauler_key = ?`
		args = append(args, filter.HaulerKey)
	}
	if filter.RequiresReview != nil {
		query += ` AND requires_review = ?`
		args = append(args, boolToInt(*filter.RequiresReview))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOr(filter.Limit, 100))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tickets")
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, eris.Wrap(rows.Err(), "sqlite: list tickets iterate")
}

func (s *SQLiteStore) FindDuplicateCandidate(ctx context.Context, ticketNumber, haulerKey string, since, until time.Time) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id FROM tickets
		 WHERE ticket_number = ? AND hauler_key = ? AND ticket_date >= ? AND ticket_date <= ?
		 ORDER BY created_at ASC LIMIT 1`,
		ticketNumber, haulerKey, since.UTC(), until.UTC(),
	)
	var id string
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: find duplicate candidate")
	}
	return id, nil
}

func (s *SQLiteStore) InsertDuplicateLink(ctx context.Context, link *model.DuplicateLink) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO duplicate_links (id, ticket_id, duplicate_of, ticket_number, hauler_key, run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		link.ID, link.TicketID, link.DuplicateOf, link.TicketNumber, link.HaulerKey, link.RunID, link.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert duplicate link %s -> %s", link.TicketID, link.DuplicateOf)
}

// Review queue

func (s *SQLiteStore) InsertReviewEntry(ctx context.Context, entry *model.ReviewEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	evidenceJSON, err := json.Marshal(entry.Evidence)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_entries (id, run_id, ticket_id, source_file, page_number, reason, severity, evidence, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, entry.TicketID, entry.SourceFile, entry.PageNumber,
		string(entry.Reason), string(entry.Severity), string(evidenceJSON), string(entry.State), entry.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert review entry for %s", entry.SourceFile)
}

func (s *SQLiteStore) ListReviewEntries(ctx context.Context, filter ReviewFilter) ([]model.ReviewEntry, error) {
	query := `SELECT id, run_id, ticket_id, source_file, page_number, reason, severity, evidence, state, created_at, resolved_at
		 FROM review_entries WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOr(filter.Limit, 200))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list review entries")
	}
	defer rows.Close()

	var entries []model.ReviewEntry
	for rows.Next() {
		var e model.ReviewEntry
		var ticketID, evidenceJSON sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.RunID, &ticketID, &e.SourceFile, &e.PageNumber,
			&e.Reason, &e.Severity, &evidenceJSON, &e.State, &e.CreatedAt, &resolvedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review entry")
		}
		e.TicketID = ticketID.String
		if evidenceJSON.Valid && evidenceJSON.String != "" && evidenceJSON.String != "null" {
			if err := json.Unmarshal([]byte(evidenceJSON.String), &e.Evidence); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal evidence")
			}
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			e.ResolvedAt = &t
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list review entries iterate")
}

func (s *SQLiteStore) ResolveReviewEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_entries SET state = ?, resolved_at = ? WHERE id = ? AND state = ?`,
		string(model.ReviewResolved), time.Now().UTC(), id, string(model.ReviewOpen),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve review entry %s", id)
	}
	return checkRowsAffected(res, "review entry", id)
}

// Run ledger

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.RunRecord) error {
	countsJSON, err := json.Marshal(run.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, job_id, status, counts, config, error, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.JobID, string(run.Status), string(countsJSON), nullIfEmpty(string(run.Config)), run.Error, run.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) UpdateRunCounts(ctx context.Context, runID string, counts model.RunCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET counts = ? WHERE id = ?`, string(countsJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run counts %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, counts model.RunCounts, errMsg string) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, counts = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), string(countsJSON), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job_id, status, counts, config, error, started_at, finished_at FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error) {
	query := `SELECT id, job_id, status, counts, config, error, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limitOr(filter.Limit, 100))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) DeleteRunArtifacts(ctx context.Context, runID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin rollback tx")
	}
	defer tx.Rollback()

	var total int64
	for _, stmt := range []string{
		`DELETE FROM duplicate_links WHERE run_id = ?`,
		`DELETE FROM review_entries WHERE run_id = ?`,
		`DELETE FROM tickets WHERE run_id = ?`,
	} {
		res, err := tx.ExecContext(ctx, stmt, runID)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: rollback run %s", runID)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit rollback tx")
	}
	return int(total), nil
}

// Manual corrections

func (s *SQLiteStore) UpsertCorrection(ctx context.Context, c *model.Correction) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO corrections (id, source_file, page_number, field, value, corrected_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_file, page_number, field)
		 DO UPDATE SET value = excluded.value, corrected_by = excluded.corrected_by, created_at = excluded.created_at`,
		c.ID, c.SourceFile, c.PageNumber, c.Field, c.Value, c.CorrectedBy, c.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert correction %s/%d/%s", c.SourceFile, c.PageNumber, c.Field)
}

func (s *SQLiteStore) ListCorrections(ctx context.Context, sourceFile string) ([]model.Correction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_file, page_number, field, value, corrected_by, created_at
		 FROM corrections WHERE source_file = ? ORDER BY page_number, field`, sourceFile)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list corrections")
	}
	defer rows.Close()

	var out []model.Correction
	for rows.Next() {
		var c model.Correction
		if err := rows.Scan(&c.ID, &c.SourceFile, &c.PageNumber, &c.Field, &c.Value, &c.CorrectedBy, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan correction")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list corrections iterate")
}

// helpers

const ticketColumns = `id, run_id, source_file, page_number, ticket_number, hauler_id, hauler_key,
	ticket_date, regulated, manifest_number, fields, requires_review, created_at`

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*model.Ticket, error) {
	var t model.Ticket
	var fieldsJSON string
	var regulated, requiresReview int

	err := row.Scan(&t.ID, &t.RunID, &t.SourceFile, &t.PageNumber, &t.TicketNumber, &t.HaulerID, &t.HaulerKey,
		&t.TicketDate, &regulated, &t.ManifestNumber, &fieldsJSON, &requiresReview, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "ticket")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan ticket")
	}

	t.Regulated = regulated != 0
	t.RequiresReview = requiresReview != 0
	if err := json.Unmarshal([]byte(fieldsJSON), &t.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal ticket fields")
	}
	return &t, nil
}

func scanRun(row scannable) (*model.RunRecord, error) {
	var r model.RunRecord
	var countsJSON string
	var configJSON, errMsg sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.JobID, &r.Status, &countsJSON, &configJSON, &errMsg, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(countsJSON), &r.Counts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal counts")
	}
	if configJSON.Valid {
		r.Config = json.RawMessage(configJSON.String)
	}
	r.Error = errMsg.String
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
