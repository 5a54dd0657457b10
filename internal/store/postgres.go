package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ridgehaul/ticketflow/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which is how the postgres store gets unit-tested without a server.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	job_id      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'IN_PROGRESS',
	counts      JSONB NOT NULL DEFAULT '{}',
	config      JSONB,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS tickets (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL REFERENCES runs(id),
	source_file     TEXT NOT NULL,
	page_number     INT NOT NULL,
	ticket_number   TEXT NOT NULL,
	hauler_id       TEXT NOT NULL,
	hauler_key      TEXT NOT NULL,
	ticket_date     TIMESTAMPTZ NOT NULL,
	regulated       BOOLEAN NOT NULL DEFAULT FALSE,
	manifest_number TEXT NOT NULL DEFAULT '',
	fields          JSONB NOT NULL DEFAULT '{}',
	requires_review BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS duplicate_links (
	id            TEXT PRIMARY KEY,
	ticket_id     TEXT NOT NULL REFERENCES tickets(id),
	duplicate_of  TEXT NOT NULL REFERENCES tickets(id),
	ticket_number TEXT NOT NULL,
	hauler_key    TEXT NOT NULL,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS review_entries (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	ticket_id   TEXT,
	source_file TEXT NOT NULL,
	page_number INT NOT NULL,
	reason      TEXT NOT NULL,
	severity    TEXT NOT NULL,
	evidence    JSONB,
	state       TEXT NOT NULL DEFAULT 'open',
	created_at  TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS corrections (
	id           TEXT PRIMARY KEY,
	source_file  TEXT NOT NULL,
	page_number  INT NOT NULL,
	field        TEXT NOT NULL,
	value        TEXT NOT NULL,
	corrected_by TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	UNIQUE(source_file, page_number, field)
);

CREATE INDEX IF NOT EXISTS idx_tickets_dupkey ON tickets(ticket_number, hauler_key, ticket_date);
CREATE INDEX IF NOT EXISTS idx_tickets_run ON tickets(run_id);
CREATE INDEX IF NOT EXISTS idx_review_run ON review_entries(run_id);
CREATE INDEX IF NOT EXISTS idx_review_state ON review_entries(state);
CREATE INDEX IF NOT EXISTS idx_links_run ON duplicate_links(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Tickets

func (s *PostgresStore) CreateTicket(ctx context.Context, t *model.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	fieldsJSON, err := json.Marshal(t.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal ticket fields")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tickets (id, run_id, source_file, page_number, ticket_number, hauler_id, hauler_key,
			ticket_date, regulated, manifest_number, fields, requires_review, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.RunID, t.SourceFile, t.PageNumber, t.TicketNumber, t.HaulerID, t.HaulerKey,
		t.TicketDate.UTC(), t.Regulated, t.ManifestNumber, fieldsJSON, t.RequiresReview, t.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert ticket %s", t.TicketNumber)
}

func (s *PostgresStore) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, run_id, source_file, page_number, ticket_number, hauler_id, hauler_key,
			ticket_date, regulated, manifest_number, fields, requires_review, created_at
		 FROM tickets WHERE id = $1`, id)
	return scanPGTicket(row)
}

func (s *PostgresStore) ListTickets(ctx context.Context, filter TicketFilter) ([]model.Ticket, error) {
	query := `SELECT id, run_id, source_file, page_number, ticket_number, hauler_id, hauler_key,
		ticket_date, regulated, manifest_number, fields, requires_review, created_at
	 FROM tickets WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.RunID != "" {
		query += ` AND run_id = ` + arg(filter.RunID)
	}
	if filter.TicketNumber != "" {
		query += ` AND ticket_number = ` + arg(filter.TicketNumber)
	}
	if filter.HaulerKey != "" {
		query += ` AND hauler_key = ` + arg(filter.HaulerKey)
	}
	if filter.RequiresReview != nil {
		query += ` AND requires_review = ` + arg(*filter.RequiresReview)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + arg(limitOr(filter.Limit, 100))
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tickets")
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		t, err := scanPGTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, eris.Wrap(rows.Err(), "postgres: list tickets iterate")
}

func (s *PostgresStore) FindDuplicateCandidate(ctx context.Context, ticketNumber, haulerKey string, since, until time.Time) (string, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id FROM tickets
		 WHERE ticket_number = $1 AND hauler_key = $2 AND ticket_date >= $3 AND ticket_date <= $4
		 ORDER BY created_at ASC LIMIT 1`,
		ticketNumber, haulerKey, since.UTC(), until.UTC(),
	)
	var id string
	err := row.Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: find duplicate candidate")
	}
	return id, nil
}

func (s *PostgresStore) InsertDuplicateLink(ctx context.Context, link *model.DuplicateLink) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO duplicate_links (id, ticket_id, duplicate_of, ticket_number, hauler_key, run_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		link.ID, link.TicketID, link.DuplicateOf, link.TicketNumber, link.HaulerKey, link.RunID, link.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert duplicate link %s -> %s", link.TicketID, link.DuplicateOf)
}

// Review queue

func (s *PostgresStore) InsertReviewEntry(ctx context.Context, entry *model.ReviewEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	evidenceJSON, err := json.Marshal(entry.Evidence)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO review_entries (id, run_id, ticket_id, source_file, page_number, reason, severity, evidence, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.RunID, entry.TicketID, entry.SourceFile, entry.PageNumber,
		string(entry.Reason), string(entry.Severity), evidenceJSON, string(entry.State), entry.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert review entry for %s", entry.SourceFile)
}

func (s *PostgresStore) ListReviewEntries(ctx context.Context, filter ReviewFilter) ([]model.ReviewEntry, error) {
	query := `SELECT id, run_id, ticket_id, source_file, page_number, reason, severity, evidence, state, created_at, resolved_at
	 FROM review_entries WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.RunID != "" {
		query += ` AND run_id = ` + arg(filter.RunID)
	}
	if filter.State != "" {
		query += ` AND state = ` + arg(string(filter.State))
	}
	if filter.Severity != "" {
		query += ` AND severity = ` + arg(string(filter.Severity))
	}
	query += ` ORDER BY created_at DESC LIMIT ` + arg(limitOr(filter.Limit, 200))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list review entries")
	}
	defer rows.Close()

	var entries []model.ReviewEntry
	for rows.Next() {
		var e model.ReviewEntry
		var ticketID *string
		var evidenceJSON []byte
		var resolvedAt *time.Time
		if err := rows.Scan(&e.ID, &e.RunID, &ticketID, &e.SourceFile, &e.PageNumber,
			&e.Reason, &e.Severity, &evidenceJSON, &e.State, &e.CreatedAt, &resolvedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review entry")
		}
		if ticketID != nil {
			e.TicketID = *ticketID
		}
		if len(evidenceJSON) > 0 && string(evidenceJSON) != "null" {
			if err := json.Unmarshal(evidenceJSON, &e.Evidence); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal evidence")
			}
		}
		e.ResolvedAt = resolvedAt
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list review entries iterate")
}

func (s *PostgresStore) ResolveReviewEntry(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE review_entries SET state = $1, resolved_at = $2 WHERE id = $3 AND state = $4`,
		string(model.ReviewResolved), time.Now().UTC(), id, string(model.ReviewOpen),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve review entry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "review entry %s", id)
	}
	return nil
}

// Run ledger

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.RunRecord) error {
	countsJSON, err := json.Marshal(run.Counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}
	var config any
	if len(run.Config) > 0 {
		config = []byte(run.Config)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, job_id, status, counts, config, error, started_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.JobID, string(run.Status), countsJSON, config, run.Error, run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) UpdateRunCounts(ctx context.Context, runID string, counts model.RunCounts) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}
	tag, err := s.pool.Exec(ctx, `UPDATE runs SET counts = $1 WHERE id = $2`, countsJSON, runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run counts %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, counts model.RunCounts, errMsg string) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, counts = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), countsJSON, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, job_id, status, counts, config, error, started_at, finished_at FROM runs WHERE id = $1`, runID)
	return scanPGRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error) {
	query := `SELECT id, job_id, status, counts, config, error, started_at, finished_at FROM runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.JobID != "" {
		query += ` AND job_id = ` + arg(filter.JobID)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ` + arg(limitOr(filter.Limit, 100))
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) DeleteRunArtifacts(ctx context.Context, runID string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin rollback tx")
	}
	defer tx.Rollback(ctx)

	var total int64
	for _, stmt := range []string{
		`DELETE FROM duplicate_links WHERE run_id = $1`,
		`DELETE FROM review_entries WHERE run_id = $1`,
		`DELETE FROM tickets WHERE run_id = $1`,
	} {
		tag, err := tx.Exec(ctx, stmt, runID)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: rollback run %s", runID)
		}
		total += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit rollback tx")
	}
	return int(total), nil
}

// Manual corrections

func (s *PostgresStore) UpsertCorrection(ctx context.Context, c *model.Correction) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO corrections (id, source_file, page_number, field, value, corrected_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source_file, page_number, field)
		 DO UPDATE SET value = EXCLUDED.value, corrected_by = EXCLUDED.corrected_by, created_at = EXCLUDED.created_at`,
		c.ID, c.SourceFile, c.PageNumber, c.Field, c.Value, c.CorrectedBy, c.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert correction %s/%d/%s", c.SourceFile, c.PageNumber, c.Field)
}

func (s *PostgresStore) ListCorrections(ctx context.Context, sourceFile string) ([]model.Correction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_file, page_number, field, value, corrected_by, created_at
		 FROM corrections WHERE source_file = $1 ORDER BY page_number, field`, sourceFile)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corrections")
	}
	defer rows.Close()

	var out []model.Correction
	for rows.Next() {
		var c model.Correction
		if err := rows.Scan(&c.ID, &c.SourceFile, &c.PageNumber, &c.Field, &c.Value, &c.CorrectedBy, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list corrections iterate")
}

// helpers

func scanPGTicket(row pgx.Row) (*model.Ticket, error) {
	var t model.Ticket
	var fieldsJSON []byte

	err := row.Scan(&t.ID, &t.RunID, &t.SourceFile, &t.PageNumber, &t.TicketNumber, &t.HaulerID, &t.HaulerKey,
		&t.TicketDate, &t.Regulated, &t.ManifestNumber, &fieldsJSON, &t.RequiresReview, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "ticket")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan ticket")
	}
	if err := json.Unmarshal(fieldsJSON, &t.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal ticket fields")
	}
	return &t, nil
}

func scanPGRun(row pgx.Row) (*model.RunRecord, error) {
	var r model.RunRecord
	var countsJSON []byte
	var configJSON []byte
	var finishedAt *time.Time

	err := row.Scan(&r.ID, &r.JobID, &r.Status, &countsJSON, &configJSON, &r.Error, &r.StartedAt, &finishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	if err := json.Unmarshal(countsJSON, &r.Counts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal counts")
	}
	if len(configJSON) > 0 {
		r.Config = json.RawMessage(configJSON)
	}
	r.FinishedAt = finishedAt
	return &r, nil
}
