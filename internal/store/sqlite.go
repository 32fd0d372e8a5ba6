package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/parse"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS validation_tasks (
	task_id            TEXT PRIMARY KEY,
	lead_id            TEXT NOT NULL DEFAULT '',
	what_id            TEXT NOT NULL DEFAULT '',
	subject            TEXT NOT NULL DEFAULT '',
	lead_source        TEXT NOT NULL DEFAULT '',
	lead_company       TEXT NOT NULL DEFAULT '',
	lead_email         TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	created_date       DATETIME,
	last_modified_date DATETIME,
	extracted_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_validations (
	task_id      TEXT PRIMARY KEY,
	lead_id      TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT 'Unknown',
	fake_lead    INTEGER NOT NULL DEFAULT 0,
	parse_error  TEXT NOT NULL DEFAULT '',
	validated_at DATETIME NOT NULL,
	record       TEXT NOT NULL,
	parsed_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS etl_runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	counters     TEXT,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS parse_failures (
	task_id    TEXT PRIMARY KEY,
	error      TEXT NOT NULL,
	excerpt    TEXT NOT NULL DEFAULT '',
	times      INTEGER NOT NULL DEFAULT 1,
	first_seen DATETIME NOT NULL,
	last_seen  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_tasks_lead_id ON validation_tasks(lead_id);
CREATE INDEX IF NOT EXISTS idx_validation_tasks_modified ON validation_tasks(last_modified_date);
CREATE INDEX IF NOT EXISTS idx_lead_validations_lead_id ON lead_validations(lead_id);
CREATE INDEX IF NOT EXISTS idx_lead_validations_validated_at ON lead_validations(validated_at);
CREATE INDEX IF NOT EXISTS idx_lead_validations_source ON lead_validations(source);
CREATE INDEX IF NOT EXISTS idx_etl_runs_started_at ON etl_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_parse_failures_last_seen ON parse_failures(last_seen);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertTasks(ctx context.Context, tasks []parse.Task) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert tasks")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO validation_tasks
			(task_id, lead_id, what_id, subject, lead_source, lead_company, lead_email, description, created_date, last_modified_date, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			lead_id = excluded.lead_id,
			what_id = excluded.what_id,
			subject = excluded.subject,
			lead_source = excluded.lead_source,
			lead_company = excluded.lead_company,
			lead_email = excluded.lead_email,
			description = excluded.description,
			created_date = excluded.created_date,
			last_modified_date = excluded.last_modified_date,
			extracted_at = excluded.extracted_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert tasks")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	stored := 0
	skipped := 0
	for _, t := range tasks {
		if t.ID == "" {
			skipped++
			continue
		}
		_, err := stmt.ExecContext(ctx,
			t.ID, t.WhoID, t.WhatID, t.Subject, t.LeadSource, t.Company, t.Email,
			t.Description, t.CreatedDate.UTC(), t.LastModifiedDate.UTC(), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert task %s", t.ID)
		}
		stored++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert tasks")
	}
	if skipped > 0 {
		zap.L().Warn("sqlite: tasks without id skipped", zap.Int("skipped", skipped))
	}
	return stored, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]parse.Task, error) {
	query := `SELECT task_id, lead_id, what_id, subject, lead_source, lead_company, lead_email, description, created_date, last_modified_date
	          FROM validation_tasks WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		query += ` AND last_modified_date >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY last_modified_date DESC, task_id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close()

	var tasks []parse.Task
	for rows.Next() {
		var t parse.Task
		err := rows.Scan(&t.ID, &t.WhoID, &t.WhatID, &t.Subject, &t.LeadSource,
			&t.Company, &t.Email, &t.Description, &t.CreatedDate, &t.LastModifiedDate)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: list tasks iterate")
}

func (s *SQLiteStore) UpsertValidations(ctx context.Context, records []model.ValidationRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert validations")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lead_validations
			(task_id, lead_id, source, fake_lead, parse_error, validated_at, record, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			lead_id = excluded.lead_id,
			source = excluded.source,
			fake_lead = excluded.fake_lead,
			parse_error = excluded.parse_error,
			validated_at = excluded.validated_at,
			record = excluded.record,
			parsed_at = excluded.parsed_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert validations")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	stored := 0
	skipped := 0
	for i := range records {
		r := &records[i]
		if r.TaskID == "" {
			skipped++
			continue
		}
		recordJSON, err := json.Marshal(r)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal record %s", r.TaskID)
		}
		_, err = stmt.ExecContext(ctx,
			r.TaskID, r.LeadID, r.SourceOrUnknown(), r.FakeFlag(), r.ParseError,
			r.ValidatedAt.UTC(), string(recordJSON), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert validation %s", r.TaskID)
		}
		stored++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert validations")
	}
	if skipped > 0 {
		zap.L().Warn("sqlite: records without task id skipped", zap.Int("skipped", skipped))
	}
	return stored, nil
}

func (s *SQLiteStore) ListValidations(ctx context.Context, filter ValidationFilter) ([]model.ValidationRecord, error) {
	query := `SELECT record FROM lead_validations WHERE 1=1`
	var args []any

	if !filter.Window.Start.IsZero() {
		query += ` AND validated_at >= ?`
		args = append(args, filter.Window.Start.UTC())
	}
	if !filter.Window.End.IsZero() {
		query += ` AND validated_at < ?`
		args = append(args, filter.Window.End.UTC())
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if !filter.IncludeParseErrors {
		query += ` AND parse_error = ''`
	}
	query += ` ORDER BY validated_at ASC, task_id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list validations")
	}
	defer rows.Close()

	var records []model.ValidationRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan validation")
		}
		var r model.ValidationRecord
		if err := json.Unmarshal([]byte(recordJSON), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list validations iterate")
}

func (s *SQLiteStore) LatestPerLead(ctx context.Context, window model.Window) ([]model.ValidationRecord, error) {
	records, err := s.ListValidations(ctx, ValidationFilter{Window: window})
	if err != nil {
		return nil, err
	}
	return model.LatestPerLead(records), nil
}

func (s *SQLiteStore) GetValidation(ctx context.Context, taskID string) (*model.ValidationRecord, error) {
	var recordJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM lead_validations WHERE task_id = ?`,
		taskID,
	).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get validation %s", taskID)
	}

	var r model.ValidationRecord
	if err := json.Unmarshal([]byte(recordJSON), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal record")
	}
	return &r, nil
}

func (s *SQLiteStore) LeadHistory(ctx context.Context, leadID string) ([]model.ValidationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM lead_validations WHERE lead_id = ? ORDER BY validated_at DESC, task_id ASC`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: lead history %s", leadID)
	}
	defer rows.Close()

	var records []model.ValidationRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan validation")
		}
		var r model.ValidationRecord
		if err := json.Unmarshal([]byte(recordJSON), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: lead history iterate")
}

func (s *SQLiteStore) Counts(ctx context.Context) (*Counts, error) {
	var c Counts

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM validation_tasks`).Scan(&c.RawTasks)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count tasks")
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN parse_error != '' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(fake_lead), 0),
		       COUNT(DISTINCT NULLIF(lead_id, '')),
		       COUNT(DISTINCT source)
		FROM lead_validations`,
	).Scan(&c.Validations, &c.ParseErrors, &c.FakeLeads, &c.DistinctLeads, &c.DistinctSources)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count validations")
	}

	// Selecting the column itself keeps the driver's time conversion; an
	// aggregate over it would come back as bare text.
	err = s.db.QueryRowContext(ctx,
		`SELECT validated_at FROM lead_validations ORDER BY validated_at ASC LIMIT 1`,
	).Scan(&c.OldestValidated)
	if err != nil && err != sql.ErrNoRows {
		return nil, eris.Wrap(err, "sqlite: oldest validated")
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT validated_at FROM lead_validations ORDER BY validated_at DESC LIMIT 1`,
	).Scan(&c.NewestValidated)
	if err != nil && err != sql.ErrNoRows {
		return nil, eris.Wrap(err, "sqlite: newest validated")
	}

	return &c, nil
}

func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time, dryRun bool) (*PurgeResult, error) {
	cutoff = cutoff.UTC()
	result := &PurgeResult{DryRun: dryRun}

	if dryRun {
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM lead_validations WHERE validated_at < ?`, cutoff,
		).Scan(&result.Validations)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: count purgeable validations")
		}
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM validation_tasks WHERE last_modified_date < ? AND created_date < ?`, cutoff, cutoff,
		).Scan(&result.Tasks)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: count purgeable tasks")
		}
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM parse_failures WHERE last_seen < ?`, cutoff,
		).Scan(&result.ParseFailures)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: count purgeable parse failures")
		}
		return result, nil
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM lead_validations WHERE validated_at < ?`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: purge validations")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	result.Validations = int(n)

	res, err = s.db.ExecContext(ctx, `DELETE FROM validation_tasks WHERE last_modified_date < ? AND created_date < ?`, cutoff, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: purge tasks")
	}
	n, err = res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	result.Tasks = int(n)

	res, err = s.db.ExecContext(ctx, `DELETE FROM parse_failures WHERE last_seen < ?`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: purge parse failures")
	}
	n, err = res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	result.ParseFailures = int(n)

	return result, nil
}

func (s *SQLiteStore) StartRun(ctx context.Context, kind string) (*ETLRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO etl_runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		id, kind, string(RunRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &ETLRun{
		ID:        id,
		Kind:      kind,
		Status:    RunRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, counters RunCounters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counters")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE etl_runs SET status = ?, completed_at = ?, counters = ? WHERE id = ?`,
		string(RunCompleted), time.Now().UTC(), string(countersJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE etl_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(RunFailed), time.Now().UTC(), message, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*ETLRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, started_at, completed_at, counters, error
		 FROM etl_runs ORDER BY started_at DESC, id ASC LIMIT 1`,
	)
	run, err := scanETLRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run")
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]ETLRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, started_at, completed_at, counters, error
		 FROM etl_runs ORDER BY started_at DESC, id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []ETLRun
	for rows.Next() {
		run, err := scanETLRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) UpsertParseFailure(ctx context.Context, taskID, parseErr, excerpt string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parse_failures (task_id, error, excerpt, times, first_seen, last_seen)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			error = excluded.error,
			excerpt = excluded.excerpt,
			times = times + 1,
			last_seen = excluded.last_seen`,
		taskID, parseErr, clipExcerpt(excerpt), now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert parse failure %s", taskID)
}

func (s *SQLiteStore) ListParseFailures(ctx context.Context, limit int) ([]ParseFailure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, error, excerpt, times, first_seen, last_seen
		 FROM parse_failures ORDER BY last_seen DESC, task_id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parse failures")
	}
	defer rows.Close()

	var failures []ParseFailure
	for rows.Next() {
		var f ParseFailure
		if err := rows.Scan(&f.TaskID, &f.Error, &f.Excerpt, &f.Times, &f.FirstSeen, &f.LastSeen); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parse failure")
		}
		failures = append(failures, f)
	}
	return failures, eris.Wrap(rows.Err(), "sqlite: list parse failures iterate")
}

// helpers

const maxExcerptLen = 500

// clipExcerpt bounds stored raw-text excerpts, trimming any byte-split rune.
func clipExcerpt(s string) string {
	if len(s) <= maxExcerptLen {
		return s
	}
	return strings.ToValidUTF8(s[:maxExcerptLen], "")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanETLRun(row scannable) (*ETLRun, error) {
	var r ETLRun
	var completed sql.NullTime
	var counters sql.NullString

	err := row.Scan(&r.ID, &r.Kind, &r.Status, &r.StartedAt, &completed, &counters, &r.Error)
	if err != nil {
		return nil, err
	}

	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	if counters.Valid && counters.String != "" {
		if err := json.Unmarshal([]byte(counters.String), &r.Counters); err != nil {
			return nil, eris.Wrap(err, "unmarshal counters")
		}
	}
	return &r, nil
}
