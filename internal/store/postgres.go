package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/internal/db"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/parse"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_validation":       `SELECT record FROM lead_validations WHERE task_id = $1`,
	"lead_history":         `SELECT record FROM lead_validations WHERE lead_id = $1 ORDER BY validated_at DESC, task_id ASC`,
	"insert_run":           `INSERT INTO etl_runs (id, kind, status, started_at) VALUES ($1, $2, $3, $4)`,
	"complete_run":         `UPDATE etl_runs SET status = $1, completed_at = $2, counters = $3 WHERE id = $4`,
	"fail_run":             `UPDATE etl_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
	"upsert_parse_failure": `INSERT INTO parse_failures (task_id, error, excerpt, times, first_seen, last_seen) VALUES ($1, $2, $3, 1, $4, $5) ON CONFLICT (task_id) DO UPDATE SET error = $2, excerpt = $3, times = parse_failures.times + 1, last_seen = $5`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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
CREATE TABLE IF NOT EXISTS validation_tasks (
	task_id            TEXT PRIMARY KEY,
	lead_id            TEXT NOT NULL DEFAULT '',
	what_id            TEXT NOT NULL DEFAULT '',
	subject            TEXT NOT NULL DEFAULT '',
	lead_source        TEXT NOT NULL DEFAULT '',
	lead_company       TEXT NOT NULL DEFAULT '',
	lead_email         TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	created_date       TIMESTAMPTZ,
	last_modified_date TIMESTAMPTZ,
	extracted_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lead_validations (
	task_id      TEXT PRIMARY KEY,
	lead_id      TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT 'Unknown',
	fake_lead    BOOLEAN NOT NULL DEFAULT false,
	parse_error  TEXT NOT NULL DEFAULT '',
	validated_at TIMESTAMPTZ NOT NULL,
	record       JSONB NOT NULL,
	parsed_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS etl_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	counters     JSONB,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS parse_failures (
	task_id    TEXT PRIMARY KEY,
	error      TEXT NOT NULL,
	excerpt    TEXT NOT NULL DEFAULT '',
	times      INTEGER NOT NULL DEFAULT 1,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_validation_tasks_lead_id ON validation_tasks(lead_id);
CREATE INDEX IF NOT EXISTS idx_validation_tasks_modified ON validation_tasks(last_modified_date);
CREATE INDEX IF NOT EXISTS idx_lead_validations_lead_id ON lead_validations(lead_id);
CREATE INDEX IF NOT EXISTS idx_lead_validations_validated_at ON lead_validations(validated_at);
CREATE INDEX IF NOT EXISTS idx_lead_validations_source ON lead_validations(source);
CREATE INDEX IF NOT EXISTS idx_etl_runs_started_at ON etl_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_parse_failures_last_seen ON parse_failures(last_seen);
`

// Table column lists for the bulk write paths, in bind order.
var (
	taskColumns = []string{
		"task_id", "lead_id", "what_id", "subject", "lead_source", "lead_company",
		"lead_email", "description", "created_date", "last_modified_date", "extracted_at",
	}
	validationColumns = []string{
		"task_id", "lead_id", "source", "fake_lead", "parse_error",
		"validated_at", "record", "parsed_at",
	}
)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertTasks(ctx context.Context, tasks []parse.Task) (int, error) {
	rows, skipped := taskRows(tasks)
	if skipped > 0 {
		zap.L().Warn("postgres: tasks without id skipped", zap.Int("skipped", skipped))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "validation_tasks",
		Columns:      taskColumns,
		ConflictKeys: []string{"task_id"},
	}, rows)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]parse.Task, error) {
	query := `SELECT task_id, lead_id, what_id, subject, lead_source, lead_company, lead_email, description, created_date, last_modified_date
	          FROM validation_tasks WHERE true`
	args := []any{}
	argIdx := 1

	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND last_modified_date >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY last_modified_date DESC, task_id ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var tasks []parse.Task
	for rows.Next() {
		var t parse.Task
		err := rows.Scan(&t.ID, &t.WhoID, &t.WhatID, &t.Subject, &t.LeadSource,
			&t.Company, &t.Email, &t.Description, &t.CreatedDate, &t.LastModifiedDate)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list tasks iterate")
}

func (s *PostgresStore) UpsertValidations(ctx context.Context, records []model.ValidationRecord) (int, error) {
	rows, skipped, err := validationRows(records)
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		zap.L().Warn("postgres: records without task id skipped", zap.Int("skipped", skipped))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	// A fresh table takes the straight COPY path; once rows exist, batches
	// merge through the temp-table upsert.
	var empty bool
	if err := s.pool.QueryRow(ctx, `SELECT NOT EXISTS (SELECT 1 FROM lead_validations)`).Scan(&empty); err != nil {
		return 0, eris.Wrap(err, "postgres: check validations empty")
	}
	if empty {
		n, err := db.CopyFrom(ctx, s.pool, "lead_validations", validationColumns, rows)
		if err != nil {
			return 0, err
		}
		return int(n), nil
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "lead_validations",
		Columns:      validationColumns,
		ConflictKeys: []string{"task_id"},
	}, rows)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) ListValidations(ctx context.Context, filter ValidationFilter) ([]model.ValidationRecord, error) {
	query := `SELECT record FROM lead_validations WHERE true`
	args := []any{}
	argIdx := 1

	if !filter.Window.Start.IsZero() {
		query += fmt.Sprintf(` AND validated_at >= $%d`, argIdx)
		args = append(args, filter.Window.Start.UTC())
		argIdx++
	}
	if !filter.Window.End.IsZero() {
		query += fmt.Sprintf(` AND validated_at < $%d`, argIdx)
		args = append(args, filter.Window.End.UTC())
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	if !filter.IncludeParseErrors {
		query += ` AND parse_error = ''`
	}
	query += ` ORDER BY validated_at ASC, task_id ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list validations")
	}
	defer rows.Close()

	var records []model.ValidationRecord
	for rows.Next() {
		var recordJSON []byte
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan validation")
		}
		var r model.ValidationRecord
		if err := json.Unmarshal(recordJSON, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list validations iterate")
}

func (s *PostgresStore) LatestPerLead(ctx context.Context, window model.Window) ([]model.ValidationRecord, error) {
	records, err := s.ListValidations(ctx, ValidationFilter{Window: window})
	if err != nil {
		return nil, err
	}
	return model.LatestPerLead(records), nil
}

func (s *PostgresStore) GetValidation(ctx context.Context, taskID string) (*model.ValidationRecord, error) {
	var recordJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM lead_validations WHERE task_id = $1`,
		taskID,
	).Scan(&recordJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get validation %s", taskID)
	}

	var r model.ValidationRecord
	if err := json.Unmarshal(recordJSON, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal record")
	}
	return &r, nil
}

func (s *PostgresStore) LeadHistory(ctx context.Context, leadID string) ([]model.ValidationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM lead_validations WHERE lead_id = $1 ORDER BY validated_at DESC, task_id ASC`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lead history %s", leadID)
	}
	defer rows.Close()

	var records []model.ValidationRecord
	for rows.Next() {
		var recordJSON []byte
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan validation")
		}
		var r model.ValidationRecord
		if err := json.Unmarshal(recordJSON, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: lead history iterate")
}

func (s *PostgresStore) Counts(ctx context.Context) (*Counts, error) {
	var c Counts

	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM validation_tasks`).Scan(&c.RawTasks)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count tasks")
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE parse_error <> ''),
		       COUNT(*) FILTER (WHERE fake_lead),
		       COUNT(DISTINCT NULLIF(lead_id, '')),
		       COUNT(DISTINCT source)
		FROM lead_validations`,
	).Scan(&c.Validations, &c.ParseErrors, &c.FakeLeads, &c.DistinctLeads, &c.DistinctSources)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count validations")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT validated_at FROM lead_validations ORDER BY validated_at ASC LIMIT 1`,
	).Scan(&c.OldestValidated)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "postgres: oldest validated")
	}
	err = s.pool.QueryRow(ctx,
		`SELECT validated_at FROM lead_validations ORDER BY validated_at DESC LIMIT 1`,
	).Scan(&c.NewestValidated)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "postgres: newest validated")
	}

	return &c, nil
}

func (s *PostgresStore) PurgeBefore(ctx context.Context, cutoff time.Time, dryRun bool) (*PurgeResult, error) {
	cutoff = cutoff.UTC()
	result := &PurgeResult{DryRun: dryRun}

	if dryRun {
		err := s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM lead_validations WHERE validated_at < $1`, cutoff,
		).Scan(&result.Validations)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: count purgeable validations")
		}
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM validation_tasks WHERE last_modified_date < $1 AND created_date < $1`, cutoff,
		).Scan(&result.Tasks)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: count purgeable tasks")
		}
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM parse_failures WHERE last_seen < $1`, cutoff,
		).Scan(&result.ParseFailures)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: count purgeable parse failures")
		}
		return result, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM lead_validations WHERE validated_at < $1`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: purge validations")
	}
	result.Validations = int(tag.RowsAffected())

	tag, err = s.pool.Exec(ctx, `DELETE FROM validation_tasks WHERE last_modified_date < $1 AND created_date < $1`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: purge tasks")
	}
	result.Tasks = int(tag.RowsAffected())

	tag, err = s.pool.Exec(ctx, `DELETE FROM parse_failures WHERE last_seen < $1`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: purge parse failures")
	}
	result.ParseFailures = int(tag.RowsAffected())

	return result, nil
}

func (s *PostgresStore) StartRun(ctx context.Context, kind string) (*ETLRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO etl_runs (id, kind, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, kind, string(RunRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &ETLRun{
		ID:        id,
		Kind:      kind,
		Status:    RunRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, counters RunCounters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counters")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE etl_runs SET status = $1, completed_at = $2, counters = $3 WHERE id = $4`,
		string(RunCompleted), time.Now().UTC(), countersJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE etl_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(RunFailed), time.Now().UTC(), message, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*ETLRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kind, status, started_at, completed_at, counters, error
		 FROM etl_runs ORDER BY started_at DESC, id ASC LIMIT 1`,
	)
	run, err := scanPGRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]ETLRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, status, started_at, completed_at, counters, error
		 FROM etl_runs ORDER BY started_at DESC, id ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []ETLRun
	for rows.Next() {
		run, err := scanPGRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) UpsertParseFailure(ctx context.Context, taskID, parseErr, excerpt string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO parse_failures (task_id, error, excerpt, times, first_seen, last_seen)
		 VALUES ($1, $2, $3, 1, $4, $5)
		 ON CONFLICT (task_id) DO UPDATE SET
			error = $2, excerpt = $3, times = parse_failures.times + 1, last_seen = $5`,
		taskID, parseErr, clipExcerpt(excerpt), now, now,
	)
	return eris.Wrapf(err, "postgres: upsert parse failure %s", taskID)
}

func (s *PostgresStore) ListParseFailures(ctx context.Context, limit int) ([]ParseFailure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT task_id, error, excerpt, times, first_seen, last_seen
		 FROM parse_failures ORDER BY last_seen DESC, task_id ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parse failures")
	}
	defer rows.Close()

	var failures []ParseFailure
	for rows.Next() {
		var f ParseFailure
		if err := rows.Scan(&f.TaskID, &f.Error, &f.Excerpt, &f.Times, &f.FirstSeen, &f.LastSeen); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parse failure")
		}
		failures = append(failures, f)
	}
	return failures, eris.Wrap(rows.Err(), "postgres: list parse failures iterate")
}

// row builders

// taskRows builds COPY rows from tasks, dropping empty IDs and collapsing
// in-batch duplicates (last one wins) so the merge never updates a target
// row twice.
func taskRows(tasks []parse.Task) ([][]any, int) {
	now := time.Now().UTC()
	skipped := 0
	index := make(map[string]int, len(tasks))
	rows := make([][]any, 0, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			skipped++
			continue
		}
		row := []any{
			t.ID, t.WhoID, t.WhatID, t.Subject, t.LeadSource, t.Company, t.Email,
			t.Description, t.CreatedDate.UTC(), t.LastModifiedDate.UTC(), now,
		}
		if i, ok := index[t.ID]; ok {
			rows[i] = row
			continue
		}
		index[t.ID] = len(rows)
		rows = append(rows, row)
	}
	return rows, skipped
}

// validationRows builds COPY rows from records with the same duplicate
// handling as taskRows.
func validationRows(records []model.ValidationRecord) ([][]any, int, error) {
	now := time.Now().UTC()
	skipped := 0
	index := make(map[string]int, len(records))
	rows := make([][]any, 0, len(records))
	for i := range records {
		r := &records[i]
		if r.TaskID == "" {
			skipped++
			continue
		}
		recordJSON, err := json.Marshal(r)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "postgres: marshal record %s", r.TaskID)
		}
		row := []any{
			r.TaskID, r.LeadID, r.SourceOrUnknown(), r.FakeFlag(), r.ParseError,
			r.ValidatedAt.UTC(), recordJSON, now,
		}
		if j, ok := index[r.TaskID]; ok {
			rows[j] = row
			continue
		}
		index[r.TaskID] = len(rows)
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

func scanPGRun(row scannable) (*ETLRun, error) {
	var r ETLRun
	var completed *time.Time
	var counters []byte

	err := row.Scan(&r.ID, &r.Kind, &r.Status, &r.StartedAt, &completed, &counters, &r.Error)
	if err != nil {
		return nil, err
	}

	r.CompletedAt = completed
	if len(counters) > 0 {
		if err := json.Unmarshal(counters, &r.Counters); err != nil {
			return nil, eris.Wrap(err, "unmarshal counters")
		}
	}
	return &r, nil
}
