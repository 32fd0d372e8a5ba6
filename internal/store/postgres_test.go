package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/parse"
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

func TestPostgresStore_GetValidation_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	recordJSON := []byte(`{"task_id":"00T001","lead_id":"00Q001","source":"Web","quality_score":8.5,"created_date":"2026-08-20T10:00:00Z","validated_at":"2026-08-20T10:00:00Z"}`)
	mock.ExpectQuery(`SELECT record FROM lead_validations WHERE task_id = \$1`).
		WithArgs("00T001").
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(recordJSON))

	got, err := s.GetValidation(context.Background(), "00T001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "00Q001", got.LeadID)
	assert.Equal(t, "Web", got.Source)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 8.5, *got.QualityScore, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetValidation_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record FROM lead_validations WHERE task_id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetValidation(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListValidations_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	start := testBase
	end := testBase.Add(24 * time.Hour)
	mock.ExpectQuery(`SELECT record FROM lead_validations WHERE true AND validated_at >= \$1 AND validated_at < \$2 AND source = \$3 AND parse_error = '' ORDER BY validated_at ASC, task_id ASC LIMIT \$4`).
		WithArgs(start, end, "Web", 10).
		WillReturnRows(pgxmock.NewRows([]string{"record"}).
			AddRow([]byte(`{"task_id":"00T001","lead_id":"00Q001","source":"Web","created_date":"2026-08-20T10:00:00Z","validated_at":"2026-08-20T10:00:00Z"}`)).
			AddRow([]byte(`{"task_id":"00T002","lead_id":"00Q002","source":"Web","created_date":"2026-08-20T11:00:00Z","validated_at":"2026-08-20T11:00:00Z"}`)))

	records, err := s.ListValidations(context.Background(), ValidationFilter{
		Window: model.Window{Start: start, End: end},
		Source: "Web",
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "00T001", records[0].TaskID)
	assert.Equal(t, "00T002", records[1].TaskID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertValidations_InitialLoadCopies(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT NOT EXISTS \(SELECT 1 FROM lead_validations\)`).
		WillReturnRows(pgxmock.NewRows([]string{"empty"}).AddRow(true))
	mock.ExpectCopyFrom(pgx.Identifier{"lead_validations"}, validationColumns).
		WillReturnResult(2)

	n, err := s.UpsertValidations(context.Background(), []model.ValidationRecord{
		testRecord("00T001", "00Q001", "Web", testBase),
		testRecord("00T002", "00Q002", "Referral", testBase.Add(time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertValidations_MergeUpserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT NOT EXISTS \(SELECT 1 FROM lead_validations\)`).
		WillReturnRows(pgxmock.NewRows([]string{"empty"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_lead_validations"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_lead_validations"}, validationColumns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "lead_validations"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.UpsertValidations(context.Background(), []model.ValidationRecord{
		testRecord("00T001", "00Q001", "Web", testBase),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertValidations_CollapsesDuplicateTasks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT NOT EXISTS \(SELECT 1 FROM lead_validations\)`).
		WillReturnRows(pgxmock.NewRows([]string{"empty"}).AddRow(true))
	mock.ExpectCopyFrom(pgx.Identifier{"lead_validations"}, validationColumns).
		WillReturnResult(1)

	// Same task parsed twice in one batch collapses to the later row
	n, err := s.UpsertValidations(context.Background(), []model.ValidationRecord{
		testRecord("00T001", "00Q001", "Web", testBase),
		testRecord("00T001", "00Q001", "Web", testBase.Add(time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertTasks_NothingToStore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.UpsertTasks(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.UpsertTasks(context.Background(), []parse.Task{{Subject: "no id"}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StartRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO etl_runs \(id, kind, status, started_at\) VALUES \(\$1, \$2, \$3, \$4\)`).
		WithArgs(pgxmock.AnyArg(), RunKindExtract, string(RunRunning), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.StartRun(context.Background(), RunKindExtract)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE etl_runs SET status = \$1, completed_at = \$2, counters = \$3 WHERE id = \$4`).
		WithArgs(string(RunCompleted), pgxmock.AnyArg(), pgxmock.AnyArg(), "nonexistent-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "nonexistent-id", RunCounters{Parsed: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE etl_runs SET status = \$1, completed_at = \$2, error = \$3 WHERE id = \$4`).
		WithArgs(string(RunFailed), pgxmock.AnyArg(), "salesforce: query tasks: timeout", "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FailRun(context.Background(), "run-1", "salesforce: query tasks: timeout")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestRun_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, kind, status, started_at, completed_at, counters, error`).
		WillReturnError(pgx.ErrNoRows)

	run, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	completed := testBase.Add(3 * time.Minute)
	mock.ExpectQuery(`SELECT id, kind, status, started_at, completed_at, counters, error`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind", "status", "started_at", "completed_at", "counters", "error"}).
			AddRow("run-2", RunKindExtract, RunCompleted, testBase, &completed, []byte(`{"tasks_fetched":120,"parsed":118,"parse_errors":2,"stored":118,"skipped":0}`), "").
			AddRow("run-1", RunKindImport, RunFailed, testBase.Add(-time.Hour), &completed, []byte(nil), "boom"))

	runs, err := s.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, RunCompleted, runs[0].Status)
	assert.Equal(t, 120, runs[0].Counters.TasksFetched)
	assert.Equal(t, 2, runs[0].Counters.ParseErrors)
	assert.Equal(t, RunFailed, runs[1].Status)
	assert.Equal(t, "boom", runs[1].Error)
	assert.Equal(t, RunCounters{}, runs[1].Counters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Counts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM validation_tasks`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`FILTER \(WHERE parse_error <> ''\)`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "parse_errors", "fake", "leads", "sources"}).
			AddRow(10, 1, 2, 8, 3))
	mock.ExpectQuery(`ORDER BY validated_at ASC LIMIT 1`).
		WillReturnRows(pgxmock.NewRows([]string{"validated_at"}).AddRow(testBase))
	mock.ExpectQuery(`ORDER BY validated_at DESC LIMIT 1`).
		WillReturnRows(pgxmock.NewRows([]string{"validated_at"}).AddRow(testBase.Add(48 * time.Hour)))

	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, c.RawTasks)
	assert.Equal(t, 10, c.Validations)
	assert.Equal(t, 1, c.ParseErrors)
	assert.Equal(t, 2, c.FakeLeads)
	assert.Equal(t, 8, c.DistinctLeads)
	assert.Equal(t, 3, c.DistinctSources)
	assert.True(t, c.OldestValidated.Equal(testBase))
	assert.True(t, c.NewestValidated.Equal(testBase.Add(48*time.Hour)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Counts_NoValidations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM validation_tasks`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FILTER \(WHERE parse_error <> ''\)`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "parse_errors", "fake", "leads", "sources"}).
			AddRow(0, 0, 0, 0, 0))
	mock.ExpectQuery(`ORDER BY validated_at ASC LIMIT 1`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`ORDER BY validated_at DESC LIMIT 1`).
		WillReturnError(pgx.ErrNoRows)

	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, c.Validations)
	assert.True(t, c.OldestValidated.IsZero())
	assert.True(t, c.NewestValidated.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PurgeBefore_DryRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cutoff := testBase.AddDate(0, 0, -90)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM lead_validations WHERE validated_at < \$1`).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(40))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM validation_tasks WHERE last_modified_date < \$1 AND created_date < \$1`).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(38))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM parse_failures WHERE last_seen < \$1`).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	result, err := s.PurgeBefore(context.Background(), cutoff, true)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 40, result.Validations)
	assert.Equal(t, 38, result.Tasks)
	assert.Equal(t, 2, result.ParseFailures)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PurgeBefore_Deletes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cutoff := testBase.AddDate(0, 0, -90)
	mock.ExpectExec(`DELETE FROM lead_validations WHERE validated_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 40))
	mock.ExpectExec(`DELETE FROM validation_tasks WHERE last_modified_date < \$1 AND created_date < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 38))
	mock.ExpectExec(`DELETE FROM parse_failures WHERE last_seen < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	result, err := s.PurgeBefore(context.Background(), cutoff, false)
	require.NoError(t, err)
	assert.False(t, result.DryRun)
	assert.Equal(t, 40, result.Validations)
	assert.Equal(t, 38, result.Tasks)
	assert.Equal(t, 2, result.ParseFailures)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertParseFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(task_id\) DO UPDATE SET`).
		WithArgs("00T001", "no structured sections found", "raw text", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertParseFailure(context.Background(), "00T001", "no structured sections found", "raw text")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
