// Package etl drives the extract, parse, and store cycle for validation
// tasks. A pass fetches the Salesforce task feed (or re-reads stored raw
// tasks), parses descriptions through a bounded worker pool, and upserts
// tasks, records, and parse failures, with a run-log entry bracketing the
// whole pass.
package etl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/parse"
	"github.com/sells-group/leadval-cli/internal/resilience"
	"github.com/sells-group/leadval-cli/internal/store"
	"github.com/sells-group/leadval-cli/pkg/salesforce"
)

const (
	// DefaultDaysBack bounds an incremental extract when no window is given.
	DefaultDaysBack = 30
	// DefaultConcurrency is the parse worker pool size.
	DefaultConcurrency = 4
)

// Options configures an extract or reparse pass.
type Options struct {
	// DaysBack bounds the incremental task fetch; 0 means DefaultDaysBack.
	DaysBack int
	// ForceRefresh drops the date bound and fetches the full task history.
	ForceRefresh bool
	// Concurrency is the parse worker pool size; 0 means DefaultConcurrency.
	Concurrency int
	// BackupDir, when set, receives a timestamped CSV dump of the parsed
	// records. A backup failure is logged, never fatal.
	BackupDir string
}

// Runner coordinates ETL passes against the task feed and the store.
type Runner struct {
	sf      salesforce.Client
	store   store.Store
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewRunner creates a runner. Salesforce calls go through retry with the
// given settings and a circuit breaker built from circuit.
func NewRunner(sf salesforce.Client, st store.Store, retry resilience.RetryConfig, circuit resilience.CircuitBreakerConfig) *Runner {
	retry.OnRetry = resilience.RetryLogger("salesforce", "fetch tasks")
	return &Runner{
		sf:      sf,
		store:   st,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(circuit),
	}
}

// Extract runs a full pass: fetch, parse, store. The returned run carries
// final status and counters for callers that print a summary; on failure it
// is returned alongside the error with the failure already recorded.
func (r *Runner) Extract(ctx context.Context, opts Options) (*store.ETLRun, error) {
	run, err := r.store.StartRun(ctx, store.RunKindExtract)
	if err != nil {
		return nil, eris.Wrap(err, "etl: start run")
	}
	log := runLogger(run)

	counters, err := r.extract(ctx, opts, log)
	if err != nil {
		r.failRun(ctx, run, err, log)
		return run, err
	}
	return run, r.completeRun(ctx, run, *counters, log)
}

// Reparse re-runs the description parser over raw tasks already in the
// store, without touching Salesforce. Records whose parse now succeeds
// replace their earlier versions under the same task ID.
func (r *Runner) Reparse(ctx context.Context, opts Options) (*store.ETLRun, error) {
	run, err := r.store.StartRun(ctx, store.RunKindReparse)
	if err != nil {
		return nil, eris.Wrap(err, "etl: start run")
	}
	log := runLogger(run)

	counters, err := r.reparse(ctx, opts, log)
	if err != nil {
		r.failRun(ctx, run, err, log)
		return run, err
	}
	return run, r.completeRun(ctx, run, *counters, log)
}

// Purge removes tasks, validations, and parse failures older than the
// retention window. A dry run only reports what would go and leaves no
// run-log entry.
func (r *Runner) Purge(ctx context.Context, retentionDays int, dryRun bool) (*store.PurgeResult, error) {
	if retentionDays <= 0 {
		return nil, eris.Errorf("etl: retention days must be positive, got %d", retentionDays)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	if dryRun {
		res, err := r.store.PurgeBefore(ctx, cutoff, true)
		if err != nil {
			return nil, eris.Wrap(err, "etl: purge dry run")
		}
		return res, nil
	}

	run, err := r.store.StartRun(ctx, store.RunKindPurge)
	if err != nil {
		return nil, eris.Wrap(err, "etl: start run")
	}
	log := runLogger(run)

	res, err := r.store.PurgeBefore(ctx, cutoff, false)
	if err != nil {
		err = eris.Wrap(err, "etl: purge")
		r.failRun(ctx, run, err, log)
		return nil, err
	}

	counters := store.RunCounters{Purged: res.Tasks + res.Validations + res.ParseFailures}
	if err := r.completeRun(ctx, run, counters, log); err != nil {
		return res, err
	}
	log.Info("purge complete",
		zap.Time("cutoff", cutoff),
		zap.Int("tasks", res.Tasks),
		zap.Int("validations", res.Validations),
		zap.Int("parse_failures", res.ParseFailures),
	)
	return res, nil
}

func (r *Runner) extract(ctx context.Context, opts Options, log *zap.Logger) (*store.RunCounters, error) {
	var since time.Time
	if !opts.ForceRefresh {
		daysBack := opts.DaysBack
		if daysBack <= 0 {
			daysBack = DefaultDaysBack
		}
		since = time.Now().UTC().AddDate(0, 0, -daysBack)
	}
	log.Info("fetching validation tasks",
		zap.Time("since", since),
		zap.Bool("force_refresh", opts.ForceRefresh),
	)

	feed, err := r.fetchTasks(ctx, since)
	if err != nil {
		return nil, eris.Wrap(err, "etl: fetch tasks")
	}
	tasks := convertTasks(feed)

	var counters store.RunCounters
	counters.TasksFetched = len(tasks)
	if len(tasks) == 0 {
		log.Info("no validation tasks in window")
		return &counters, nil
	}

	if _, err := r.store.UpsertTasks(ctx, tasks); err != nil {
		return nil, eris.Wrap(err, "etl: store tasks")
	}

	records := r.parseTasks(tasks, opts.Concurrency, &counters)
	if err := r.storeRecords(ctx, records, &counters); err != nil {
		return nil, err
	}
	r.maybeBackup(opts.BackupDir, records, log)
	return &counters, nil
}

func (r *Runner) reparse(ctx context.Context, opts Options, log *zap.Logger) (*store.RunCounters, error) {
	tasks, err := r.store.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "etl: list stored tasks")
	}
	log.Info("reparsing stored tasks", zap.Int("count", len(tasks)))

	var counters store.RunCounters
	counters.TasksFetched = len(tasks)
	if len(tasks) == 0 {
		return &counters, nil
	}

	records := r.parseTasks(tasks, opts.Concurrency, &counters)
	if err := r.storeRecords(ctx, records, &counters); err != nil {
		return nil, err
	}
	r.maybeBackup(opts.BackupDir, records, log)
	return &counters, nil
}

// fetchTasks pulls the task feed through the retry and circuit breaker
// layers. An open circuit fails fast; only transient faults are retried.
func (r *Runner) fetchTasks(ctx context.Context, since time.Time) ([]salesforce.TaskRecord, error) {
	return resilience.DoVal(ctx, r.retry, func(ctx context.Context) ([]salesforce.TaskRecord, error) {
		return resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) ([]salesforce.TaskRecord, error) {
			return salesforce.FetchValidationTasks(ctx, r.sf, since)
		})
	})
}

// parseTasks runs the description parser over a bounded worker pool.
// Individual parse failures are counted and kept, never abort the batch.
func (r *Runner) parseTasks(tasks []parse.Task, concurrency int, counters *store.RunCounters) []model.ValidationRecord {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	records := make([]model.ValidationRecord, 0, len(tasks))
	var parsed, failed atomic.Int64

	for _, task := range tasks {
		g.Go(func() error {
			rec := parse.Record(task)
			if rec.HasParseError() {
				failed.Add(1)
				zap.L().Warn("etl: description did not parse",
					zap.String("task_id", task.ID),
					zap.String("parse_error", rec.ParseError),
				)
			} else {
				parsed.Add(1)
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	counters.Parsed = int(parsed.Load())
	counters.ParseErrors = int(failed.Load())
	return records
}

// storeRecords upserts parsed records and registers parse failures for
// triage. Parse-error records are stored too, with their raw text.
func (r *Runner) storeRecords(ctx context.Context, records []model.ValidationRecord, counters *store.RunCounters) error {
	stored, err := r.store.UpsertValidations(ctx, records)
	if err != nil {
		return eris.Wrap(err, "etl: store validations")
	}
	counters.Stored = stored
	counters.Skipped = len(records) - stored

	for _, rec := range records {
		if !rec.HasParseError() {
			continue
		}
		if err := r.store.UpsertParseFailure(ctx, rec.TaskID, rec.ParseError, rec.RawDescription); err != nil {
			zap.L().Warn("etl: record parse failure",
				zap.String("task_id", rec.TaskID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (r *Runner) maybeBackup(dir string, records []model.ValidationRecord, log *zap.Logger) {
	if dir == "" {
		return
	}
	path, err := WriteBackup(dir, records)
	if err != nil {
		log.Warn("backup failed", zap.Error(err))
		return
	}
	log.Info("backup written", zap.String("path", path), zap.Int("rows", len(records)))
}

func (r *Runner) completeRun(ctx context.Context, run *store.ETLRun, counters store.RunCounters, log *zap.Logger) error {
	if err := r.store.CompleteRun(ctx, run.ID, counters); err != nil {
		return eris.Wrap(err, "etl: complete run")
	}
	run.Status = store.RunCompleted
	run.Counters = counters
	log.Info("run complete",
		zap.Int("tasks_fetched", counters.TasksFetched),
		zap.Int("parsed", counters.Parsed),
		zap.Int("parse_errors", counters.ParseErrors),
		zap.Int("stored", counters.Stored),
		zap.Int("skipped", counters.Skipped),
	)
	return nil
}

func (r *Runner) failRun(ctx context.Context, run *store.ETLRun, cause error, log *zap.Logger) {
	if err := r.store.FailRun(ctx, run.ID, cause.Error()); err != nil {
		log.Error("failed to record run failure", zap.Error(err))
	}
	run.Status = store.RunFailed
	run.Error = cause.Error()
	log.Error("run failed", zap.Error(cause))
}

func runLogger(run *store.ETLRun) *zap.Logger {
	return zap.L().With(
		zap.String("component", "etl"),
		zap.String("run_id", run.ID),
		zap.String("kind", run.Kind),
	)
}

// convertTasks maps feed rows to parser input. Unparsable datetimes are
// logged and left zero; the task itself is never dropped.
func convertTasks(feed []salesforce.TaskRecord) []parse.Task {
	tasks := make([]parse.Task, 0, len(feed))
	for _, tr := range feed {
		t := parse.Task{
			ID:          tr.ID,
			WhoID:       tr.WhoID,
			WhatID:      tr.WhatID,
			Subject:     tr.Subject,
			Description: tr.Description,
		}
		if who := tr.Who; who != nil {
			t.LeadSource = who.LeadSource
			t.Company = who.Company
			t.Email = who.Email
		}
		t.CreatedDate = parseFeedTime(tr.ID, "CreatedDate", tr.CreatedDate)
		t.LastModifiedDate = parseFeedTime(tr.ID, "LastModifiedDate", tr.LastModifiedDate)
		tasks = append(tasks, t)
	}
	return tasks
}

func parseFeedTime(taskID, field, value string) time.Time {
	t, err := salesforce.ParseTime(value)
	if err != nil {
		zap.L().Warn("etl: bad datetime in task feed",
			zap.String("task_id", taskID),
			zap.String("field", field),
			zap.Error(err),
		)
	}
	return t
}
