// Package store persists raw validation tasks and parsed validation records
// behind a backend-neutral interface. SQLite is the default backend; Postgres
// is used where the analytics warehouse already lives there.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/parse"
)

// RunStatus tracks an ETL run through its lifecycle.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run kinds recorded in the run log.
const (
	RunKindExtract = "extract"
	RunKindImport  = "import"
	RunKindReparse = "reparse"
	RunKindPurge   = "purge"
)

// RunCounters summarizes what an ETL run touched. Purged is only set by
// retention runs.
type RunCounters struct {
	TasksFetched int `json:"tasks_fetched"`
	Parsed       int `json:"parsed"`
	ParseErrors  int `json:"parse_errors"`
	Stored       int `json:"stored"`
	Skipped      int `json:"skipped"`
	Purged       int `json:"purged,omitempty"`
}

// ETLRun is one entry in the run log.
type ETLRun struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	Status      RunStatus   `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Counters    RunCounters `json:"counters"`
	Error       string      `json:"error,omitempty"`
}

// ParseFailure records a task whose description never parsed, with a short
// excerpt of the raw text for triage. A repeat failure updates the row in
// place and bumps Times.
type ParseFailure struct {
	TaskID    string    `json:"task_id"`
	Error     string    `json:"error"`
	Excerpt   string    `json:"excerpt"`
	Times     int       `json:"times"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Counts is a snapshot of stored volumes and data freshness. Zero
// Oldest/NewestValidated means no validations are stored.
type Counts struct {
	RawTasks        int       `json:"raw_tasks"`
	Validations     int       `json:"validations"`
	ParseErrors     int       `json:"parse_errors"`
	FakeLeads       int       `json:"fake_leads"`
	DistinctLeads   int       `json:"distinct_leads"`
	DistinctSources int       `json:"distinct_sources"`
	OldestValidated time.Time `json:"oldest_validated"`
	NewestValidated time.Time `json:"newest_validated"`
}

// PurgeResult reports rows removed by a retention pass, or removable when
// DryRun is set.
type PurgeResult struct {
	Tasks         int  `json:"tasks"`
	Validations   int  `json:"validations"`
	ParseFailures int  `json:"parse_failures"`
	DryRun        bool `json:"dry_run"`
}

// ValidationFilter bounds a validation listing. Parse-error records are
// excluded unless IncludeParseErrors is set, so analytic passes never see
// them by accident.
type ValidationFilter struct {
	Window             model.Window
	Source             string
	IncludeParseErrors bool
	Limit              int // 0 = unbounded
}

// TaskFilter bounds a raw-task listing.
type TaskFilter struct {
	Since time.Time
	Limit int // 0 = unbounded
}

// Store defines the persistence interface for the validation engine.
type Store interface {
	// Raw task feed
	UpsertTasks(ctx context.Context, tasks []parse.Task) (int, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]parse.Task, error)

	// Parsed validations
	UpsertValidations(ctx context.Context, records []model.ValidationRecord) (int, error)
	ListValidations(ctx context.Context, filter ValidationFilter) ([]model.ValidationRecord, error)
	LatestPerLead(ctx context.Context, window model.Window) ([]model.ValidationRecord, error)
	GetValidation(ctx context.Context, taskID string) (*model.ValidationRecord, error)
	LeadHistory(ctx context.Context, leadID string) ([]model.ValidationRecord, error)
	Counts(ctx context.Context) (*Counts, error)
	PurgeBefore(ctx context.Context, cutoff time.Time, dryRun bool) (*PurgeResult, error)

	// Run log
	StartRun(ctx context.Context, kind string) (*ETLRun, error)
	CompleteRun(ctx context.Context, runID string, counters RunCounters) error
	FailRun(ctx context.Context, runID string, message string) error
	LatestRun(ctx context.Context) (*ETLRun, error)
	ListRuns(ctx context.Context, limit int) ([]ETLRun, error)

	// Parse failures
	UpsertParseFailure(ctx context.Context, taskID, parseErr, excerpt string) error
	ListParseFailures(ctx context.Context, limit int) ([]ParseFailure, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects the backend selected by cfg and runs migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
	default:
		s, err = NewSQLite(cfg.DatabaseURL)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, eris.Wrapf(err, "store: migrate %s", cfg.Driver)
	}
	return s, nil
}
