package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadval-cli/internal/resilience"
	"github.com/sells-group/leadval-cli/internal/store"
)

// recentRunsLimit bounds the run-log fetch. The lookback filter is applied
// in memory; the run log stays small under the retention policy.
const recentRunsLimit = 500

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Store volumes.
	RawTasks        int `json:"raw_tasks"`
	Validations     int `json:"validations"`
	ParseErrors     int `json:"parse_errors"`
	FakeLeads       int `json:"fake_leads"`
	DistinctLeads   int `json:"distinct_leads"`
	DistinctSources int `json:"distinct_sources"`

	// Rates over stored validations. FakeRate is taken over parsed records
	// only; a parse-error row carries no fraud verdict.
	ParseErrorRate float64 `json:"parse_error_rate"`
	FakeRate       float64 `json:"fake_rate"`

	// Data freshness. DataAgeHours is -1 when nothing is stored.
	NewestValidated time.Time `json:"newest_validated"`
	DataAgeHours    float64   `json:"data_age_hours"`

	// Run log (within lookback window). LastRun fields describe the most
	// recent run regardless of window.
	RunsTotal     int    `json:"runs_total"`
	RunsCompleted int    `json:"runs_completed"`
	RunsFailed    int    `json:"runs_failed"`
	RunsRunning   int    `json:"runs_running"`
	LastRunKind   string `json:"last_run_kind,omitempty"`
	LastRunStatus string `json:"last_run_status,omitempty"`
	LastRunError  string `json:"last_run_error,omitempty"`

	// Circuit breaker states by service name.
	Breakers map[string]string `json:"breakers,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store and the breaker registry.
type Collector struct {
	store    store.Store
	breakers *resilience.ServiceBreakers
}

// NewCollector creates a metrics collector. The breaker registry may be nil
// when no outbound services are wired.
func NewCollector(st store.Store, breakers *resilience.ServiceBreakers) *Collector {
	return &Collector{store: st, breakers: breakers}
}

// Collect gathers a snapshot of system metrics. Run-log totals cover the
// given lookback window; store volumes and rates are all-time.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
		DataAgeHours:  -1,
	}

	counts, err := c.store.Counts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: store counts")
	}
	snap.RawTasks = counts.RawTasks
	snap.Validations = counts.Validations
	snap.ParseErrors = counts.ParseErrors
	snap.FakeLeads = counts.FakeLeads
	snap.DistinctLeads = counts.DistinctLeads
	snap.DistinctSources = counts.DistinctSources

	if counts.Validations > 0 {
		snap.ParseErrorRate = float64(counts.ParseErrors) / float64(counts.Validations)
	}
	if parsed := counts.Validations - counts.ParseErrors; parsed > 0 {
		snap.FakeRate = float64(counts.FakeLeads) / float64(parsed)
	}
	if !counts.NewestValidated.IsZero() {
		snap.NewestValidated = counts.NewestValidated
		snap.DataAgeHours = snap.CollectedAt.Sub(counts.NewestValidated).Hours()
	}

	runs, err := c.store.ListRuns(ctx, recentRunsLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)
	for i, r := range runs {
		if i == 0 {
			snap.LastRunKind = r.Kind
			snap.LastRunStatus = string(r.Status)
			snap.LastRunError = r.Error
		}
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case store.RunCompleted:
			snap.RunsCompleted++
		case store.RunFailed:
			snap.RunsFailed++
		case store.RunRunning:
			snap.RunsRunning++
		}
	}

	if c.breakers != nil {
		states := c.breakers.States()
		if len(states) > 0 {
			snap.Breakers = make(map[string]string, len(states))
			for name, state := range states {
				snap.Breakers[name] = state.String()
			}
		}
	}

	return snap, nil
}
