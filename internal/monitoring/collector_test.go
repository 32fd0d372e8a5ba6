package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/resilience"
	"github.com/sells-group/leadval-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring_test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedValidation(taskID, leadID, source string, fake bool, parseErr string, at time.Time) model.ValidationRecord {
	return model.ValidationRecord{
		TaskID:      taskID,
		LeadID:      leadID,
		Source:      source,
		APIFakeLead: &fake,
		ParseError:  parseErr,
		ValidatedAt: at,
	}
}

func TestCollector_Collect(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []model.ValidationRecord{
		seedValidation("00T1", "00Q1", "Web", false, "", now.Add(-2*time.Hour)),
		seedValidation("00T2", "00Q2", "Web", true, "", now.Add(-3*time.Hour)),
		seedValidation("00T3", "00Q3", "PaidSocial", false, "", now.Add(-4*time.Hour)),
		seedValidation("00T4", "00Q4", "PaidSocial", false, "missing sections", now.Add(-5*time.Hour)),
	}
	_, err := st.UpsertValidations(ctx, records)
	require.NoError(t, err)

	run1, err := st.StartRun(ctx, store.RunKindExtract)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run1.ID, store.RunCounters{
		TasksFetched: 4, Parsed: 3, ParseErrors: 1, Stored: 4,
	}))

	run2, err := st.StartRun(ctx, store.RunKindReparse)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run2.ID, "salesforce unavailable"))

	c := NewCollector(st, nil)
	snap, err := c.Collect(ctx, 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Validations)
	assert.Equal(t, 1, snap.ParseErrors)
	assert.Equal(t, 1, snap.FakeLeads)
	assert.Equal(t, 4, snap.DistinctLeads)
	assert.Equal(t, 2, snap.DistinctSources)

	assert.InDelta(t, 0.25, snap.ParseErrorRate, 0.001) // 1 of 4
	assert.InDelta(t, 1.0/3.0, snap.FakeRate, 0.001)    // 1 of 3 parsed
	assert.InDelta(t, 2.0, snap.DataAgeHours, 0.1)

	assert.Equal(t, 2, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsCompleted)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, store.RunKindReparse, snap.LastRunKind)
	assert.Equal(t, string(store.RunFailed), snap.LastRunStatus)
	assert.Equal(t, "salesforce unavailable", snap.LastRunError)

	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
	assert.Nil(t, snap.Breakers)
}

func TestCollector_Collect_EmptyStore(t *testing.T) {
	st := newTestStore(t)

	c := NewCollector(st, nil)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Zero(t, snap.Validations)
	assert.Zero(t, snap.ParseErrorRate)
	assert.Zero(t, snap.FakeRate)
	assert.Equal(t, float64(-1), snap.DataAgeHours)
	assert.True(t, snap.NewestValidated.IsZero())
	assert.Zero(t, snap.RunsTotal)
	assert.Empty(t, snap.LastRunStatus)
}

func TestCollector_Collect_LookbackWindow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Runs are stamped at creation time, so a zero-hour lookback puts
	// every run outside the window.
	run, err := st.StartRun(ctx, store.RunKindExtract)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, store.RunCounters{}))

	c := NewCollector(st, nil)
	snap, err := c.Collect(ctx, 0)
	require.NoError(t, err)

	// Outside the window the run still surfaces as the latest run.
	assert.Zero(t, snap.RunsTotal)
	assert.Equal(t, store.RunKindExtract, snap.LastRunKind)
	assert.Equal(t, string(store.RunCompleted), snap.LastRunStatus)
}

func TestCollector_Collect_BreakerStates(t *testing.T) {
	st := newTestStore(t)

	breakers := resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1})
	breakers.Get("salesforce")
	breakers.Get("notion")

	c := NewCollector(st, breakers)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	require.Len(t, snap.Breakers, 2)
	assert.Equal(t, "closed", snap.Breakers["salesforce"])
	assert.Equal(t, "closed", snap.Breakers["notion"])
}
