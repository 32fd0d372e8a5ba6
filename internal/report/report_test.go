package report

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadval-cli/internal/anomaly"
	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/score"
	"github.com/sells-group/leadval-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "report_test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testConfig() *config.Config {
	return &config.Config{
		Scoring: score.DefaultScoringConfig(),
		Trends:  config.TrendsConfig{WindowDays: 90, DailyMinVolume: 5, WeeklyMinVolume: 10},
		Report:  config.ReportConfig{AlertMinFakes: 3, AlertMinFakePct: 25, HighQualityScore: 7},
	}
}

func ptrFloat64(v float64) *float64 { return &v }

func ptrBool(v bool) *bool { return &v }

func seedRecord(taskID, leadID, source string, quality, fraud float64, fake bool, at time.Time) model.ValidationRecord {
	r := model.ValidationRecord{
		TaskID:          taskID,
		LeadID:          leadID,
		Source:          source,
		APIQualityScore: ptrFloat64(quality),
		APIFraudScore:   ptrFloat64(fraud),
		ValidatedAt:     at,
	}
	if fake {
		r.APIFakeLead = ptrBool(true)
	}
	return r
}

func TestBuilder_Daily(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	records := []model.ValidationRecord{
		seedRecord("00T1", "00Q1", "PaidSocial", 2.0, 9.5, true, day.Add(9*time.Hour)),
		seedRecord("00T2", "00Q2", "PaidSocial", 2.0, 9.0, true, day.Add(10*time.Hour)),
		seedRecord("00T3", "00Q3", "PaidSocial", 2.0, 8.7, true, day.Add(11*time.Hour)),
		seedRecord("00T4", "00Q4", "PaidSocial", 8.0, 1.0, false, day.Add(12*time.Hour)),
		seedRecord("00T5", "00Q5", "Web", 8.4, 0.5, false, day.Add(9*time.Hour)),
		seedRecord("00T6", "00Q6", "Web", 8.5, 0.5, false, day.Add(10*time.Hour)),
		seedRecord("00T7", "00Q7", "Web", 9.0, 1.0, false, day.Add(11*time.Hour)),
		seedRecord("00T8", "00Q8", "Web", 8.5, 1.0, false, day.Add(14*time.Hour)),
		// Recent record outside the report day pins freshness to Fresh.
		seedRecord("00T9", "00Q9", "Web", 8.0, 1.0, false, time.Now().UTC().Add(-2*time.Hour)),
	}
	records[0].LeadCompany = "Acme Fabrication"
	records[0].LeadEmail = "fake@tempmail.io"
	records[0].Recommendation = "accept"

	_, err := st.UpsertValidations(ctx, records)
	require.NoError(t, err)

	b := NewBuilder(st, testConfig())
	rep, err := b.Daily(ctx, day.Add(15*time.Hour), DailyOptions{})
	require.NoError(t, err)

	assert.False(t, rep.NoData)
	assert.Equal(t, day, rep.Date)
	assert.Equal(t, 8, rep.Totals.TotalLeads)
	assert.Equal(t, 2, rep.Totals.UniqueSources)
	assert.Equal(t, 3, rep.Totals.FakeLeads)
	assert.InDelta(t, 6.05, rep.Totals.AvgQuality, 0.01)
	assert.InDelta(t, 3.9, rep.Totals.AvgFraud, 0.01)

	require.Len(t, rep.Sources, 2)
	assert.Equal(t, "PaidSocial", rep.Sources[0].Source)
	assert.True(t, rep.Sources[0].AlertOnVolume)
	assert.True(t, rep.Sources[0].AlertOnPercentage)

	require.Len(t, rep.Alerts, 1)
	assert.Equal(t, "volume", rep.Alerts[0].Kind)
	assert.Equal(t, "PaidSocial", rep.Alerts[0].Source)
	assert.Contains(t, rep.Alerts[0].Message, "PaidSocial")

	require.Len(t, rep.FakeLeads, 3)
	assert.Equal(t, "00Q1", rep.FakeLeads[0].LeadID)
	assert.InDelta(t, 9.5, rep.FakeLeads[0].FraudScore, 0.01)
	assert.Equal(t, model.RiskCritical, rep.FakeLeads[0].RiskLevel)
	assert.Equal(t, "Acme Fabrication", rep.FakeLeads[0].Company)
	assert.Equal(t, "fake@tempmail.io", rep.FakeLeads[0].Email)

	require.Len(t, rep.Inconsistencies, 1)
	assert.Equal(t, anomaly.KindHighFraudAccepted, rep.Inconsistencies[0].Kind)
	assert.Equal(t, "00Q1", rep.Inconsistencies[0].LeadID)
	assert.Equal(t, model.SeverityCritical, rep.Inconsistencies[0].Severity)

	assert.Equal(t, model.SystemGood, rep.Status)
	assert.Equal(t, model.FreshnessFresh, rep.Freshness)
	assert.Empty(t, rep.Hourly)
}

func TestBuilder_Daily_NoData(t *testing.T) {
	st := newTestStore(t)
	b := NewBuilder(st, testConfig())

	rep, err := b.Daily(context.Background(), time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), DailyOptions{})
	require.NoError(t, err)

	assert.True(t, rep.NoData)
	assert.Equal(t, model.FreshnessNoData, rep.Freshness)
	assert.Empty(t, rep.Status)
	assert.Empty(t, rep.Sources)
	assert.Empty(t, rep.Alerts)
}

func TestBuilder_Daily_HourlyBreakdown(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC)

	records := []model.ValidationRecord{
		seedRecord("00TA", "00QA", "Web", 7.0, 9.0, true, day.Add(9*time.Hour+5*time.Minute)),
		seedRecord("00TB", "00QB", "Web", 8.0, 1.0, false, day.Add(9*time.Hour+40*time.Minute)),
		seedRecord("00TC", "00QC", "Web", 8.0, 1.0, false, day.Add(14*time.Hour+10*time.Minute)),
	}
	_, err := st.UpsertValidations(ctx, records)
	require.NoError(t, err)

	b := NewBuilder(st, testConfig())
	rep, err := b.Daily(ctx, day, DailyOptions{Hourly: true})
	require.NoError(t, err)

	require.Len(t, rep.Hourly, 2)
	assert.Equal(t, 9, rep.Hourly[0].Hour)
	assert.Equal(t, 2, rep.Hourly[0].Leads)
	assert.Equal(t, 1, rep.Hourly[0].FakeLeads)
	assert.InDelta(t, 50.0, rep.Hourly[0].FakeLeadPct, 0.01)
	assert.Equal(t, 14, rep.Hourly[1].Hour)
	assert.Equal(t, 1, rep.Hourly[1].Leads)
	assert.Zero(t, rep.Hourly[1].FakeLeads)
}

func TestBuilder_Scorecard(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)

	var records []model.ValidationRecord
	for i := 0; i < 12; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		fake := i < 6
		quality, fraud := 5.0, 2.0
		if fake {
			quality, fraud = 2.0, 9.0
		}
		records = append(records, seedRecord(
			fmt.Sprintf("00TP%02d", i), fmt.Sprintf("00QP%02d", i), "PaidSocial",
			quality, fraud, fake, at))
	}
	for i := 0; i < 12; i++ {
		at := base.AddDate(0, 0, 1).Add(time.Duration(i) * time.Hour)
		records = append(records, seedRecord(
			fmt.Sprintf("00TW%02d", i), fmt.Sprintf("00QW%02d", i), "Web",
			9.0, 0.5, false, at))
	}
	_, err := st.UpsertValidations(ctx, records)
	require.NoError(t, err)

	b := NewBuilder(st, testConfig())
	card, err := b.Scorecard(ctx, model.Window{})
	require.NoError(t, err)

	assert.False(t, card.NoData)
	assert.Equal(t, 24, card.Totals.TotalLeads)
	assert.Equal(t, 2, card.Totals.UniqueSources)
	require.Len(t, card.Sources, 2)

	bySource := map[string]model.SourceAggregate{}
	for _, s := range card.Sources {
		bySource[s.Source] = s
	}
	assert.Equal(t, 1, bySource["Web"].QualityRank)
	assert.Equal(t, 2, bySource["PaidSocial"].QualityRank)
	assert.Equal(t, model.SourceHighRisk, bySource["PaidSocial"].Risk)
	assert.Equal(t, model.SourceLowRisk, bySource["Web"].Risk)

	require.Len(t, card.Worst, 1)
	assert.Equal(t, "PaidSocial", card.Worst[0].Source)
	assert.Equal(t, 1, card.Worst[0].RemediationPriority)
	assert.NotEmpty(t, card.Worst[0].PrimaryIssue)
}

func TestBuilder_Scorecard_NoData(t *testing.T) {
	st := newTestStore(t)
	b := NewBuilder(st, testConfig())

	card, err := b.Scorecard(context.Background(), model.Window{})
	require.NoError(t, err)
	assert.True(t, card.NoData)
	assert.Empty(t, card.Sources)
	assert.Empty(t, card.Worst)
}

func TestBuilder_Trends(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day1 := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	records := []model.ValidationRecord{
		seedRecord("00T1", "00Q1", "Web", 8.0, 1.0, false, day1.Add(9*time.Hour)),
		seedRecord("00T2", "00Q2", "Web", 8.0, 1.0, false, day1.Add(10*time.Hour)),
		seedRecord("00T3", "00Q3", "Web", 9.0, 1.0, false, day1.Add(11*time.Hour)),
		seedRecord("00T4", "00Q4", "Web", 6.0, 2.0, false, day2.Add(9*time.Hour)),
		seedRecord("00T5", "00Q5", "Web", 6.0, 2.0, false, day2.Add(10*time.Hour)),
		seedRecord("00T6", "00Q6", "Web", 7.0, 2.0, false, day2.Add(11*time.Hour)),
	}
	_, err := st.UpsertValidations(ctx, records)
	require.NoError(t, err)

	b := NewBuilder(st, testConfig())
	rep, err := b.Trends(ctx, model.Daily, "", model.Window{})
	require.NoError(t, err)

	assert.False(t, rep.NoData)
	require.Len(t, rep.Periods, 2)

	// Presentation order is newest first; only the newer period has deltas.
	assert.True(t, rep.Periods[0].PeriodStart.Equal(day2))
	require.NotNil(t, rep.Periods[0].QualityDelta)
	assert.Negative(t, *rep.Periods[0].QualityDelta)
	require.NotNil(t, rep.Periods[0].VolumeDelta)
	assert.Zero(t, *rep.Periods[0].VolumeDelta)

	assert.True(t, rep.Periods[1].PeriodStart.Equal(day1))
	assert.Nil(t, rep.Periods[1].QualityDelta)
}

func TestBuilder_Trends_UnknownGranularity(t *testing.T) {
	st := newTestStore(t)
	b := NewBuilder(st, testConfig())

	_, err := b.Trends(context.Background(), model.Granularity("hourly"), "", model.Window{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown granularity")
}

func TestBuilder_Trends_SourceFiltered(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)

	var records []model.ValidationRecord
	for i := 0; i < 5; i++ {
		records = append(records, seedRecord(
			fmt.Sprintf("00TW%d", i), fmt.Sprintf("00QW%d", i), "Web",
			8.0, 1.0, false, day.Add(time.Duration(9+i)*time.Hour)))
	}
	for i := 0; i < 2; i++ {
		records = append(records, seedRecord(
			fmt.Sprintf("00TA%d", i), fmt.Sprintf("00QA%d", i), "Ads",
			7.0, 2.0, false, day.Add(time.Duration(9+i)*time.Hour)))
	}
	_, err := st.UpsertValidations(ctx, records)
	require.NoError(t, err)

	b := NewBuilder(st, testConfig())

	rep, err := b.Trends(ctx, model.Daily, "Web", model.Window{})
	require.NoError(t, err)
	require.Len(t, rep.Periods, 1)
	assert.Equal(t, "Web", rep.Periods[0].Source)
	assert.Equal(t, 5, rep.Periods[0].Leads)
	assert.Equal(t, 1, rep.Periods[0].QualityRank)

	// Ads never clears the daily minimum volume, so its series is empty.
	rep, err = b.Trends(ctx, model.Daily, "Ads", model.Window{})
	require.NoError(t, err)
	assert.True(t, rep.NoData)
}

func TestBuildAlerts(t *testing.T) {
	sources := []model.DailySourceStats{
		{Source: "A", FakeLeadCount: 5, TotalLeads: 10, FakeLeadPct: 50,
			AlertOnVolume: true, AlertOnPercentage: true},
		{Source: "B", FakeLeadCount: 1, TotalLeads: 3, FakeLeadPct: 33.3,
			AlertOnPercentage: true},
		{Source: "C", FakeLeadCount: 0, TotalLeads: 8},
	}

	alerts := buildAlerts(sources)
	require.Len(t, alerts, 2)
	assert.Equal(t, "volume", alerts[0].Kind)
	assert.Equal(t, "A", alerts[0].Source)
	assert.Equal(t, "percentage", alerts[1].Kind)
	assert.Equal(t, "B", alerts[1].Source)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, model.SystemExcellent, StatusOf(8.5))
	assert.Equal(t, model.SystemExcellent, StatusOf(8.0))
	assert.Equal(t, model.SystemGood, StatusOf(6.5))
	assert.Equal(t, model.SystemFair, StatusOf(4.0))
	assert.Equal(t, model.SystemPoor, StatusOf(3.9))
}

func TestFreshnessOf(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, model.FreshnessNoData, FreshnessOf(time.Time{}, now))
	assert.Equal(t, model.FreshnessFresh, FreshnessOf(now.Add(-23*time.Hour), now))
	assert.Equal(t, model.FreshnessRecent, FreshnessOf(now.Add(-48*time.Hour), now))
	assert.Equal(t, model.FreshnessRecent, FreshnessOf(now.Add(-7*24*time.Hour), now))
	assert.Equal(t, model.FreshnessStale, FreshnessOf(now.Add(-8*24*time.Hour), now))
}
