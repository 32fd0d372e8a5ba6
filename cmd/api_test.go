package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadval-cli/internal/anomaly"
	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/monitoring"
	"github.com/sells-group/leadval-cli/internal/report"
	"github.com/sells-group/leadval-cli/internal/score"
	"github.com/sells-group/leadval-cli/internal/store"
)

func newAPITestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	apiCfg := &config.Config{
		Scoring:    score.DefaultScoringConfig(),
		Trends:     config.TrendsConfig{WindowDays: 90, DailyMinVolume: 5, WeeklyMinVolume: 10},
		Report:     config.ReportConfig{AlertMinFakes: 3, AlertMinFakePct: 25, HighQualityScore: 7},
		Anomaly:    config.AnomalyConfig{LookbackDays: 30},
		Monitoring: config.MonitoringConfig{LookbackHours: 24},
	}
	srv := httptest.NewServer(newRouter(st, apiCfg, nil))
	t.Cleanup(srv.Close)
	return srv, st
}

func seedAPIRecord(taskID, leadID, source string, quality, fraud float64, fake bool, at time.Time) model.ValidationRecord {
	q, f := quality, fraud
	r := model.ValidationRecord{
		TaskID:          taskID,
		LeadID:          leadID,
		Source:          source,
		APIQualityScore: &q,
		APIFraudScore:   &f,
		ValidatedAt:     at,
	}
	if fake {
		yes := true
		r.APIFakeLead = &yes
	}
	return r
}

// seedAPIData stores two clean Web leads and two PaidSocial leads, one of
// them fake, all validated two hours ago. Returns the seed time.
func seedAPIData(t *testing.T, st store.Store) time.Time {
	t.Helper()
	at := time.Now().UTC().Add(-2 * time.Hour)
	_, err := st.UpsertValidations(context.Background(), []model.ValidationRecord{
		seedAPIRecord("00T1", "00Q1", "Web", 8.5, 1.0, false, at),
		seedAPIRecord("00T2", "00Q2", "Web", 9.0, 0.5, false, at),
		seedAPIRecord("00T3", "00Q3", "PaidSocial", 6.0, 4.0, false, at),
		seedAPIRecord("00T4", "00Q4", "PaidSocial", 2.0, 9.5, true, at),
	})
	require.NoError(t, err)
	return at
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPI_Health(t *testing.T) {
	srv, _ := newAPITestServer(t)

	var body map[string]string
	code := getJSON(t, srv, "/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_Summary(t *testing.T) {
	srv, st := newAPITestServer(t)
	seedAPIData(t, st)

	var resp summaryResponse
	code := getJSON(t, srv, "/api/summary", &resp)
	require.Equal(t, http.StatusOK, code)

	assert.False(t, resp.NoData)
	assert.Equal(t, 30, resp.WindowDays)
	assert.Equal(t, 4, resp.Totals.TotalLeads)
	assert.Equal(t, 2, resp.Totals.UniqueSources)
	assert.Equal(t, 1, resp.Totals.FakeLeads)
	assert.NotEmpty(t, resp.Status)
	assert.Equal(t, model.FreshnessFresh, resp.Freshness)
}

func TestAPI_Summary_NoData(t *testing.T) {
	srv, _ := newAPITestServer(t)

	var resp summaryResponse
	code := getJSON(t, srv, "/api/summary", &resp)
	require.Equal(t, http.StatusOK, code)

	assert.True(t, resp.NoData)
	assert.Equal(t, model.FreshnessNoData, resp.Freshness)
}

func TestAPI_Summary_BadWindow(t *testing.T) {
	srv, _ := newAPITestServer(t)

	var body map[string]string
	code := getJSON(t, srv, "/api/summary?window=soon", &body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "window")
}

func TestAPI_Sources(t *testing.T) {
	srv, st := newAPITestServer(t)
	seedAPIData(t, st)

	var card report.SourceScorecard
	code := getJSON(t, srv, "/api/sources", &card)
	require.Equal(t, http.StatusOK, code)

	assert.False(t, card.NoData)
	require.Len(t, card.Sources, 2)
	assert.Equal(t, 4, card.Totals.TotalLeads)

	// worst=1 strips the full listing and keeps the remediation queue.
	var worst report.SourceScorecard
	code = getJSON(t, srv, "/api/sources?worst=1", &worst)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, worst.Sources)
}

func TestAPI_Trends(t *testing.T) {
	srv, st := newAPITestServer(t)
	seedAPIData(t, st)

	var rep report.TrendReport
	code := getJSON(t, srv, "/api/trends/daily", &rep)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, model.Daily, rep.Granularity)
	assert.False(t, rep.NoData)
	require.NotEmpty(t, rep.Periods)
	assert.Equal(t, 4, rep.Periods[0].Leads)
}

func TestAPI_Trends_BadGranularity(t *testing.T) {
	srv, _ := newAPITestServer(t)

	var body map[string]string
	code := getJSON(t, srv, "/api/trends/hourly", &body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "granularity")
}

func TestAPI_Anomalies(t *testing.T) {
	srv, st := newAPITestServer(t)
	seedAPIData(t, st)

	var resp anomaliesResponse
	code := getJSON(t, srv, "/api/anomalies", &resp)
	require.Equal(t, http.StatusOK, code)

	require.GreaterOrEqual(t, resp.Count, 1)
	assert.Equal(t, "00Q4", resp.Anomalies[0].LeadID)
	assert.Equal(t, model.FlagFake, resp.Anomalies[0].Flag)
	// No CRM feed behind the API, so statuses stay unresolved.
	assert.Equal(t, anomaly.StatusUnknown, resp.Anomalies[0].CurrentStatus)
}

func TestAPI_DailyReport(t *testing.T) {
	srv, st := newAPITestServer(t)
	at := seedAPIData(t, st)

	var rep report.DailyReport
	code := getJSON(t, srv, "/api/report/daily?date="+at.Format("2006-01-02"), &rep)
	require.Equal(t, http.StatusOK, code)

	assert.False(t, rep.NoData)
	assert.Equal(t, 4, rep.Totals.TotalLeads)
	assert.Equal(t, 1, rep.Totals.FakeLeads)
}

func TestAPI_DailyReport_BadDate(t *testing.T) {
	srv, _ := newAPITestServer(t)

	var body map[string]string
	code := getJSON(t, srv, "/api/report/daily?date=yesterday", &body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "date")
}

func TestAPI_Lead(t *testing.T) {
	srv, st := newAPITestServer(t)
	seedAPIData(t, st)

	var resp leadResponse
	code := getJSON(t, srv, "/api/leads/00Q1", &resp)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "00Q1", resp.LeadID)
	assert.Equal(t, 1, resp.Validations)
	require.NotNil(t, resp.Latest)
	assert.Equal(t, "Web", resp.Latest.Source)
}

func TestAPI_Lead_NotFound(t *testing.T) {
	srv, _ := newAPITestServer(t)

	var body map[string]string
	code := getJSON(t, srv, "/api/leads/00Q999", &body)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "not found")
}

func TestAPI_Metrics(t *testing.T) {
	srv, st := newAPITestServer(t)
	seedAPIData(t, st)

	var snap monitoring.MetricsSnapshot
	code := getJSON(t, srv, "/api/metrics", &snap)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, 4, snap.Validations)
	assert.Equal(t, 1, snap.FakeLeads)
	assert.InDelta(t, 2.0, snap.DataAgeHours, 0.1)
}
