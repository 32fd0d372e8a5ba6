package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadval-cli/internal/config"
)

func healthyConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		StaleAfterHours:   24,
		MaxParseErrorRate: 0.10,
		MaxFakeRate:       0.25,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(healthyConfig())

	snap := &MetricsSnapshot{
		Validations:    100,
		ParseErrors:    5,
		FakeLeads:      10,
		ParseErrorRate: 0.05,
		FakeRate:       10.0 / 95.0,
		DataAgeHours:   2.0,
		LookbackHours:  24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_StaleData(t *testing.T) {
	a := NewAlerter(healthyConfig())

	snap := &MetricsSnapshot{
		Validations:   100,
		DataAgeHours:  30.0,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleData, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "30.0h")
}

func TestAlerter_Evaluate_EmptyStore(t *testing.T) {
	a := NewAlerter(healthyConfig())

	snap := &MetricsSnapshot{
		DataAgeHours:  -1,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleData, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "never completed")
}

func TestAlerter_Evaluate_ParseErrorRate(t *testing.T) {
	a := NewAlerter(healthyConfig())

	snap := &MetricsSnapshot{
		Validations:    50,
		ParseErrors:    10,
		FakeLeads:      5,
		ParseErrorRate: 0.2, // 10/50 = 20%
		FakeRate:       5.0 / 40.0,
		DataAgeHours:   1.0,
		LookbackHours:  24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertParseErrorRate, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "20.0%")
}

func TestAlerter_Evaluate_FakeRate(t *testing.T) {
	a := NewAlerter(healthyConfig())

	snap := &MetricsSnapshot{
		Validations:   40,
		FakeLeads:     16,
		FakeRate:      0.4, // 16/40 = 40%
		DataAgeHours:  1.0,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFakeRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Contains(t, alerts[0].Message, "16 of 40")
}

func TestAlerter_Evaluate_RunFailure(t *testing.T) {
	a := NewAlerter(healthyConfig())

	snap := &MetricsSnapshot{
		Validations:   100,
		DataAgeHours:  1.0,
		RunsTotal:     5,
		RunsCompleted: 3,
		RunsFailed:    2,
		LastRunKind:   "extract",
		LastRunStatus: "failed",
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailure, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "2 ETL run(s)")
}

func TestAlerter_Evaluate_BreakerOpen(t *testing.T) {
	a := NewAlerter(healthyConfig())

	snap := &MetricsSnapshot{
		Validations:  100,
		DataAgeHours: 1.0,
		Breakers: map[string]string{
			"salesforce": "open",
			"notion":     "closed",
		},
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBreakerOpen, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "salesforce")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(healthyConfig())

	snap := &MetricsSnapshot{
		Validations:    60,
		ParseErrors:    12,
		FakeLeads:      24,
		ParseErrorRate: 0.2,
		FakeRate:       0.5,
		DataAgeHours:   48.0,
		RunsTotal:      4,
		RunsFailed:     1,
		LookbackHours:  24,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 4)

	types := make(map[AlertType]bool)
	for _, alert := range alerts {
		types[alert.Type] = true
	}
	assert.True(t, types[AlertStaleData])
	assert.True(t, types[AlertParseErrorRate])
	assert.True(t, types[AlertFakeRate])
	assert.True(t, types[AlertRunFailure])
}

func TestAlerter_Evaluate_MinimumVolume(t *testing.T) {
	a := NewAlerter(healthyConfig())

	// 10 validations sit below the 20-record floor for both rate checks.
	snap := &MetricsSnapshot{
		Validations:    10,
		ParseErrors:    5,
		FakeLeads:      4,
		ParseErrorRate: 0.5,
		FakeRate:       0.8,
		DataAgeHours:   1.0,
		LookbackHours:  24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_DisabledThresholds(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	snap := &MetricsSnapshot{
		Validations:    100,
		ParseErrors:    50,
		FakeLeads:      40,
		ParseErrorRate: 0.5,
		FakeRate:       0.8,
		DataAgeHours:   200.0,
		LookbackHours:  24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertStaleData, Severity: "high", Message: "test alert 1"},
		{Type: AlertRunFailure, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertStaleData, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertStaleData, Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}
