package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStaleData      AlertType = "stale_data"
	AlertParseErrorRate AlertType = "parse_error_rate"
	AlertFakeRate       AlertType = "fake_rate"
	AlertRunFailure     AlertType = "run_failure"
	AlertBreakerOpen    AlertType = "breaker_open"
)

// rateAlertMinVolume is the smallest denominator the rate checks fire on.
const rateAlertMinVolume = 20

// Alert is one threshold breach, shaped for the webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns a MetricsSnapshot into alerts and pushes them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter builds an Alerter from the monitoring thresholds.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate compares a snapshot against the thresholds. Zero staleness and
// rate thresholds disable those checks; failed runs and open breakers
// always alert.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Stale data: an empty store means extract has never landed anything;
	// otherwise the newest validation must be inside the configured window.
	if a.cfg.StaleAfterHours > 0 {
		switch {
		case snap.Validations == 0:
			alerts = append(alerts, Alert{
				Type:      AlertStaleData,
				Severity:  "high",
				Message:   "No validations stored; the extract pipeline has never completed",
				Timestamp: now,
			})
		case snap.DataAgeHours > a.cfg.StaleAfterHours:
			alerts = append(alerts, Alert{
				Type:     AlertStaleData,
				Severity: "high",
				Message: fmt.Sprintf(
					"Newest validation is %.1fh old, past the %.0fh staleness window",
					snap.DataAgeHours, a.cfg.StaleAfterHours,
				),
				Details: map[string]any{
					"data_age_hours":   snap.DataAgeHours,
					"stale_after":      a.cfg.StaleAfterHours,
					"newest_validated": snap.NewestValidated,
				},
				Timestamp: now,
			})
		}
	}

	// Parse error rate across all stored validations.
	if a.cfg.MaxParseErrorRate > 0 && snap.Validations >= rateAlertMinVolume &&
		snap.ParseErrorRate > a.cfg.MaxParseErrorRate {
		alerts = append(alerts, Alert{
			Type:     AlertParseErrorRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Parse error rate %.1f%% exceeds threshold %.1f%% (%d of %d validations)",
				snap.ParseErrorRate*100, a.cfg.MaxParseErrorRate*100,
				snap.ParseErrors, snap.Validations,
			),
			Details: map[string]any{
				"parse_error_rate": snap.ParseErrorRate,
				"threshold":        a.cfg.MaxParseErrorRate,
				"parse_errors":     snap.ParseErrors,
				"validations":      snap.Validations,
			},
			Timestamp: now,
		})
	}

	// Fake lead rate across parsed records.
	parsed := snap.Validations - snap.ParseErrors
	if a.cfg.MaxFakeRate > 0 && parsed >= rateAlertMinVolume && snap.FakeRate > a.cfg.MaxFakeRate {
		alerts = append(alerts, Alert{
			Type:     AlertFakeRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Fake lead rate %.1f%% exceeds threshold %.1f%% (%d of %d parsed leads)",
				snap.FakeRate*100, a.cfg.MaxFakeRate*100,
				snap.FakeLeads, parsed,
			),
			Details: map[string]any{
				"fake_rate":  snap.FakeRate,
				"threshold":  a.cfg.MaxFakeRate,
				"fake_leads": snap.FakeLeads,
				"parsed":     parsed,
			},
			Timestamp: now,
		})
	}

	// Failed ETL runs inside the lookback window.
	if snap.RunsFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailure,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d ETL run(s) failed in last %dh",
				snap.RunsFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed_runs":     snap.RunsFailed,
				"total_runs":      snap.RunsTotal,
				"last_run_kind":   snap.LastRunKind,
				"last_run_status": snap.LastRunStatus,
			},
			Timestamp: now,
		})
	}

	// Open circuit breakers. Sorted so alert order is stable.
	services := make([]string, 0, len(snap.Breakers))
	for service := range snap.Breakers {
		services = append(services, service)
	}
	sort.Strings(services)
	for _, service := range services {
		if snap.Breakers[service] != "open" {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertBreakerOpen,
			Severity: "high",
			Message:  fmt.Sprintf("Circuit breaker for %s is open; calls are being rejected", service),
			Details: map[string]any{
				"service": service,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts each alert to the configured webhook and returns how many
// landed. A failed delivery is logged, never fatal; with no webhook URL the
// whole call is a no-op.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	log := zap.L().With(zap.String("component", "monitoring.alerter"))
	sent := 0
	for _, alert := range alerts {
		if err := a.post(ctx, alert); err != nil {
			log.Error("alert delivery failed",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		log.Info("alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post alert")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook status %d", resp.StatusCode)
	}
	return nil
}
