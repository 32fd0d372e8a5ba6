package report

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AlertPayload is the webhook body sent when a daily report trips alerts.
type AlertPayload struct {
	Date       string  `json:"date"`
	Alerts     []Alert `json:"alerts"`
	FakeLeads  int     `json:"fake_leads"`
	TotalLeads int     `json:"total_leads"`
}

// SendAlerts posts the daily report's alerts to the webhook URL. No-op when
// no URL is configured or the report tripped nothing.
func SendAlerts(ctx context.Context, client *http.Client, url string, rep *DailyReport) error {
	if url == "" || len(rep.Alerts) == 0 {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	payload, err := json.Marshal(AlertPayload{
		Date:       rep.Date.Format("2006-01-02"),
		Alerts:     rep.Alerts,
		FakeLeads:  rep.Totals.FakeLeads,
		TotalLeads: rep.Totals.TotalLeads,
	})
	if err != nil {
		return eris.Wrap(err, "report: marshal alert payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "report: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "report: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("report: webhook returned status %d", resp.StatusCode)
	}

	zap.L().Info("report alerts sent",
		zap.String("date", rep.Date.Format("2006-01-02")),
		zap.Int("alerts", len(rep.Alerts)),
	)
	return nil
}
