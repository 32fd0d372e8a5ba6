package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the configuration carries everything the given mode
// needs. Mode names mirror the CLI commands so each command can gate on its
// own requirements before doing any work.
func (c *Config) Validate(mode string) error {
	var errs []string

	appendStoreErrs := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	appendSalesforceErrs := func() {
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" && c.Salesforce.Password == "" {
			errs = append(errs, "salesforce.key_path or salesforce.password is required")
		}
		if c.Salesforce.RateLimit <= 0 {
			errs = append(errs, "salesforce.rate_limit must be > 0")
		}
	}

	appendScoringErrs := func() {
		weights := map[string]float64{
			"scoring.email_weight":        c.Scoring.EmailWeight,
			"scoring.phone_weight":        c.Scoring.PhoneWeight,
			"scoring.name_weight":         c.Scoring.NameWeight,
			"scoring.company_weight":      c.Scoring.CompanyWeight,
			"scoring.completeness_weight": c.Scoring.CompletenessWeight,
		}
		for name, w := range weights {
			if w < 0 {
				errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
			}
		}
		if c.Scoring.QualityShare < 0 || c.Scoring.FraudShare < 0 {
			errs = append(errs, "scoring shares must be >= 0")
		}
		if sum := c.Scoring.QualityShare + c.Scoring.FraudShare; math.Abs(sum-1) > 0.01 {
			errs = append(errs, fmt.Sprintf("scoring.quality_share + scoring.fraud_share should sum to 1, got %.2f", sum))
		}
	}

	switch mode {
	case "extract":
		appendStoreErrs()
		appendSalesforceErrs()

	case "import", "reparse", "score", "status":
		appendStoreErrs()

	case "sources", "trends":
		appendStoreErrs()
		appendScoringErrs()
		if c.Trends.WindowDays < 1 {
			errs = append(errs, "trends.window_days must be >= 1")
		}
		if c.Trends.DailyMinVolume < 0 || c.Trends.WeeklyMinVolume < 0 {
			errs = append(errs, "trends minimum volumes must be >= 0")
		}

	case "anomalies":
		appendStoreErrs()
		appendScoringErrs()
		appendSalesforceErrs()
		if c.Anomaly.StatusTimeoutSecs < 1 {
			errs = append(errs, "anomaly.status_timeout_secs must be >= 1")
		}
		if c.Anomaly.MaxConcurrent < 1 {
			errs = append(errs, "anomaly.max_concurrent must be >= 1")
		}

	case "report":
		appendStoreErrs()
		appendScoringErrs()
		if c.Report.AlertMinFakes < 0 {
			errs = append(errs, "report.alert_min_fakes must be >= 0")
		}
		if c.Report.AlertMinFakePct < 0 || c.Report.AlertMinFakePct > 100 {
			errs = append(errs, "report.alert_min_fake_pct must be between 0 and 100")
		}

	case "serve":
		appendStoreErrs()
		appendScoringErrs()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Monitoring.Enabled && c.Monitoring.IntervalSecs < 1 {
			errs = append(errs, "monitoring.interval_secs must be >= 1")
		}

	case "purge":
		appendStoreErrs()
		if c.Retention.Days < 1 {
			errs = append(errs, "retention.days must be >= 1")
		}

	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}
