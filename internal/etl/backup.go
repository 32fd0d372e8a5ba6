package etl

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadval-cli/internal/model"
)

// backupColumns defines the ordered backup CSV columns. Order is stable so
// successive backups stay diffable.
var backupColumns = []string{
	"task_id",
	"lead_id",
	"source",
	"lead_company",
	"lead_email",
	"subject",
	"validated_at",
	"lead_score",
	"quality_score",
	"data_quality",
	"fraud_score",
	"recommendation",
	"quality_level",
	"fraud_risk",
	"market_segment",
	"phone_valid",
	"phone_carrier",
	"phone_type",
	"email_valid",
	"email_sendable",
	"bounce_likely",
	"total_emails",
	"valid_emails",
	"sendable_emails",
	"email_quality_score",
	"api_quality_score",
	"api_fraud_score",
	"api_fake_lead",
	"api_disposable_email",
	"api_business_strength_score",
	"api_quality_factors",
	"api_fraud_factors",
	"parse_error",
}

// WriteBackup dumps parsed records to a timestamped CSV under dir, creating
// the directory if needed, and returns the file path.
func WriteBackup(dir string, records []model.ValidationRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "backup: create dir")
	}
	name := fmt.Sprintf("validation_backup_%s.csv", time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrap(err, "backup: create file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(backupColumns); err != nil {
		return "", eris.Wrap(err, "backup: write header")
	}
	for i := range records {
		if err := w.Write(backupRow(&records[i])); err != nil {
			return "", eris.Wrap(err, "backup: write row")
		}
	}
	return path, nil
}

// backupRow maps a validation record to a backup CSV row, in backupColumns
// order.
func backupRow(r *model.ValidationRecord) []string {
	return []string{
		r.TaskID,
		r.LeadID,
		r.SourceOrUnknown(),
		r.LeadCompany,
		r.LeadEmail,
		r.Subject,
		fmtTime(r.ValidatedAt),
		fmtFloat(r.LeadScore),
		fmtFloat(r.QualityScore),
		fmtFloat(r.DataQuality),
		fmtFloat(r.FraudScore),
		r.Recommendation,
		r.QualityLevel,
		r.FraudRisk,
		r.MarketSegment,
		fmtBool(r.PhoneValid),
		r.PhoneCarrier,
		r.PhoneType,
		fmtBool(r.EmailValid),
		fmtBool(r.EmailSendable),
		fmtBool(r.BounceLikely),
		fmtInt(r.TotalEmails),
		fmtInt(r.ValidEmails),
		fmtInt(r.SendableEmails),
		fmtFloat(r.EmailQualityScore),
		fmtFloat(r.APIQualityScore),
		fmtFloat(r.APIFraudScore),
		fmtBool(r.APIFakeLead),
		fmtBool(r.APIDisposableEmail),
		fmtFloat(r.APIBusinessStrengthScore),
		r.APIQualityFactors,
		r.APIFraudFactors,
		r.ParseError,
	}
}

// Absent optional values render as empty cells, never zeroes.

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fmtBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func fmtInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
