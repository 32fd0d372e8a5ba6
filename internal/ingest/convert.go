package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadval-cli/internal/model"
)

// columnAliases maps common export headings onto canonical column names.
var columnAliases = map[string]string{
	"lead_source": "source",
	"who_id":      "lead_id",
	"company":     "lead_company",
	"email":       "lead_email",
}

// mapColumns builds a normalized column name to index map. Unknown columns
// stay in the map and are simply never read.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		name := normalizeCol(col)
		if canonical, ok := columnAliases[name]; ok {
			name = canonical
		}
		// First occurrence wins on duplicate headings.
		if _, ok := m[name]; !ok {
			m[name] = i
		}
	}
	return m
}

// normalizeCol lowercases and squashes spaces and dashes to underscores, so
// "Lead Score", "lead-score", and "lead_score" all match.
func normalizeCol(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// getCol gets a column value by canonical name, empty if absent.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// checkColumns rejects files that cannot identify a lead at all.
func checkColumns(colIdx map[string]int) error {
	if _, ok := colIdx["task_id"]; ok {
		return nil
	}
	if _, ok := colIdx["lead_id"]; ok {
		return nil
	}
	return eris.New("ingest: header has no task_id or lead_id column")
}

// row reads typed cells and remembers the first bad one, so buildRecord can
// assign fields linearly and fail once.
type row struct {
	record []string
	colIdx map[string]int
	err    error
}

func (r *row) str(name string) string { return getCol(r.record, r.colIdx, name) }

func (r *row) floatPtr(name string) *float64 {
	s := r.str(name)
	if s == "" || r.err != nil {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.err = eris.Errorf("column %s: bad number %q", name, s)
		return nil
	}
	return &v
}

func (r *row) intPtr(name string) *int {
	s := r.str(name)
	if s == "" || r.err != nil {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		r.err = eris.Errorf("column %s: bad integer %q", name, s)
		return nil
	}
	return &v
}

func (r *row) boolPtr(name string) *bool {
	s := strings.ToLower(r.str(name))
	if s == "" || r.err != nil {
		return nil
	}
	switch s {
	case "true", "t", "1", "yes", "y":
		v := true
		return &v
	case "false", "f", "0", "no", "n":
		v := false
		return &v
	}
	r.err = eris.Errorf("column %s: bad boolean %q", name, s)
	return nil
}

// importTimeLayouts are the timestamp shapes accepted in import files.
var importTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (r *row) timeVal(name string) time.Time {
	s := r.str(name)
	if s == "" || r.err != nil {
		return time.Time{}
	}
	for _, layout := range importTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	r.err = eris.Errorf("column %s: bad timestamp %q", name, s)
	return time.Time{}
}

// buildRecord converts one data row. A malformed cell rejects the whole
// row; a value is never silently coerced.
func buildRecord(record []string, colIdx map[string]int, defaultSource string) (model.ValidationRecord, error) {
	r := &row{record: record, colIdx: colIdx}

	rec := model.ValidationRecord{
		TaskID:      r.str("task_id"),
		LeadID:      r.str("lead_id"),
		Source:      r.str("source"),
		LeadCompany: r.str("lead_company"),
		LeadEmail:   r.str("lead_email"),
		Subject:     r.str("subject"),

		LeadScore:      r.floatPtr("lead_score"),
		QualityScore:   r.floatPtr("quality_score"),
		DataQuality:    r.floatPtr("data_quality"),
		FraudScore:     r.floatPtr("fraud_score"),
		Recommendation: r.str("recommendation"),
		QualityLevel:   r.str("quality_level"),
		FraudRisk:      r.str("fraud_risk"),
		MarketSegment:  r.str("market_segment"),

		PhoneValid:   r.boolPtr("phone_valid"),
		PhoneCarrier: r.str("phone_carrier"),
		PhoneType:    r.str("phone_type"),

		EmailValid:    r.boolPtr("email_valid"),
		EmailSendable: r.boolPtr("email_sendable"),
		BounceLikely:  r.boolPtr("bounce_likely"),

		TotalEmails:       r.intPtr("total_emails"),
		ValidEmails:       r.intPtr("valid_emails"),
		SendableEmails:    r.intPtr("sendable_emails"),
		EmailQualityScore: r.floatPtr("email_quality_score"),

		APIQualityScore:          r.floatPtr("api_quality_score"),
		APIFraudScore:            r.floatPtr("api_fraud_score"),
		APIFakeLead:              r.boolPtr("api_fake_lead"),
		APIDisposableEmail:       r.boolPtr("api_disposable_email"),
		APIBusinessStrengthScore: r.floatPtr("api_business_strength_score"),
		APIQualityFactors:        r.str("api_quality_factors"),
		APIFraudFactors:          r.str("api_fraud_factors"),

		CreatedDate:      r.timeVal("created_date"),
		LastModifiedDate: r.timeVal("last_modified_date"),
		ValidatedAt:      r.timeVal("validated_at"),

		ParseError: r.str("parse_error"),
	}
	if r.err != nil {
		return model.ValidationRecord{}, r.err
	}

	if rec.Source == "" {
		rec.Source = defaultSource
	}
	// Validation time falls back to creation time, matching how feed
	// records are stamped.
	if rec.ValidatedAt.IsZero() {
		rec.ValidatedAt = rec.CreatedDate
	}
	if rec.ValidatedAt.IsZero() {
		return model.ValidationRecord{}, eris.New("row has no validated_at")
	}
	if rec.TaskID == "" {
		if rec.LeadID == "" {
			return model.ValidationRecord{}, eris.New("row has neither task_id nor lead_id")
		}
		rec.TaskID = syntheticTaskID(rec.LeadID, rec.ValidatedAt)
	}
	return rec, nil
}

// syntheticTaskID keys imported rows that carry no CRM task, so re-importing
// the same file stays idempotent.
func syntheticTaskID(leadID string, validatedAt time.Time) string {
	return fmt.Sprintf("import-%s-%d", leadID, validatedAt.Unix())
}
