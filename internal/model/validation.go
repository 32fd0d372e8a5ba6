package model

import "time"

// UnknownSource is the canonical bucket for records with no acquisition source.
const UnknownSource = "Unknown"

// ValidationRecord is one validation outcome for one lead at one point in
// time, as parsed from a Salesforce "Lead Validation" task. A lead may
// accumulate many records over time; records are immutable and later
// validations supersede (never overwrite) earlier ones. Optional numeric
// fields are pointers: nil means the upstream validator did not produce the
// value, which is not the same as zero.
type ValidationRecord struct {
	TaskID  string `json:"task_id"`
	LeadID  string `json:"lead_id"`
	WhatID  string `json:"what_id,omitempty"`
	Subject string `json:"subject,omitempty"`

	// Source is the raw LeadSource from the CRM; empty until canonicalized
	// via SourceOrUnknown.
	Source      string `json:"source"`
	LeadCompany string `json:"lead_company,omitempty"`
	LeadEmail   string `json:"lead_email,omitempty"`

	// Scores parsed from the structured description sections. Lead, quality
	// and fraud scores are on a 10-point scale; DataQuality is a percentage.
	LeadScore      *float64 `json:"lead_score,omitempty"`
	QualityScore   *float64 `json:"quality_score,omitempty"`
	DataQuality    *float64 `json:"data_quality,omitempty"`
	FraudScore     *float64 `json:"fraud_score,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	QualityLevel   string   `json:"quality_level,omitempty"`
	FraudRisk      string   `json:"fraud_risk,omitempty"`
	MarketSegment  string   `json:"market_segment,omitempty"`

	// Phone validation section.
	PhoneValid          *bool  `json:"phone_valid,omitempty"`
	PhoneCarrier        string `json:"phone_carrier,omitempty"`
	PhoneType           string `json:"phone_type,omitempty"`
	PhoneNationalFormat string `json:"phone_national_format,omitempty"`

	// Email validation section.
	EmailValid     *bool  `json:"email_valid,omitempty"`
	EmailSendable  *bool  `json:"email_sendable,omitempty"`
	BounceLikely   *bool  `json:"bounce_likely,omitempty"`
	GibberishScore string `json:"gibberish_score,omitempty"`

	// Email summary section.
	TotalEmails       *int     `json:"total_emails,omitempty"`
	ValidEmails       *int     `json:"valid_emails,omitempty"`
	SendableEmails    *int     `json:"sendable_emails,omitempty"`
	EmailQualityScore *float64 `json:"email_quality_score,omitempty"`

	// Per-point validator scores on the unit interval, when the upstream
	// validator reports them directly.
	EmailScore        *float64 `json:"email_score,omitempty"`
	PhoneScore        *float64 `json:"phone_score,omitempty"`
	NameScore         *float64 `json:"name_score,omitempty"`
	CompanyScore      *float64 `json:"company_score,omitempty"`
	CompletenessScore *float64 `json:"completeness_score,omitempty"`

	// Fields flattened out of the raw API response JSON. The API duplicates
	// several section fields; the API variant is the more authoritative copy.
	APILeadScore                *float64 `json:"api_lead_score,omitempty"`
	APIQualityScore             *float64 `json:"api_quality_score,omitempty"`
	APIFraudScore               *float64 `json:"api_fraud_score,omitempty"`
	APIDataQualityScore         *float64 `json:"api_data_quality_score,omitempty"`
	APIRecommendation           string   `json:"api_recommendation,omitempty"`
	APIQualityLevel             string   `json:"api_quality_level,omitempty"`
	APIFraudRiskLevel           string   `json:"api_fraud_risk_level,omitempty"`
	APIMarketSegment            string   `json:"api_market_segment,omitempty"`
	APIPhoneValid               *bool    `json:"api_phone_valid,omitempty"`
	APIPhoneCarrier             string   `json:"api_phone_carrier,omitempty"`
	APIPhoneLocation            string   `json:"api_phone_location,omitempty"`
	APIEmailValid               *bool    `json:"api_email_valid,omitempty"`
	APIEmailSendable            *bool    `json:"api_email_sendable,omitempty"`
	APIBounceLikely             *bool    `json:"api_bounce_likely,omitempty"`
	APIGibberishEmail           *bool    `json:"api_gibberish_email,omitempty"`
	APIGibberishName            *bool    `json:"api_gibberish_name,omitempty"`
	APIGibberishCompany         *bool    `json:"api_gibberish_company,omitempty"`
	APIFakePhone                *bool    `json:"api_fake_phone,omitempty"`
	APIFakeLead                 *bool    `json:"api_fake_lead,omitempty"`
	APIDisposableEmail          *bool    `json:"api_disposable_email,omitempty"`
	APIBusinessStrengthScore    *float64 `json:"api_business_strength_score,omitempty"`
	APIFirstName                string   `json:"api_first_name,omitempty"`
	APILastName                 string   `json:"api_last_name,omitempty"`
	APICompany                  string   `json:"api_company,omitempty"`
	APIEmail                    string   `json:"api_email,omitempty"`
	APIPhone                    string   `json:"api_phone,omitempty"`
	APIState                    string   `json:"api_state,omitempty"`
	APIPostalCode               string   `json:"api_postal_code,omitempty"`
	APITotalEmails              *int     `json:"api_total_emails,omitempty"`
	APIValidEmails              *int     `json:"api_valid_emails,omitempty"`
	APISendableEmails           *int     `json:"api_sendable_emails,omitempty"`
	APIEmailSummaryQualityScore *float64 `json:"api_email_summary_quality_score,omitempty"`
	APIQualityFactors           string   `json:"api_quality_factors,omitempty"`
	APIFraudFactors             string   `json:"api_fraud_factors,omitempty"`
	APISummaryNotes             string   `json:"api_summary_notes,omitempty"`

	CreatedDate      time.Time `json:"created_date"`
	LastModifiedDate time.Time `json:"last_modified_date,omitempty"`
	ValidatedAt      time.Time `json:"validated_at"`

	// ParseError marks records whose description could not be fully parsed.
	// Marked records are excluded from every aggregate and tallied separately.
	ParseError     string `json:"parse_error,omitempty"`
	RawDescription string `json:"raw_description,omitempty"`
}

// SourceOrUnknown returns the record's acquisition source with empty values
// canonicalized to the shared "Unknown" bucket.
func (r *ValidationRecord) SourceOrUnknown() string {
	if r.Source == "" {
		return UnknownSource
	}
	return r.Source
}

// FakeFlag reports whether the validator explicitly flagged the lead as fake.
func (r *ValidationRecord) FakeFlag() bool {
	return r.APIFakeLead != nil && *r.APIFakeLead
}

// HasParseError reports whether the record carries a parse-error marker.
func (r *ValidationRecord) HasParseError() bool {
	return r.ParseError != ""
}

// LatestPerLead reduces a set of records to the most recent record per lead,
// by validation timestamp. Records without a lead identifier fall back to the
// task identifier so re-parsed duplicates still collapse. Input order does not
// matter; output order is unspecified.
func LatestPerLead(records []ValidationRecord) []ValidationRecord {
	latest := make(map[string]ValidationRecord, len(records))
	for _, r := range records {
		key := r.LeadID
		if key == "" {
			key = r.TaskID
		}
		cur, ok := latest[key]
		if !ok || r.ValidatedAt.After(cur.ValidatedAt) {
			latest[key] = r
		}
	}
	out := make([]ValidationRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	return out
}
