package model

import "time"

// ScoreStats holds summary statistics for one metric over a group of leads.
// Count is the number of leads that actually contributed a value; for quality
// metrics it can be smaller than the group size because leads without any
// quality input are excluded rather than counted as zero.
type ScoreStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// SourceAggregate is one acquisition source's rollup over an explicit window.
// Percentages always divide by the source's own TotalLeads; a source with no
// qualifying records is omitted entirely, so TotalLeads is never zero.
type SourceAggregate struct {
	Source     string `json:"source"`
	TotalLeads int    `json:"total_leads"`

	// Quality and Fraud are on the 10-point presentation scale.
	Quality ScoreStats `json:"quality"`
	Fraud   ScoreStats `json:"fraud"`

	Categories map[QualityCategory]int `json:"categories"`

	HighQualityCount int     `json:"high_quality_count"`
	HighQualityPct   float64 `json:"high_quality_pct"`

	FakeLeadCount    int     `json:"fake_lead_count"`
	FakeLeadPct      float64 `json:"fake_lead_pct"`
	LikelyFakeCount  int     `json:"likely_fake_count"`
	LikelyFakePct    float64 `json:"likely_fake_pct"`
	DisposableCount  int     `json:"disposable_count"`
	BounceLikelyCnt  int     `json:"bounce_likely_count"`
	GibberishCount   int     `json:"gibberish_count"`
	HighFraudCount   int     `json:"high_fraud_count"`
	HighFraudPct     float64 `json:"high_fraud_pct"`
	ParseErrorsSeen  int     `json:"parse_errors_seen,omitempty"`
	QualityMissing   int     `json:"quality_missing,omitempty"`
	CriticalFraudCnt int     `json:"critical_fraud_count"`

	QualityRank     int `json:"quality_rank"`
	FraudSafetyRank int `json:"fraud_safety_rank"`
	VolumeRank      int `json:"volume_rank"`

	Grade        string     `json:"grade"`
	Risk         SourceRisk `json:"risk"`
	PrimaryIssue string     `json:"primary_issue,omitempty"`
	ProblemScore float64    `json:"problem_score"`

	// RemediationPriority is 1-based and set only on worst-sources output.
	RemediationPriority int `json:"remediation_priority,omitempty"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// DailySourceStats is the single-day flavor of a source rollup, feeding the
// daily fake-leads report.
type DailySourceStats struct {
	Source            string    `json:"source"`
	Day               time.Time `json:"day"`
	TotalLeads        int       `json:"total_leads"`
	FakeLeadCount     int       `json:"fake_lead_count"`
	FakeLeadPct       float64   `json:"fake_lead_pct"`
	CriticalFraudCnt  int       `json:"critical_fraud_count"`
	CriticalFraudPct  float64   `json:"critical_fraud_pct"`
	AvgFraud          float64   `json:"avg_fraud"`
	Risk              DailyRisk `json:"risk"`
	WorstSourceRank   int       `json:"worst_source_rank"`
	AlertOnVolume     bool      `json:"alert_on_volume"`
	AlertOnPercentage bool      `json:"alert_on_percentage"`
}

// TrendPeriodSnapshot is one period's rollup within a trend series, overall
// (empty Source) or per source. Previous/delta fields are nil for the first
// period of a partition: absence of a predecessor is not a zero delta.
type TrendPeriodSnapshot struct {
	Granularity Granularity `json:"granularity"`
	PeriodStart time.Time   `json:"period_start"`
	Source      string      `json:"source,omitempty"`

	Leads         int     `json:"leads"`
	AvgQuality    float64 `json:"avg_quality"`
	MedianQuality float64 `json:"median_quality"`
	AvgFraud      float64 `json:"avg_fraud"`
	MedianFraud   float64 `json:"median_fraud"`

	EmailPassRate        float64 `json:"email_pass_rate"`
	PhonePassRate        float64 `json:"phone_pass_rate"`
	NamePassRate         float64 `json:"name_pass_rate"`
	CompanyPassRate      float64 `json:"company_pass_rate"`
	CompletenessPassRate float64 `json:"completeness_pass_rate"`

	HighQualityPct float64 `json:"high_quality_pct"`
	HighFraudPct   float64 `json:"high_fraud_pct"`
	FakeLeads      int     `json:"fake_leads"`
	FakeLeadPct    float64 `json:"fake_lead_pct"`
	UniqueSources  int     `json:"unique_sources,omitempty"`

	PrevAvgQuality *float64 `json:"prev_avg_quality,omitempty"`
	QualityDelta   *float64 `json:"quality_delta,omitempty"`
	PrevAvgFraud   *float64 `json:"prev_avg_fraud,omitempty"`
	FraudDelta     *float64 `json:"fraud_delta,omitempty"`
	PrevLeads      *int     `json:"prev_leads,omitempty"`
	VolumeDelta    *int     `json:"volume_delta,omitempty"`

	// Ranks among sources sharing this period start; zero when unranked
	// (overall series, or the period failed the minimum-volume gate).
	QualityRank int `json:"quality_rank,omitempty"`
	FraudRank   int `json:"fraud_rank,omitempty"`
}

// AnomalyRecord is one lead whose validation-time fraud signal conflicts, or
// may conflict, with its later-known lifecycle status.
type AnomalyRecord struct {
	LeadID    string `json:"lead_id"`
	TaskID    string `json:"task_id"`
	Source    string `json:"source"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company,omitempty"`

	Flag     AnomalyFlag     `json:"flag"`
	Severity AnomalySeverity `json:"severity"`
	// Priority is the 1-based investigation priority; lower is more urgent.
	Priority int            `json:"priority"`
	Impact   BusinessImpact `json:"impact"`

	// FraudScore is on the 10-point presentation scale.
	FraudScore     float64   `json:"fraud_score"`
	FakeFlag       bool      `json:"fake_flag"`
	Recommendation string    `json:"recommendation,omitempty"`
	CurrentStatus  string    `json:"current_status"`
	ValidatedAt    time.Time `json:"validated_at"`
	Description    string    `json:"description"`
}

// Inconsistency is a validation-time self-contradiction (score, flag and
// recommendation disagreeing with each other), surfaced on the daily report.
type Inconsistency struct {
	LeadID         string          `json:"lead_id"`
	TaskID         string          `json:"task_id"`
	Source         string          `json:"source"`
	Kind           string          `json:"kind"`
	Severity       AnomalySeverity `json:"severity"`
	FraudScore     float64         `json:"fraud_score"`
	FakeFlag       bool            `json:"fake_flag"`
	Recommendation string          `json:"recommendation"`
	ValidatedAt    time.Time       `json:"validated_at"`
}
