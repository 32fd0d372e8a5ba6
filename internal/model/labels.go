package model

// QualityCategory buckets a normalized quality score.
type QualityCategory string

const (
	QualityExcellent QualityCategory = "Excellent"
	QualityGood      QualityCategory = "Good"
	QualityFair      QualityCategory = "Fair"
	QualityPoor      QualityCategory = "Poor"
	QualityInvalid   QualityCategory = "Invalid"
)

// AllQualityCategories returns the categories in display order, best first.
func AllQualityCategories() []QualityCategory {
	return []QualityCategory{
		QualityExcellent,
		QualityGood,
		QualityFair,
		QualityPoor,
		QualityInvalid,
	}
}

// FraudTier is the action-driving fraud band.
type FraudTier string

const (
	FraudCritical FraudTier = "Critical"
	FraudHigh     FraudTier = "High"
	FraudMedium   FraudTier = "Medium"
	FraudLow      FraudTier = "Low"
)

// RiskLevel is the display-facing fraud risk label. It uses a finer ladder
// than FraudTier; the two deliberately coexist (the upstream system used
// different cut points for actions and for display).
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
	RiskMinimal  RiskLevel = "MINIMAL"
)

// Action is the recommended disposition for a lead.
type Action string

const (
	ActionReject     Action = "Reject"
	ActionQuarantine Action = "Quarantine/Review"
	ActionFlag       Action = "Flag"
	ActionMonitor    Action = "Monitor"
	ActionAccept     Action = "Accept"
)

// PointStatus is the outcome of a single validation point.
type PointStatus string

const (
	PointPass          PointStatus = "PASS"
	PointWarning       PointStatus = "WARNING"
	PointFail          PointStatus = "FAIL"
	PointFraudDetected PointStatus = "FRAUD DETECTED"
	// PointMissing means the point had neither a score nor a fraud flag;
	// missing points are excluded from pass-rate denominators.
	PointMissing PointStatus = "MISSING"
)

// SourceRisk is the windowed per-source risk classification.
type SourceRisk string

const (
	SourceHighRisk   SourceRisk = "HIGH_RISK"
	SourceMediumRisk SourceRisk = "MEDIUM_RISK"
	SourceLowRisk    SourceRisk = "LOW_RISK"
)

// DailyRisk classifies a single source-day by its fake-lead percentage.
type DailyRisk string

const (
	DailyRiskCritical DailyRisk = "CRITICAL"
	DailyRiskHigh     DailyRisk = "HIGH"
	DailyRiskMedium   DailyRisk = "MEDIUM"
	DailyRiskLow      DailyRisk = "LOW"
	DailyRiskClean    DailyRisk = "CLEAN"
)

// Granularity selects the trend bucketing width.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// AllGranularities returns the supported trend granularities.
func AllGranularities() []Granularity {
	return []Granularity{Daily, Weekly, Monthly}
}

// Valid reports whether g is a recognized granularity.
func (g Granularity) Valid() bool {
	switch g {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// AnomalyFlag identifies which validation-time signal triggered an anomaly
// candidate, highest precedence first.
type AnomalyFlag string

const (
	FlagFake          AnomalyFlag = "FLAGGED_AS_FAKE"
	FlagCriticalFraud AnomalyFlag = "CRITICAL_FRAUD"
	FlagHighFraud     AnomalyFlag = "HIGH_FRAUD"
	FlagReject        AnomalyFlag = "RECOMMENDED_REJECT"
	FlagOther         AnomalyFlag = "OTHER"
)

// AnomalySeverity grades how strongly the validation-time signal and the
// later outcome disagree.
type AnomalySeverity string

const (
	SeverityCritical AnomalySeverity = "CRITICAL"
	SeverityHigh     AnomalySeverity = "HIGH"
	SeverityMedium   AnomalySeverity = "MEDIUM"
	SeverityLow      AnomalySeverity = "LOW"
)

// severityRank orders severities for sorting; higher is more severe.
var severityRank = map[AnomalySeverity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns a sortable severity rank; higher means more severe.
func (s AnomalySeverity) Rank() int {
	return severityRank[s]
}

// BusinessImpact estimates the operational cost of a confirmed anomaly.
type BusinessImpact string

const (
	ImpactHigh   BusinessImpact = "HIGH"
	ImpactMedium BusinessImpact = "MEDIUM"
	ImpactLow    BusinessImpact = "LOW"
)

// Freshness describes how recently validation data arrived.
type Freshness string

const (
	FreshnessFresh  Freshness = "Fresh"
	FreshnessRecent Freshness = "Recent"
	FreshnessStale  Freshness = "Stale"
	FreshnessNoData Freshness = "No data"
)

// SystemStatus summarizes overall data quality for the status command.
type SystemStatus string

const (
	SystemExcellent SystemStatus = "EXCELLENT"
	SystemGood      SystemStatus = "GOOD"
	SystemFair      SystemStatus = "FAIR"
	SystemPoor      SystemStatus = "POOR"
)
