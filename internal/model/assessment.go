package model

import "time"

// PointAssessment is the derived outcome of one validation point for one lead.
type PointAssessment struct {
	Point  string      `json:"point"`
	Score  *float64    `json:"score,omitempty"`
	Status PointStatus `json:"status"`
	// FraudFlagged is set when a fraud-indicator flag forced the status,
	// regardless of the point score.
	FraudFlagged bool `json:"fraud_flagged,omitempty"`
}

// Assessable reports whether the point participates in pass-rate denominators.
func (p PointAssessment) Assessable() bool {
	return p.Status != PointMissing
}

// Passed reports whether the point cleared its pass threshold.
func (p PointAssessment) Passed() bool {
	return p.Status == PointPass
}

// LeadAssessment carries the derived, never-persisted fields for one
// validation record: normalized scores, classification labels and the
// recommended action. Quality and Overall are nil when no quality input was
// available; such leads are excluded from quality averages rather than
// dragging them toward zero.
type LeadAssessment struct {
	TaskID string `json:"task_id"`
	LeadID string `json:"lead_id"`
	Source string `json:"source"`

	Quality *float64 `json:"quality,omitempty"`
	Fraud   float64  `json:"fraud"`
	Overall *float64 `json:"overall,omitempty"`

	Category   QualityCategory `json:"category,omitempty"`
	FraudTier  FraudTier       `json:"fraud_tier"`
	RiskLevel  RiskLevel       `json:"risk_level"`
	LikelyFake bool            `json:"likely_fake"`
	FakeFlag   bool            `json:"fake_flag"`

	// Raw email fraud flags carried through for aggregate counting.
	DisposableEmail bool `json:"disposable_email,omitempty"`
	BounceLikely    bool `json:"bounce_likely,omitempty"`
	GibberishEmail  bool `json:"gibberish_email,omitempty"`

	Action Action `json:"action"`
	// ExplicitAction is set when the action came from the upstream
	// recommendation string rather than the fraud tier.
	ExplicitAction bool `json:"explicit_action,omitempty"`

	Email        PointAssessment `json:"email"`
	Phone        PointAssessment `json:"phone"`
	Name         PointAssessment `json:"name"`
	Company      PointAssessment `json:"company"`
	Completeness PointAssessment `json:"completeness"`

	Recommendation string    `json:"recommendation,omitempty"`
	CreatedDate    time.Time `json:"created_date"`
	ValidatedAt    time.Time `json:"validated_at"`
}

// HasQuality reports whether a quality input was available for this lead.
func (a *LeadAssessment) HasQuality() bool {
	return a.Quality != nil
}

// Points returns the five point assessments in canonical order.
func (a *LeadAssessment) Points() []PointAssessment {
	return []PointAssessment{a.Email, a.Phone, a.Name, a.Company, a.Completeness}
}
