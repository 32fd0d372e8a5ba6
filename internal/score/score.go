// Package score derives composite quality, fraud and overall scores for
// validated leads and assigns classification labels and recommended actions.
package score

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/normalize"
)

// Classification cut points on normalized [0,1] scores. All bounds are
// inclusive below and exclusive above: a quality of exactly 0.70 is Good and
// a fraud score of exactly 0.60 is Medium tier.
const (
	QualityExcellentMin = 0.90
	QualityGoodMin      = 0.70
	QualityFairMin      = 0.50
	QualityPoorMin      = 0.30

	// Fraud tiers drive the recommended action.
	FraudCriticalMin = 0.80
	FraudHighMin     = 0.70
	FraudMediumMin   = 0.60

	// LikelyFakeMin marks a record likely fake absent an explicit flag.
	LikelyFakeMin = 0.70

	PointPassMin    = 0.80
	PointWarningMin = 0.50
)

// Display risk ladder bounds. The ladder steps at 0.2 intervals, so it cuts
// differently from the fraud tiers above: 0.60 is already HIGH here.
const (
	riskCriticalMin = 0.80
	riskHighMin     = 0.60
	riskMediumMin   = 0.40
	riskLowMin      = 0.20
)

// CategoryOf maps a normalized quality score to its category.
func CategoryOf(quality float64) model.QualityCategory {
	switch {
	case quality >= QualityExcellentMin:
		return model.QualityExcellent
	case quality >= QualityGoodMin:
		return model.QualityGood
	case quality >= QualityFairMin:
		return model.QualityFair
	case quality >= QualityPoorMin:
		return model.QualityPoor
	default:
		return model.QualityInvalid
	}
}

// FraudTierOf maps a normalized fraud score to the tier that drives actions.
func FraudTierOf(fraud float64) model.FraudTier {
	switch {
	case fraud >= FraudCriticalMin:
		return model.FraudCritical
	case fraud >= FraudHighMin:
		return model.FraudHigh
	case fraud >= FraudMediumMin:
		return model.FraudMedium
	default:
		return model.FraudLow
	}
}

// RiskLevelOf maps a normalized fraud score to the display risk label.
func RiskLevelOf(fraud float64) model.RiskLevel {
	switch {
	case fraud >= riskCriticalMin:
		return model.RiskCritical
	case fraud >= riskHighMin:
		return model.RiskHigh
	case fraud >= riskMediumMin:
		return model.RiskMedium
	case fraud >= riskLowMin:
		return model.RiskLow
	default:
		return model.RiskMinimal
	}
}

// PointStatusOf maps a point score and its fraud-indicator flag to a status.
// A set flag wins over any score; a point with neither flag nor score is
// MISSING and stays out of pass-rate denominators.
func PointStatusOf(pointScore *float64, fraudFlagged bool) model.PointStatus {
	if fraudFlagged {
		return model.PointFraudDetected
	}
	if pointScore == nil {
		return model.PointMissing
	}
	switch {
	case *pointScore >= PointPassMin:
		return model.PointPass
	case *pointScore >= PointWarningMin:
		return model.PointWarning
	default:
		return model.PointFail
	}
}

// actionWords maps recognized recommendation verbs to canonical actions.
var actionWords = map[string]model.Action{
	"reject":        model.ActionReject,
	"rejected":      model.ActionReject,
	"deny":          model.ActionReject,
	"review":        model.ActionQuarantine,
	"quarantine":    model.ActionQuarantine,
	"manual review": model.ActionQuarantine,
	"flag":          model.ActionFlag,
	"flagged":       model.ActionFlag,
	"monitor":       model.ActionMonitor,
	"watch":         model.ActionMonitor,
	"accept":        model.ActionAccept,
	"accepted":      model.ActionAccept,
	"approve":       model.ActionAccept,
	"approved":      model.ActionAccept,
}

// ParseRecommendation canonicalizes a free-text recommendation string.
// Recognized verbs (whole string or leading word, so "REJECT - disposable
// domain" still matches) map onto the fixed action vocabulary; any other
// non-empty string passes through title-cased so the report layer gets a
// stable label either way. The second return is false only when the string
// is empty or whitespace.
func ParseRecommendation(raw string) (model.Action, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	key := strings.ToLower(trimmed)
	if a, ok := actionWords[key]; ok {
		return a, true
	}
	if fields := strings.Fields(key); len(fields) > 0 {
		if a, ok := actionWords[fields[0]]; ok {
			return a, true
		}
	}
	return model.Action(cases.Title(language.English).String(key)), true
}

// ActionFor resolves the recommended action for a lead. An explicit upstream
// recommendation wins; otherwise the fraud tier decides. The second return
// reports whether the action came from the recommendation string.
func ActionFor(recommendation string, tier model.FraudTier) (model.Action, bool) {
	if a, ok := ParseRecommendation(recommendation); ok {
		return a, true
	}
	switch tier {
	case model.FraudCritical:
		return model.ActionReject, false
	case model.FraudHigh:
		return model.ActionQuarantine, false
	case model.FraudMedium:
		return model.ActionFlag, false
	default:
		return model.ActionMonitor, false
	}
}

// Assess scores one validation record. Records carrying a parse error or an
// out-of-range raw score return an error; the caller must exclude them from
// aggregates and tally them instead of letting them contribute zeros.
func Assess(r *model.ValidationRecord, cfg config.ScoringConfig) (model.LeadAssessment, error) {
	if r.HasParseError() {
		return model.LeadAssessment{}, eris.Errorf("score: task %s: description did not parse: %s", r.TaskID, r.ParseError)
	}

	ns, err := normalize.Record(r)
	if err != nil {
		return model.LeadAssessment{}, eris.Wrapf(err, "score: task %s", r.TaskID)
	}

	a := model.LeadAssessment{
		TaskID:         r.TaskID,
		LeadID:         r.LeadID,
		Source:         r.SourceOrUnknown(),
		Fraud:          ns.Fraud,
		FakeFlag:       r.FakeFlag(),
		Recommendation: recommendationOf(r),
		CreatedDate:    r.CreatedDate,
		ValidatedAt:    r.ValidatedAt,
	}

	a.Quality = ns.Quality
	if a.Quality == nil {
		a.Quality = compositeQuality(ns, cfg)
	}
	if a.Quality != nil {
		overall := cfg.QualityShare**a.Quality + cfg.FraudShare*(1-ns.Fraud)
		a.Overall = &overall
		a.Category = CategoryOf(*a.Quality)
	}

	a.FraudTier = FraudTierOf(ns.Fraud)
	a.RiskLevel = RiskLevelOf(ns.Fraud)
	a.LikelyFake = a.FakeFlag || ns.Fraud >= LikelyFakeMin

	a.DisposableEmail = boolSet(r.APIDisposableEmail)
	a.BounceLikely = boolSet(r.APIBounceLikely) || boolSet(r.BounceLikely)
	a.GibberishEmail = boolSet(r.APIGibberishEmail)

	a.Email = pointAssessment("email", ns.Email, emailFraudFlag(r))
	a.Phone = pointAssessment("phone", ns.Phone, boolSet(r.APIFakePhone))
	a.Name = pointAssessment("name", ns.Name, boolSet(r.APIGibberishName))
	a.Company = pointAssessment("company", ns.Company, boolSet(r.APIGibberishCompany))
	a.Completeness = pointAssessment("completeness", ns.Completeness, false)

	a.Action, a.ExplicitAction = ActionFor(a.Recommendation, a.FraudTier)

	return a, nil
}

// BatchResult is the outcome of scoring a snapshot of records.
type BatchResult struct {
	Assessments []model.LeadAssessment

	// ParseErrors counts records excluded because their task description
	// never parsed; Malformed counts records whose raw scores were out of
	// range. Neither group contributes to any aggregate.
	ParseErrors int
	Malformed   int
	Errors      []error
}

// AssessBatch scores every usable record in the snapshot. Per-record
// failures never abort the batch.
func AssessBatch(records []model.ValidationRecord, cfg config.ScoringConfig) BatchResult {
	var res BatchResult
	for i := range records {
		r := &records[i]
		if r.HasParseError() {
			res.ParseErrors++
			continue
		}
		a, err := Assess(r, cfg)
		if err != nil {
			res.Malformed++
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Assessments = append(res.Assessments, a)
	}

	zap.L().Info("score: batch assessed",
		zap.Int("scored", len(res.Assessments)),
		zap.Int("parse_errors", res.ParseErrors),
		zap.Int("malformed", res.Malformed),
	)

	return res
}

// compositeQuality computes the weighted quality fallback from per-point
// scores. The denominator is the weight sum of the points actually present,
// so a missing point redistributes its weight instead of counting as zero.
// Returns nil when no point carried a score.
func compositeQuality(ns normalize.Scores, cfg config.ScoringConfig) *float64 {
	parts := []struct {
		weight float64
		value  *float64
	}{
		{cfg.EmailWeight, ns.Email},
		{cfg.PhoneWeight, ns.Phone},
		{cfg.NameWeight, ns.Name},
		{cfg.CompanyWeight, ns.Company},
		{cfg.CompletenessWeight, ns.Completeness},
	}

	var sum, weightSum float64
	for _, p := range parts {
		if p.value == nil {
			continue
		}
		sum += p.weight * *p.value
		weightSum += p.weight
	}
	if weightSum == 0 {
		return nil
	}
	q := sum / weightSum
	return &q
}

func pointAssessment(name string, score *float64, fraudFlagged bool) model.PointAssessment {
	return model.PointAssessment{
		Point:        name,
		Score:        score,
		Status:       PointStatusOf(score, fraudFlagged),
		FraudFlagged: fraudFlagged,
	}
}

// recommendationOf picks the explicit recommendation string. The API-sourced
// field wins over the parsed section field, same order as the score chains.
func recommendationOf(r *model.ValidationRecord) string {
	if s := strings.TrimSpace(r.APIRecommendation); s != "" {
		return s
	}
	return strings.TrimSpace(r.Recommendation)
}

// emailFraudFlag reports whether any email fraud indicator is set. The
// bounce-likely flag appears both in the parsed email section and in the
// flattened API payload; either one counts.
func emailFraudFlag(r *model.ValidationRecord) bool {
	return boolSet(r.APIDisposableEmail) || boolSet(r.APIGibberishEmail) ||
		boolSet(r.APIBounceLikely) || boolSet(r.BounceLikely)
}

func boolSet(v *bool) bool {
	return v != nil && *v
}
